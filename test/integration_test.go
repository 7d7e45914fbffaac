//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/clawmon/internal/delivery"
	"github.com/user/clawmon/internal/digest"
	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/gateway"
	"github.com/user/clawmon/internal/monitor"
	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
	"github.com/user/clawmon/internal/webhook"
)

const liveFeed = `{"kind":"session","session":{"key":"agent:main:telegram:42","status":"active","lastActivityAt":1000,"platform":"telegram","recipient":"42"}}
{"kind":"action","action":{"id":"e1","runId":"r1","sessionKey":"agent:main:telegram:42","type":"delta","eventType":"chat","seq":1,"timestamp":1001,"content":"Hel"}}
{"kind":"action","action":{"id":"c1","runId":"r1","sessionKey":"agent:main:telegram:42","type":"tool_call","eventType":"agent","seq":2,"timestamp":1002,"toolName":"read_url","toolArgs":{"url":"https://example.com"}}}
{"kind":"action","action":{"id":"c1-result","runId":"r1","sessionKey":"agent:main:telegram:42","type":"tool_result","eventType":"agent","seq":3,"timestamp":1003,"content":"<html><body><h1>Example</h1></body></html>"}}
{"kind":"action","action":{"id":"e2","runId":"r1","sessionKey":"agent:main:telegram:42","type":"delta","eventType":"chat","seq":4,"timestamp":1004,"content":"lo"}}
{"kind":"action","action":{"id":"e3","runId":"r1","sessionKey":"agent:main:telegram:42","type":"final","eventType":"chat","seq":5,"timestamp":1005}}
{"kind":"action","action":{"id":"e4","runId":"r2","sessionKey":"agent:main:telegram:42","type":"delta","eventType":"chat","seq":1,"timestamp":2001,"content":"Let me"}}
{"kind":"action","action":{"id":"e5","runId":"r2","sessionKey":"agent:main:telegram:42","type":"aborted","eventType":"chat","seq":2,"timestamp":2002}}
{"kind":"session_update","key":"agent:main:telegram:42","patch":{"status":"idle","metadata":{"label":"main"}}}
`

type pipeline struct {
	store      *state.Store
	dispatcher *gateway.Dispatcher
	server     *httptest.Server
	capture    string
	alerts     chan string
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()

	dg, err := digest.New("gpt-4", 50)
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}

	store := state.NewStore(nil)
	capture := filepath.Join(t.TempDir(), "feed.jsonl")
	d := gateway.New(monitor.New(store), 128)
	d.SetRecorder(feed.NewRecorder(capture))
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	alerts := make(chan string, 8)
	reg := delivery.NewRegistry()
	reg.Register("telegram:", func(target, msg string) error {
		alerts <- target + "|" + msg
		return nil
	})
	watcher := delivery.NewWatcher(store.Actions, reg, delivery.WatcherConfig{Target: "telegram:-100", Digest: dg})
	watcher.Start(ctx)

	srv := httptest.NewServer(webhook.NewServer(store, d, dg))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		watcher.Wait()
		d.Stop()
	})
	return &pipeline{store: store, dispatcher: d, server: srv, capture: capture, alerts: alerts}
}

func (p *pipeline) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(p.server.URL+path, "application/x-ndjson", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if !p.dispatcher.WaitIdle(5 * time.Second) {
		t.Fatal("dispatcher did not go idle")
	}
	return resp
}

func TestEndToEnd(t *testing.T) {
	p := startPipeline(t)

	resp := p.post(t, "/webhook/events", liveFeed)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	// r1: deltas aggregated around the tool records, promoted to final.
	r1, ok := p.store.Actions.Get(types.StreamID("r1"))
	if !ok || r1.Type != types.ActionFinal || r1.Content != "Hello" {
		t.Fatalf("unexpected r1 stream record: %+v", r1)
	}
	if p.store.Actions.Len() != 4 {
		t.Errorf("expected 4 actions (2 streams + 2 tool records), got %d", p.store.Actions.Len())
	}

	sess, _ := p.store.Sessions.Get("agent:main:telegram:42")
	if sess.Status != types.SessionIdle || sess.Metadata["label"] != "main" {
		t.Errorf("unexpected session: %+v", sess)
	}

	// r2 was aborted: exactly one alert with the preserved partial content.
	select {
	case alert := <-p.alerts:
		if !strings.HasPrefix(alert, "telegram:-100|Run r2 aborted") || !strings.Contains(alert, "Let me") {
			t.Errorf("unexpected alert: %q", alert)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no alert delivered")
	}
	select {
	case extra := <-p.alerts:
		t.Errorf("unexpected second alert: %q", extra)
	case <-time.After(200 * time.Millisecond):
	}

	// The query API reports token counts and markdown-converted tool results.
	httpResp, err := http.Get(p.server.URL + "/api/actions?run=r1")
	if err != nil {
		t.Fatal(err)
	}
	defer httpResp.Body.Close()
	var actions []struct {
		types.Action
		Tokens int `json:"tokens"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 r1 actions, got %d", len(actions))
	}
	for _, a := range actions {
		if a.Tokens <= 0 {
			t.Errorf("expected token count for %s", a.ID)
		}
	}
}

func TestCaptureReplayRebuildsTables(t *testing.T) {
	p := startPipeline(t)
	p.post(t, "/webhook/events", liveFeed)

	data, err := os.ReadFile(p.capture)
	if err != nil {
		t.Fatal(err)
	}

	replayed := state.NewStore(nil)
	d := gateway.New(monitor.New(replayed), 0)
	d.Start(context.Background())
	defer d.Stop()

	stats, err := d.Replay(context.Background(), strings.NewReader(string(data)), true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Frames != 9 {
		t.Errorf("expected 9 frames, got %d", stats.Frames)
	}

	live, again := p.store.Actions.Values(), replayed.Actions.Values()
	if len(live) != len(again) {
		t.Fatalf("action count mismatch: %d vs %d", len(live), len(again))
	}
	for i := range live {
		if live[i].ID != again[i].ID || live[i].Type != again[i].Type || live[i].Content != again[i].Content {
			t.Errorf("action %d differs: %+v vs %+v", i, live[i], again[i])
		}
	}

	// A reset through the API is recorded, so replaying the capture ends empty.
	p.post(t, "/api/reset", "")
	data, err = os.ReadFile(p.capture)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Replay(context.Background(), strings.NewReader(string(data)), true); err != nil {
		t.Fatal(err)
	}
	if replayed.Sessions.Len() != 0 || replayed.Actions.Len() != 0 {
		t.Errorf("expected empty tables after replaying reset, got %d sessions, %d actions",
			replayed.Sessions.Len(), replayed.Actions.Len())
	}
}
