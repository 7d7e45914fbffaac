// internal/monitor/monitor_test.go
package monitor

import (
	"testing"
	"time"

	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
)

func mustDecode(t *testing.T, raw string) *feed.Frame {
	t.Helper()
	frame, err := feed.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return frame
}

func TestMonitorRoutesFrames(t *testing.T) {
	clock := t0
	m := New(state.NewStore(func() time.Time { return clock }))

	frames := []string{
		`{"kind":"session","session":{"key":"agent:main","status":"pending","lastActivityAt":1}}`,
		`{"kind":"session_status","key":"agent:main","status":"active"}`,
		`{"kind":"session_update","key":"agent:main","patch":{"platform":"telegram"}}`,
		`{"kind":"action","action":{"id":"e1","runId":"r1","type":"delta","eventType":"chat","seq":1,"timestamp":1,"content":"Hel"}}`,
		`{"kind":"action","action":{"id":"e2","runId":"r1","type":"delta","eventType":"chat","seq":2,"timestamp":2,"content":"lo"}}`,
		`{"kind":"action","action":{"id":"e3","runId":"r1","type":"final","eventType":"chat","seq":3,"timestamp":3}}`,
	}
	for _, raw := range frames {
		if err := m.Apply(mustDecode(t, raw)); err != nil {
			t.Fatal(err)
		}
	}

	s, ok := m.Store().Sessions.Get("agent:main")
	if !ok {
		t.Fatal("expected session")
	}
	if s.Status != types.SessionActive || s.Platform != "telegram" {
		t.Errorf("unexpected session: %+v", s)
	}
	if !s.LastActivityAt.Equal(clock) {
		t.Errorf("expected status update to stamp %v, got %v", clock, s.LastActivityAt)
	}

	a, ok := m.Store().Actions.Get("r1-stream")
	if !ok {
		t.Fatal("expected streaming record")
	}
	if a.Content != "Hello" || a.Type != types.ActionFinal || a.Seq != 3 {
		t.Errorf("unexpected stream record: %+v", a)
	}
}

func TestMonitorUnknownSessionUpdatesAreIgnored(t *testing.T) {
	m := New(state.NewStore(nil))

	if err := m.Apply(mustDecode(t, `{"kind":"session_status","key":"ghost","status":"error"}`)); err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(mustDecode(t, `{"kind":"session_update","key":"ghost","patch":{"recipient":"x"}}`)); err != nil {
		t.Fatal(err)
	}
	if m.Store().Sessions.Len() != 0 {
		t.Errorf("expected no sessions, got %d", m.Store().Sessions.Len())
	}
}

func TestMonitorResetFrame(t *testing.T) {
	m := New(state.NewStore(nil))
	m.Apply(mustDecode(t, `{"kind":"session","session":{"key":"k","status":"active","lastActivityAt":1}}`))
	m.Apply(mustDecode(t, `{"kind":"action","action":{"id":"c1","runId":"r1","type":"tool_call","seq":1,"timestamp":1}}`))

	if err := m.Apply(mustDecode(t, `{"kind":"reset"}`)); err != nil {
		t.Fatal(err)
	}
	if m.Store().Sessions.Len() != 0 || m.Store().Actions.Len() != 0 {
		t.Error("expected both tables to be empty after reset")
	}
}

func TestMonitorRejectsUnknownKind(t *testing.T) {
	m := New(state.NewStore(nil))
	if err := m.Apply(&feed.Frame{Kind: "ping"}); err == nil {
		t.Fatal("expected error for unroutable frame")
	}
}

func TestMonitorSweepIdle(t *testing.T) {
	clock := t0
	m := New(state.NewStore(func() time.Time { return clock }))
	sessions := m.Store().Sessions

	sessions.Upsert(types.Session{Key: "stale", Status: types.SessionActive, LastActivityAt: t0.Add(-10 * time.Minute)})
	sessions.Upsert(types.Session{Key: "fresh", Status: types.SessionActive, LastActivityAt: t0.Add(-time.Minute)})
	sessions.Upsert(types.Session{Key: "done", Status: types.SessionDone, LastActivityAt: t0.Add(-time.Hour)})

	swept := m.SweepIdle(t0, 5*time.Minute)
	if len(swept) != 1 {
		t.Fatalf("expected 1 swept session, got %d", len(swept))
	}
	if swept[0].Kind != feed.KindSessionStatus || swept[0].Key != "stale" || swept[0].Status != types.SessionIdle {
		t.Errorf("unexpected sweep frame %+v", swept[0])
	}

	stale, _ := sessions.Get("stale")
	fresh, _ := sessions.Get("fresh")
	done, _ := sessions.Get("done")
	if stale.Status != types.SessionIdle {
		t.Errorf("expected stale session idle, got %s", stale.Status)
	}
	if fresh.Status != types.SessionActive {
		t.Errorf("expected fresh session active, got %s", fresh.Status)
	}
	if done.Status != types.SessionDone {
		t.Errorf("expected done session untouched, got %s", done.Status)
	}
}
