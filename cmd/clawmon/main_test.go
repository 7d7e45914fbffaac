package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\nb\tc"); got != "a b c" {
		t.Errorf("expected whitespace collapsed, got %q", got)
	}
	long := strings.Repeat("x", 100)
	got := oneLine(long)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 61 {
		t.Errorf("expected 60 runes plus ellipsis, got %q", got)
	}
	exact := strings.Repeat("y", 60)
	if got := oneLine(exact); got != exact {
		t.Errorf("expected exact-length text unchanged, got %q", got)
	}
}

func TestNewAPIClient(t *testing.T) {
	if c := newAPIClient(":8787"); c.base != "http://127.0.0.1:8787" {
		t.Errorf("unexpected base %q", c.base)
	}
	if c := newAPIClient("10.0.0.5:9000"); c.base != "http://10.0.0.5:9000" {
		t.Errorf("unexpected base %q", c.base)
	}
}

func TestAPIClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"session not found"}`))
		case "/api/sessions":
			w.Write([]byte(`[{"key":"agent:main","status":"active","last_activity_at":"2026-01-01T00:00:00Z"}]`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := newAPIClient(strings.TrimPrefix(srv.URL, "http://"))

	var sessions []types.Session
	if err := c.do(http.MethodGet, "/api/sessions", &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Key != "agent:main" {
		t.Errorf("unexpected sessions: %+v", sessions)
	}

	err := c.do(http.MethodGet, "/api/sessions/missing", nil)
	if err == nil || !strings.Contains(err.Error(), "session not found") {
		t.Errorf("expected API error message, got %v", err)
	}

	err = c.do(http.MethodPost, "/other", nil)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestPrintSessionsAndActions(t *testing.T) {
	store := state.NewStore(nil)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.Sessions.Upsert(types.Session{Key: "agent:main", Status: types.SessionActive, LastActivityAt: at, Platform: "telegram"})
	store.Actions.Insert(types.Action{ID: types.StreamID("r1"), RunID: "r1", SessionKey: "agent:main", Type: types.ActionFinal, Seq: 3, Content: "Hello\nworld"})
	store.Actions.Insert(types.Action{ID: "t1", RunID: "r2", Type: types.ActionToolCall, ToolName: "ls"})

	var buf bytes.Buffer
	if err := printSessions(&buf, store); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "agent:main") || !strings.Contains(out, "telegram") {
		t.Errorf("unexpected sessions output:\n%s", out)
	}

	buf.Reset()
	if err := printActions(&buf, store, "r1", nil); err != nil {
		t.Fatal(err)
	}
	out = buf.String()
	if !strings.Contains(out, "r1-stream") || !strings.Contains(out, "Hello world") {
		t.Errorf("unexpected actions output:\n%s", out)
	}
	if strings.Contains(out, "t1") {
		t.Errorf("expected run filter to exclude t1:\n%s", out)
	}

	buf.Reset()
	if err := printActions(&buf, state.NewStore(nil), "", nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No actions.") {
		t.Errorf("expected empty message, got %q", buf.String())
	}
}

func TestMaskValue(t *testing.T) {
	if got := maskValue("telegram.token", "123456:ABCDEF", false); got != "***CDEF" {
		t.Errorf("expected masked token, got %v", got)
	}
	if got := maskValue("telegram.token", "123456:ABCDEF", true); got != "123456:ABCDEF" {
		t.Errorf("expected token shown, got %v", got)
	}
	if got := maskValue("feed.queue_size", float64(8), false); got != float64(8) {
		t.Errorf("expected plain value, got %v", got)
	}
}
