// internal/monitor/monitor.go
package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
)

// Monitor routes feed frames to the session table or, through the
// aggregator, to the action table. It is the only writer of the store and
// must be driven from a single goroutine.
type Monitor struct {
	store      *state.Store
	aggregator *Aggregator
}

func New(store *state.Store) *Monitor {
	return &Monitor{
		store:      store,
		aggregator: NewAggregator(store.Actions),
	}
}

// Store returns the tables the monitor writes to.
func (m *Monitor) Store() *state.Store {
	return m.store
}

// Apply routes one decoded frame.
func (m *Monitor) Apply(frame *feed.Frame) error {
	switch frame.Kind {
	case feed.KindSession:
		m.store.Sessions.Upsert(*frame.Session)
	case feed.KindSessionStatus:
		if !m.store.Sessions.UpdateStatus(frame.Key, frame.Status) {
			slog.Debug("status update for unknown session", "session_key", string(frame.Key))
		}
	case feed.KindSessionUpdate:
		if !m.store.Sessions.Update(frame.Key, frame.Patch) {
			slog.Debug("patch for unknown session", "session_key", string(frame.Key))
		}
	case feed.KindAction:
		m.aggregator.Add(*frame.Action)
	case feed.KindReset:
		m.Reset()
	default:
		return fmt.Errorf("unroutable frame kind %q", frame.Kind)
	}
	return nil
}

// Reset clears both tables.
func (m *Monitor) Reset() {
	m.store.Clear()
	slog.Info("tables reset")
}

// SweepIdle marks active sessions whose last activity is older than after
// as idle. It returns one session_status frame per changed session so the
// sweep can be captured and replayed.
func (m *Monitor) SweepIdle(now time.Time, after time.Duration) []*feed.Frame {
	cutoff := now.Add(-after)
	var swept []*feed.Frame
	for _, s := range m.store.Sessions.Values() {
		if s.Status != types.SessionActive || !s.LastActivityAt.Before(cutoff) {
			continue
		}
		if m.store.Sessions.UpdateStatus(s.Key, types.SessionIdle) {
			swept = append(swept, feed.StatusFrame(s.Key, types.SessionIdle))
		}
	}
	if len(swept) > 0 {
		slog.Info("idle sessions swept", "count", len(swept), "idle_after", after.String())
	}
	return swept
}
