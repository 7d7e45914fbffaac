// internal/delivery/watcher.go
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/user/clawmon/internal/digest"
	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
)

// Alert is a run that ended in error or was aborted.
type Alert struct {
	Action   types.Action
	Previous types.ActionType // empty for orphaned terminals
}

// WatcherConfig configures a Watcher. Zero values select defaults.
type WatcherConfig struct {
	Target      string
	Policy      *RetryPolicy
	Digest      *digest.Digester
	MaxInFlight int64
	Buffer      int
}

// Watcher turns failed runs in the action table into delivered alerts. The
// table observer only queues; delivery happens on background goroutines so
// the writer is never blocked by the network.
type Watcher struct {
	actions  *state.ActionTable
	registry *Registry
	cfg      WatcherConfig

	alerts  chan Alert
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	dropped atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
}

func NewWatcher(actions *state.ActionTable, registry *Registry, cfg WatcherConfig) *Watcher {
	if cfg.Policy == nil {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Watcher{
		actions:  actions,
		registry: registry,
		cfg:      cfg,
		alerts:   make(chan Alert, cfg.Buffer),
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

// Start subscribes to the action table and delivers alerts until ctx is
// cancelled. Call Wait after cancelling to let in-flight deliveries finish.
func (w *Watcher) Start(ctx context.Context) {
	id := w.actions.Subscribe(w.observe)
	slog.Info("alert watcher started", "subscription", id, "target", w.cfg.Target)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.actions.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case alert := <-w.alerts:
				if err := w.sem.Acquire(ctx, 1); err != nil {
					return
				}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer w.sem.Release(1)
					w.deliver(ctx, alert)
				}()
			}
		}
	}()
}

// Wait blocks until the delivery loop and all in-flight deliveries return.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// Stats reports delivered, failed and dropped alert counts.
func (w *Watcher) Stats() (sent, failed, dropped int64) {
	return w.sent.Load(), w.failed.Load(), w.dropped.Load()
}

func (w *Watcher) observe(changes []state.ActionChange) {
	for _, c := range changes {
		alert, ok := detect(c)
		if !ok {
			continue
		}
		select {
		case w.alerts <- alert:
		default:
			w.dropped.Add(1)
			slog.Warn("alert queue full, dropping alert", "run_id", alert.Action.RunID, "type", alert.Action.Type)
		}
	}
}

// detect reports whether a change moved a run into error or aborted.
func detect(c state.ActionChange) (Alert, bool) {
	if !isFailure(c.Value.Type) {
		return Alert{}, false
	}
	switch c.Kind {
	case state.ChangeInsert:
		return Alert{Action: c.Value}, true
	case state.ChangeUpdate:
		if c.Previous.Type == c.Value.Type {
			return Alert{}, false
		}
		return Alert{Action: c.Value, Previous: c.Previous.Type}, true
	}
	return Alert{}, false
}

func isFailure(t types.ActionType) bool {
	return t == types.ActionError || t == types.ActionAborted
}

func (w *Watcher) deliver(ctx context.Context, alert Alert) {
	msg := w.Format(alert)
	err := w.cfg.Policy.Execute(ctx, func() error {
		return w.registry.Deliver(w.cfg.Target, msg)
	})
	if err != nil {
		w.failed.Add(1)
		slog.Error("alert delivery failed", "run_id", alert.Action.RunID, "target", w.cfg.Target, "error", err)
		return
	}
	w.sent.Add(1)
	slog.Debug("alert delivered", "run_id", alert.Action.RunID, "target", w.cfg.Target)
}

// Format renders an alert as a chat message.
func (w *Watcher) Format(alert Alert) string {
	a := alert.Action
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s %s", a.RunID, a.Type)
	if alert.Previous == "" {
		b.WriteString(" (no stream)")
	}
	b.WriteString("\n")
	if a.SessionKey != "" {
		fmt.Fprintf(&b, "Session: %s\n", a.SessionKey)
	}
	fmt.Fprintf(&b, "Seq: %d  At: %s\n", a.Seq, a.Timestamp.UTC().Format("2006-01-02 15:04:05"))

	text := digest.Text(a)
	if w.cfg.Digest != nil {
		text = w.cfg.Digest.Excerpt(a)
	}
	if text != "" {
		b.WriteString("\n")
		b.WriteString(text)
	}
	return b.String()
}
