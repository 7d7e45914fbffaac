// internal/scheduler/runner.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/gateway"
	"github.com/user/clawmon/internal/monitor"
	"github.com/user/clawmon/internal/state"
)

// DispatchRunner returns a Runner that applies jobs on the dispatcher's
// writer goroutine, so scheduled maintenance never races live frames. What a
// job changes is captured like any other frame.
func DispatchRunner(d *gateway.Dispatcher, now func() time.Time, timeout time.Duration) Runner {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return func(job state.Job) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		switch job.Kind {
		case state.JobIdleSweep:
			after, err := job.IdleThreshold()
			if err != nil {
				return err
			}
			return d.DoRecorded(ctx, func(m *monitor.Monitor) ([]*feed.Frame, error) {
				swept := m.SweepIdle(now(), after)
				slog.Info("idle sweep", "job", job.Name, "sessions", len(swept))
				return swept, nil
			})
		case state.JobReset:
			return d.Apply(ctx, feed.ResetFrame())
		default:
			return fmt.Errorf("unknown job kind: %q", job.Kind)
		}
	}
}
