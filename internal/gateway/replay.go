package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/monitor"
)

// ReplayStats summarizes one capture replay.
type ReplayStats struct {
	Frames  int
	Lines   int
	Skipped int
}

// Replay applies every frame of a JSONL capture through the writer goroutine,
// one at a time and in file order. In strict mode the first malformed line
// stops the replay; frames applied before it stay applied.
func (d *Dispatcher) Replay(ctx context.Context, r io.Reader, strict bool) (ReplayStats, error) {
	var stats ReplayStats
	reader := feed.NewReader(r, strict)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		frame, err := reader.Next()
		stats.Lines, stats.Skipped = reader.Line(), reader.Skipped()
		if errors.Is(err, io.EOF) {
			slog.Info("replay finished", "frames", stats.Frames, "lines", stats.Lines, "skipped", stats.Skipped)
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("replay: %w", err)
		}
		err = d.Do(ctx, func(m *monitor.Monitor) error {
			return m.Apply(frame)
		})
		if err != nil {
			return stats, fmt.Errorf("replay line %d: %w", stats.Lines, err)
		}
		stats.Frames++
	}
}
