package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/monitor"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("dispatcher stopped")

const defaultLaneSize = 1024

type job struct {
	frames []*feed.Frame
	fn     func(*monitor.Monitor) ([]*feed.Frame, error)
	record bool
	done   chan error
}

// Dispatcher serializes every mutation of the monitor's tables onto one
// goroutine. Frames from the HTTP feed, capture replays and scheduled jobs
// all pass through the same FIFO lane, so the tables only ever see a single
// writer and per-run delivery order is preserved. Captured frames are written
// on that goroutine too, so a capture lists frames in the order they were
// applied.
type Dispatcher struct {
	monitor  *monitor.Monitor
	recorder *feed.Recorder
	lane     chan *job
	pending  atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// New creates a Dispatcher whose lane buffers up to size jobs.
func New(m *monitor.Monitor, size int) *Dispatcher {
	if size <= 0 {
		size = defaultLaneSize
	}
	return &Dispatcher{
		monitor: m,
		lane:    make(chan *job, size),
	}
}

// SetRecorder captures every frame applied through Enqueue, Apply or
// DoRecorded. Must be called before Start.
func (d *Dispatcher) SetRecorder(r *feed.Recorder) {
	d.recorder = r
}

// Start launches the writer goroutine. Must be called before Do.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.drain()
}

// Stop cancels the writer and waits for it to exit. Queued work that has not
// started is dropped and no longer counted as pending.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()

	dropped := 0
	for {
		select {
		case j := <-d.lane:
			d.pending.Add(-1)
			dropped++
			if j.done != nil {
				j.done <- ErrStopped
			}
		default:
			if dropped > 0 {
				slog.Warn("dispatcher stopped with queued work", "dropped", dropped)
			}
			return
		}
	}
}

// Enqueue queues a frame without waiting for it to be applied. Returns an
// error if the lane is full.
func (d *Dispatcher) Enqueue(frame *feed.Frame) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	d.pending.Add(1)
	select {
	case d.lane <- &job{frames: []*feed.Frame{frame}, record: true}:
		return nil
	default:
		d.pending.Add(-1)
		return fmt.Errorf("dispatch lane full (%d pending)", cap(d.lane))
	}
}

// Do runs fn on the writer goroutine and waits for its result. Nothing is
// captured.
func (d *Dispatcher) Do(ctx context.Context, fn func(*monitor.Monitor) error) error {
	return d.submit(ctx, &job{fn: func(m *monitor.Monitor) ([]*feed.Frame, error) {
		return nil, fn(m)
	}})
}

// DoRecorded runs fn on the writer goroutine like Do. The frames fn returns
// describe the changes it made and are captured before the next job runs.
func (d *Dispatcher) DoRecorded(ctx context.Context, fn func(*monitor.Monitor) ([]*feed.Frame, error)) error {
	return d.submit(ctx, &job{fn: fn, record: true})
}

// Apply applies and captures frames on the writer goroutine and waits until
// they are done. It returns the last frame error.
func (d *Dispatcher) Apply(ctx context.Context, frames ...*feed.Frame) error {
	return d.submit(ctx, &job{frames: frames, record: true})
}

func (d *Dispatcher) submit(ctx context.Context, j *job) error {
	j.done = make(chan error, 1)

	d.mu.RLock()
	if d.stopped || d.ctx == nil {
		d.mu.RUnlock()
		return ErrStopped
	}
	d.pending.Add(1)
	select {
	case d.lane <- j:
	case <-ctx.Done():
		d.pending.Add(-1)
		d.mu.RUnlock()
		return ctx.Err()
	case <-d.ctx.Done():
		d.pending.Add(-1)
		d.mu.RUnlock()
		return ErrStopped
	}
	d.mu.RUnlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return ErrStopped
	}
}

func (d *Dispatcher) drain() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.lane:
			d.run(j)
			d.pending.Add(-1)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) run(j *job) {
	var err error
	for _, frame := range j.frames {
		if ferr := d.monitor.Apply(frame); ferr != nil {
			slog.Error("frame failed", "kind", string(frame.Kind), "error", ferr)
			err = ferr
			continue
		}
		if j.record {
			d.capture(frame)
		}
	}
	if j.fn != nil {
		var changed []*feed.Frame
		changed, err = j.fn(d.monitor)
		if j.record {
			for _, frame := range changed {
				d.capture(frame)
			}
		}
	}
	if j.done != nil {
		j.done <- err
	}
}

func (d *Dispatcher) capture(frame *feed.Frame) {
	if d.recorder == nil || len(frame.Raw) == 0 {
		return
	}
	if err := d.recorder.Append(frame.Raw); err != nil {
		slog.Error("record frame failed", "kind", string(frame.Kind), "error", err)
	}
}

// Pending returns the number of queued or running jobs.
func (d *Dispatcher) Pending() int64 {
	return d.pending.Load()
}

// WaitIdle blocks until no jobs are queued or running, or the timeout
// expires. Returns true if idle, false if timed out.
func (d *Dispatcher) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if d.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
