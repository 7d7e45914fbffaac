// internal/scheduler/scheduler_test.go
package scheduler

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/clawmon/internal/state"
)

func TestSchedulerFiresJob(t *testing.T) {
	dir := t.TempDir()
	store := state.NewJobStore(filepath.Join(dir, "jobs.json"))

	job := &state.Job{
		Name:     "every-second",
		Kind:     state.JobIdleSweep,
		Schedule: "* * * * * *",
		Enabled:  true,
	}
	if err := store.Add(job); err != nil {
		t.Fatal(err)
	}

	var fires atomic.Int32
	var gotName atomic.Value
	runner := func(j state.Job) error {
		gotName.Store(j.Name)
		fires.Add(1)
		return nil
	}

	sched := New(store, runner)
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("runner did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				if name := gotName.Load(); name != "every-second" {
					t.Errorf("expected job every-second, got %v", name)
				}
				return
			}
		}
	}
}

func TestSchedulerSkipsDisabled(t *testing.T) {
	dir := t.TempDir()
	store := state.NewJobStore(filepath.Join(dir, "jobs.json"))

	job := &state.Job{
		Name:     "disabled-job",
		Kind:     state.JobReset,
		Schedule: "* * * * * *",
		Enabled:  false,
	}
	if err := store.Add(job); err != nil {
		t.Fatal(err)
	}

	sched := New(store, func(state.Job) error { return nil })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if n := sched.Entries(); n != 0 {
		t.Errorf("expected 0 entries for disabled job, got %d", n)
	}
}

func TestSchedulerSkipsInvalidSchedule(t *testing.T) {
	dir := t.TempDir()
	store := state.NewJobStore(filepath.Join(dir, "jobs.json"))

	for _, job := range []*state.Job{
		{Name: "bad", Kind: state.JobReset, Schedule: "not a cron", Enabled: true},
		{Name: "empty", Kind: state.JobReset, Schedule: "", Enabled: true},
		{Name: "nightly", Kind: state.JobReset, Schedule: "@daily", Enabled: true},
	} {
		if err := store.Add(job); err != nil {
			t.Fatal(err)
		}
	}

	sched := New(store, func(state.Job) error { return nil })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if n := sched.Entries(); n != 1 {
		t.Errorf("expected 1 entry, got %d", n)
	}
}

func TestSchedulerReload(t *testing.T) {
	dir := t.TempDir()
	store := state.NewJobStore(filepath.Join(dir, "jobs.json"))

	sched := New(store, func(state.Job) error { return nil })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if err := store.Add(&state.Job{Name: "sweep", Kind: state.JobIdleSweep, Schedule: "*/5 * * * *", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Reload(); err != nil {
		t.Fatal(err)
	}
	if n := sched.Entries(); n != 1 {
		t.Errorf("expected 1 entry after reload, got %d", n)
	}
}

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"* * * * *", "*/10 * * * * *", "@hourly"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Errorf("expected %q to parse: %v", ok, err)
		}
	}
	if err := ValidateSchedule("every tuesday"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
