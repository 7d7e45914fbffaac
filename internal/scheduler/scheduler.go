// internal/scheduler/scheduler.go
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/user/clawmon/internal/state"
)

// Runner executes one firing of a scheduled job.
type Runner func(job state.Job) error

// Scheduler evaluates cron expressions from the job store and fires jobs
// through a runner.
type Scheduler struct {
	store  *state.JobStore
	runner Runner
	cron   *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr parses as a cron schedule.
func ValidateSchedule(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

func New(store *state.JobStore, runner Runner) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		cron:   cron.New(cron.WithParser(cronParser)),
	}
}

// Start loads jobs from the store, registers enabled jobs that have a
// schedule as cron entries, and starts the cron ticker.
func (s *Scheduler) Start() error {
	jobs, err := s.store.List()
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if job.Schedule == "" || !job.Enabled {
			continue
		}

		j := *job
		_, err := s.cron.AddFunc(j.Schedule, func() {
			slog.Info("cron firing job", "name", j.Name, "kind", j.Kind)
			if err := s.runner(j); err != nil {
				slog.Error("job failed", "name", j.Name, "kind", j.Kind, "error", err)
			}
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", j.Name, "schedule", j.Schedule, "error", err)
			continue
		}
		slog.Info("scheduled job", "name", j.Name, "kind", j.Kind, "schedule", j.Schedule)
	}

	s.cron.Start()
	return nil
}

// Reload stops the existing cron, creates a new one, and calls Start() again.
func (s *Scheduler) Reload() error {
	s.cron.Stop()
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.Start()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
