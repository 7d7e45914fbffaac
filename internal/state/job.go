// internal/state/job.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JobKind selects what a scheduled job does to the tables.
type JobKind string

const (
	// JobIdleSweep marks active sessions without recent activity as idle.
	JobIdleSweep JobKind = "idle_sweep"
	// JobReset clears both tables.
	JobReset JobKind = "reset"
)

func (k JobKind) Valid() bool {
	return k == JobIdleSweep || k == JobReset
}

// Job is a named maintenance action run on a cron schedule.
type Job struct {
	Name      string  `json:"name"`
	Kind      JobKind `json:"kind"`
	Schedule  string  `json:"schedule"`
	IdleAfter string  `json:"idle_after,omitempty"`
	Enabled   bool    `json:"enabled"`
}

// IdleThreshold parses IdleAfter, defaulting to five minutes.
func (j *Job) IdleThreshold() (time.Duration, error) {
	if j.IdleAfter == "" {
		return 5 * time.Minute, nil
	}
	d, err := time.ParseDuration(j.IdleAfter)
	if err != nil {
		return 0, fmt.Errorf("parse idle_after for job %s: %w", j.Name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("idle_after for job %s must be positive", j.Name)
	}
	return d, nil
}

// JobStore is a JSON-file-backed store for jobs.
type JobStore struct {
	path string
	mu   sync.RWMutex
}

func NewJobStore(path string) *JobStore {
	return &JobStore{path: path}
}

func (s *JobStore) Path() string {
	return s.path
}

// List returns all jobs. Returns an empty slice if the file doesn't exist.
func (s *JobStore) List() ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		return []*Job{}, nil
	}
	return jobs, nil
}

func (s *JobStore) Get(name string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return nil, fmt.Errorf("job not found: %s", name)
}

// Add appends a job. Names are unique and kinds must be known.
func (s *JobStore) Add(job *Job) error {
	if !job.Kind.Valid() {
		return fmt.Errorf("unknown job kind: %q", job.Kind)
	}
	if _, err := job.IdleThreshold(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range jobs {
		if existing.Name == job.Name {
			return fmt.Errorf("job already exists: %s", job.Name)
		}
	}
	return s.save(append(jobs, job))
}

func (s *JobStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	for i, job := range jobs {
		if job.Name == name {
			jobs = append(jobs[:i], jobs[i+1:]...)
			return s.save(jobs)
		}
	}
	return fmt.Errorf("job not found: %s", name)
}

func (s *JobStore) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.Name == name {
			job.Enabled = enabled
			return s.save(jobs)
		}
	}
	return fmt.Errorf("job not found: %s", name)
}

func (s *JobStore) load() ([]*Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs file: %w", err)
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("unmarshal jobs: %w", err)
	}
	return jobs, nil
}

// save writes via temp file + rename.
func (s *JobStore) save(jobs []*Job) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create jobs dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp jobs file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp jobs file: %w", err)
	}
	return nil
}
