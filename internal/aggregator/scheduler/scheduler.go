// Package scheduler runs the periodic scrape, summarize and cleanup jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job represents a scheduled task.
type Job struct {
	Name     string
	Schedule string // cron expression like "0 3 * * *" or "@every 4h"
	Fn       func(ctx context.Context) error
}

// Intervals configures the built-in jobs.
type Intervals struct {
	Scrape    time.Duration `yaml:"scrape" env:"SCRAPE_INTERVAL"`
	Summarize time.Duration `yaml:"summarize" env:"SUMMARIZE_INTERVAL"`
	Cleanup   string        `yaml:"cleanup" env:"CLEANUP_SCHEDULE"`
}

// DefaultIntervals returns the production schedule.
func DefaultIntervals() Intervals {
	return Intervals{
		Scrape:    4 * time.Hour,
		Summarize: 4*time.Hour + 30*time.Minute,
		Cleanup:   "0 3 * * *",
	}
}

// Every returns the cron spec for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name      string     `json:"id"`
	Schedule  string     `json:"schedule"`
	NextRun   *time.Time `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status is the scheduler state with its jobs.
type Status struct {
	Status string      `json:"status"`
	Jobs   []JobStatus `json:"jobs"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	lastRun *time.Time
	lastErr string
}

// Scheduler runs jobs on their cron schedules. Overlapping runs of the
// same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job.
func (s *Scheduler) Add(job Job) error {
	if job.Fn == nil {
		return fmt.Errorf("job %s has no function", job.Name)
	}
	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.run(e) })
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name, err)
	}
	e.id = id

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) run(e *entry) {
	s.logger.Info("running job", "name", e.job.Name)
	start := time.Now()
	err := e.job.Fn(s.ctx)

	s.mu.Lock()
	now := time.Now().UTC()
	e.lastRun = &now
	e.lastErr = ""
	if err != nil {
		e.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "name", e.job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("job completed", "name", e.job.Name, "duration", time.Since(start))
}

// RunNow executes the named job once, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	var found *entry
	for _, e := range s.entries {
		if e.job.Name == name {
			found = e
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	s.run(found)
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop stops scheduling and waits for running jobs until ctx is done.
// Running jobs see their context cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Jobs reports the scheduler state and each job's next run.
func (s *Scheduler) Jobs() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Status: "stopped", Jobs: make([]JobStatus, 0, len(s.entries))}
	if s.running {
		st.Status = "running"
	}
	for _, e := range s.entries {
		js := JobStatus{Name: e.job.Name, Schedule: e.job.Schedule, LastRun: e.lastRun, LastError: e.lastErr}
		if next := s.cron.Entry(e.id).Next; s.running && !next.IsZero() {
			js.NextRun = &next
		}
		st.Jobs = append(st.Jobs, js)
	}
	return st
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
