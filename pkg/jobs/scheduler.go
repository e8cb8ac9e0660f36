package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named task run on a cron schedule.
type Job struct {
	Name string

	// Schedule is a standard five-field cron expression, e.g. "0 3 * * *".
	Schedule string

	Run func(ctx context.Context) error
}

// Scheduler runs jobs on their schedules.
type Scheduler struct {
	cron    *cron.Cron
	jobs    []Job
	entries map[string]cron.EntryID
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		logger:  logger.With("component", "jobs.scheduler"),
	}
}

// Add registers a job. It must be called before Start.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot add job %q to a running scheduler", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q for job %q: %w", job.Schedule, job.Name, err)
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("duplicate job %q", job.Name)
		}
	}

	s.jobs = append(s.jobs, job)
	return nil
}

// Start schedules every registered job. The scheduler stops when ctx is
// cancelled. Starting with no jobs does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if len(s.jobs) == 0 {
		s.logger.Info("no jobs configured, skipping scheduler")
		return nil
	}

	for _, job := range s.jobs {
		job := job
		id, err := s.cron.AddFunc(job.Schedule, func() {
			s.run(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule job %q: %w", job.Name, err)
		}
		s.entries[job.Name] = id
		s.logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("scheduled job failed",
			"job", job.Name,
			"error", err)
		return
	}
	s.logger.Debug("scheduled job completed",
		"job", job.Name,
		"duration", time.Since(start))
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			found = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return found.Run(ctx)
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run of the named job, or nil when the
// job is not scheduled.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	return &next
}
