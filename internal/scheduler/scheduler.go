// Package scheduler runs named tasks on cron cadences against an
// injectable clock. Each job has its own loop, so a job never overlaps
// with itself; different jobs run independently.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crypto-assistant/internal/logging"
)

// Task is the unit of work a job runs. Errors are logged and absorbed;
// the next firing is the retry.
type Task func(ctx context.Context) error

// Job binds a task to a cadence
type Job struct {
	Name     string
	Schedule cron.Schedule
	Task     Task

	// RunAtStart runs the task once StartDelay after Start, before the
	// first scheduled firing.
	RunAtStart bool
	StartDelay time.Duration
}

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a standard five-field cron spec or a descriptor
// such as "@every 5m" or "@daily". Specs without an explicit CRON_TZ are
// evaluated in loc.
func ParseSchedule(spec string, loc *time.Location) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if s, ok := schedule.(*cron.SpecSchedule); ok && loc != nil && s.Location == time.Local {
		s.Location = loc
	}
	return schedule, nil
}

// Interval returns the gap between the two runs of schedule that follow
// from. Irregular specs report only that one gap.
func Interval(schedule cron.Schedule, from time.Time) time.Duration {
	first := schedule.Next(from)
	return schedule.Next(first).Sub(first)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithLogger replaces the component logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler owns a set of jobs and their loops
type Scheduler struct {
	clock  Clock
	logger *logging.Logger

	mu      sync.Mutex
	jobs    []Job
	runs    map[string]int
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New creates an idle scheduler
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  RealClock(),
		logger: logging.WithComponent("scheduler"),
		runs:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. Jobs cannot be added after Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Schedule == nil {
		return fmt.Errorf("job %s: schedule is required", job.Name)
	}
	if job.Task == nil {
		return fmt.Errorf("job %s: task is required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("job %s: scheduler already started", job.Name)
	}
	for _, existing := range s.jobs {
		if existing.Name == job.Name {
			return fmt.Errorf("job %s: already registered", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches one loop per job. The loops stop when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}

	s.logger.WithField("jobs", len(s.jobs)).Info("Scheduler started")
	return nil
}

// Stop cancels every loop and waits for in-flight tasks to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Runs returns how many times the named job has completed
func (s *Scheduler) Runs(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[name]
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunAtStart {
		if !s.wait(ctx, job.StartDelay) {
			return
		}
		s.run(ctx, job)
	}

	for {
		now := s.clock.Now()
		next := job.Schedule.Next(now)
		if next.IsZero() {
			s.logger.WithField("job", job.Name).Warn("Schedule has no further activations")
			return
		}
		if !s.wait(ctx, next.Sub(now)) {
			return
		}
		s.run(ctx, job)
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-s.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	logger := s.logger.WithField("job", job.Name)
	start := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", fmt.Sprint(r)).Error("Job panicked")
		}
		s.mu.Lock()
		s.runs[job.Name]++
		s.mu.Unlock()
	}()

	if err := job.Task(ctx); err != nil {
		logger.WithError(err).Warn("Job failed; waiting for next firing")
		return
	}
	logger.WithField("duration", s.clock.Now().Sub(start).String()).Debug("Job finished")
}
