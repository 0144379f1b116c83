// Package scheduler runs the manifest's schedules on their intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/omarluq/tapline/internal/health"
	"github.com/omarluq/tapline/internal/manifest"
	"github.com/omarluq/tapline/internal/runner"
)

// ErrScheduleNotFound is returned for an unknown schedule name.
var ErrScheduleNotFound = errors.New("scheduler: schedule not found")

// JobRunner executes one pipeline run.
type JobRunner interface {
	Run(ctx context.Context, job runner.Job) (*runner.Result, error)
}

// Entry is a schedule with its parsed interval.
type Entry struct {
	Schedule manifest.Schedule
	Interval manifest.Interval
}

// Job returns the pipeline job the entry runs.
func (e Entry) Job(environment string) runner.Job {
	return runner.Job{
		Extractor:   e.Schedule.Extractor,
		Loader:      e.Schedule.Loader,
		Environment: environment,
	}
}

// Scheduler runs entries on their intervals, each behind its own circuit breaker.
type Scheduler struct {
	runner      JobRunner
	tracker     *health.Tracker
	logger      *zerolog.Logger
	metrics     *Metrics
	after       func(time.Duration) <-chan time.Time
	now         func() time.Time
	environment string
	entries     []Entry
	breaker     health.CircuitBreakerConfig
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEnvironment sets the environment jobs run in.
func WithEnvironment(name string) Option {
	return func(s *Scheduler) { s.environment = name }
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithBreaker sets the per-schedule circuit breaker configuration.
func WithBreaker(cfg health.CircuitBreakerConfig) Option {
	return func(s *Scheduler) { s.breaker = cfg }
}

// WithLogger logs circuit breaker transitions to logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New parses the schedules of project. Invalid intervals are an error.
func New(project *manifest.Project, r JobRunner, opts ...Option) (*Scheduler, error) {
	entries := make([]Entry, 0, len(project.Schedules))
	for _, sched := range project.Schedules {
		iv, err := manifest.ParseInterval(sched.Interval)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
		}
		entries = append(entries, Entry{Schedule: sched, Interval: iv})
	}

	s := &Scheduler{
		runner:  r,
		entries: entries,
		after:   time.After,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = health.NewTracker(s.breaker, s.logger, s.onCircuitChange)
	if s.metrics != nil {
		for _, entry := range entries {
			s.metrics.CircuitOpen.WithLabelValues(entry.Schedule.Name).Set(0)
		}
	}
	return s, nil
}

// Entries returns the parsed schedules.
func (s *Scheduler) Entries() []Entry {
	return s.entries
}

// Tracker exposes the per-schedule circuit breakers.
func (s *Scheduler) Tracker() *health.Tracker {
	return s.tracker
}

// Entry returns the schedule with the given name.
func (s *Scheduler) Entry(name string) (Entry, error) {
	entry, ok := lo.Find(s.entries, func(e Entry) bool { return e.Schedule.Name == name })
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, name)
	}
	return entry, nil
}

// Run runs every schedule immediately and then on its interval until ctx ends.
// @once schedules run a single time. Run returns nil once every loop has stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range s.entries {
		g.Go(func() error {
			s.loop(gctx, entry)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, entry Entry) {
	logger := zerolog.Ctx(ctx).With().Str("schedule", entry.Schedule.Name).Logger()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.RunOnce(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug().Err(err).Msg("scheduled run did not succeed")
		}
		if entry.Interval.Once {
			return
		}

		logger.Debug().Time("next_run", s.now().Add(entry.Interval.Every)).Msg("waiting for next run")
		select {
		case <-ctx.Done():
			return
		case <-s.after(entry.Interval.Every):
		}
	}
}

// RunOnce runs entry through its circuit breaker and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context, entry Entry) error {
	name := entry.Schedule.Name
	logger := zerolog.Ctx(ctx).With().Str("schedule", name).Logger()
	cb := s.tracker.GetOrCreateCircuit(name)

	start := s.now()
	err := cb.Execute(func() error {
		_, runErr := s.runner.Run(ctx, entry.Job(s.environment))
		return runErr
	})

	switch {
	case errors.Is(err, health.ErrCircuitOpen):
		logger.Warn().Msg("circuit open, skipping run")
		s.observe(name, OutcomeSkipped, 0)
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("scheduled run interrupted")
		s.observe(name, OutcomeCanceled, 0)
	case err != nil:
		logger.Error().Err(err).Msg("scheduled run failed")
		s.observe(name, OutcomeFailed, s.now().Sub(start))
	default:
		s.observe(name, OutcomeSuccess, s.now().Sub(start))
	}
	return err
}

func (s *Scheduler) observe(schedule, outcome string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RunsTotal.WithLabelValues(schedule, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailed {
		s.metrics.RunDuration.WithLabelValues(schedule).Observe(d.Seconds())
	}
}

func (s *Scheduler) onCircuitChange(name string, _, to health.State) {
	if s.metrics == nil {
		return
	}
	open := 0.0
	if to == health.StateOpen {
		open = 1
	}
	s.metrics.CircuitOpen.WithLabelValues(name).Set(open)
}
