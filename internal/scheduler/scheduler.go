// Package scheduler runs analysis over pending tickets on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/triagekit/triage/internal/metrics"
	"github.com/triagekit/triage/pkg/protocol"
)

// Analyzer runs an analysis over pending tickets.
type Analyzer interface {
	Run(ctx context.Context, ids []int64) (*protocol.AnalysisRun, error)
}

// RunNotifier is told about scheduled runs that classified something.
type RunNotifier interface {
	NotifyRun(ctx context.Context, run *protocol.AnalysisRun) error
}

// Scheduler manages named cron jobs that trigger analysis runs.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	analyzer Analyzer
	notifier RunNotifier
	ctx      context.Context
	logger   *slog.Logger
}

// New creates a new scheduler. notifier may be nil.
func New(analyzer Analyzer, notifier RunNotifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		// A slow run makes the next tick a no-op instead of queueing behind it.
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:     make(map[string]cron.EntryID),
		analyzer: analyzer,
		notifier: notifier,
		ctx:      context.Background(),
		logger:   logger.With("component", "scheduler"),
	}
}

// Start begins the cron scheduler. Blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// AddJob registers a schedule under name, replacing any job with that name.
// The schedule is a standard 5-field cron expression or a descriptor such
// as @every 1h or @daily.
func (s *Scheduler) AddJob(name, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() {
		s.logger.Info("cron fired", "job", name)
		s.Trigger(s.runContext())
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = id
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// RemoveJob removes the named job. Unknown names are ignored.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobCount returns the number of scheduled jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Trigger runs one analysis over every pending ticket and forwards the
// result to the notifier when the run classified at least one ticket.
func (s *Scheduler) Trigger(ctx context.Context) (*protocol.AnalysisRun, error) {
	run, err := s.analyzer.Run(ctx, nil)
	if err != nil {
		metrics.ScheduledRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("scheduled analysis failed", "error", err)
		return nil, fmt.Errorf("scheduler: run: %w", err)
	}
	if len(run.TicketAnalyses) == 0 {
		metrics.ScheduledRunsTotal.WithLabelValues("empty").Inc()
		s.logger.Debug("scheduled analysis found nothing pending", "run", run.ID)
		return run, nil
	}

	metrics.ScheduledRunsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("scheduled analysis complete", "run", run.ID, "tickets", len(run.TicketAnalyses))
	if s.notifier != nil {
		if err := s.notifier.NotifyRun(ctx, run); err != nil {
			s.logger.Warn("run notification failed", "run", run.ID, "error", err)
		}
	}
	return run, nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
