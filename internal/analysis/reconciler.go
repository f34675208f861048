// Package analysis drives analysis runs from the client side and owns the
// pointer to the most recent run.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/triagekit/triage/pkg/protocol"
)

var (
	// ErrAnalysisFailed wraps every failure of Reconciler.Run.
	ErrAnalysisFailed = errors.New("analysis failed")
	// ErrAlreadyRunning is returned when Run is called while a run is in flight.
	ErrAlreadyRunning = errors.New("analysis already running")
)

// API is the subset of the analysis service the reconciler needs.
// LatestAnalysis returns (nil, nil) when no run exists yet.
type API interface {
	RunAnalysis(ctx context.Context, req protocol.AnalysisRequest) (*protocol.AnalysisRun, error)
	LatestAnalysis(ctx context.Context) (*protocol.AnalysisRun, error)
}

// Applier receives completed runs. *ticketstore.Store satisfies it.
type Applier interface {
	ApplyAnalysis(run *protocol.AnalysisRun)
}

// Reconciler runs analyses one at a time and applies their results.
type Reconciler struct {
	api     API
	applier Applier
	logger  *slog.Logger

	mu      sync.Mutex
	latest  *protocol.AnalysisRun
	running bool
	// runs counts completed Run calls. LoadLatest only publishes its result
	// when no run completed while it was in flight.
	runs uint64
}

// New creates a Reconciler that applies results to applier.
func New(api API, applier Applier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{api: api, applier: applier, logger: logger}
}

// Run requests an analysis of the given tickets, or of every pending ticket
// when ids is empty. On success the run is applied to the ticket store and then
// becomes the latest. On failure neither is touched.
func (r *Reconciler) Run(ctx context.Context, ids ...int64) (*protocol.AnalysisRun, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	req := protocol.AnalysisRequest{}
	if len(ids) > 0 {
		req.TicketIDs = append([]int64(nil), ids...)
	}

	run, err := r.api.RunAnalysis(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: empty response", ErrAnalysisFailed)
	}

	// Apply before publishing so Latest never shows a run the store lacks.
	r.applier.ApplyAnalysis(run)

	r.mu.Lock()
	r.latest = run
	r.runs++
	r.mu.Unlock()
	r.logger.Info("analysis run applied", "run", run.ID, "analyses", len(run.TicketAnalyses))
	return run, nil
}

// LoadLatest fetches the most recent run from the service. A missing run is
// not an error and returns nil. The result is not published when a Run
// completed while the request was in flight.
func (r *Reconciler) LoadLatest(ctx context.Context) (*protocol.AnalysisRun, error) {
	r.mu.Lock()
	startRuns := r.runs
	r.mu.Unlock()

	run, err := r.api.LatestAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("analysis: load latest: %w", err)
	}
	if run == nil {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs != startRuns {
		r.logger.Debug("discarding latest analysis superseded by a newer run", "run", run.ID)
		return r.latest, nil
	}
	r.latest = run
	return run, nil
}

// Latest returns the most recent run, or nil.
func (r *Reconciler) Latest() *protocol.AnalysisRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Running reports whether a run is in flight.
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
