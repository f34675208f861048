// Package analyzer classifies pending tickets and records analysis runs.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/triagekit/triage/internal/metrics"
	"github.com/triagekit/triage/internal/provider"
	"github.com/triagekit/triage/internal/ticket"
	"github.com/triagekit/triage/pkg/protocol"
)

const (
	// InProgressSummary is stored on a run until it completes.
	InProgressSummary = "Analysis in progress..."
	// EmptySummary is the summary of a run that found no pending tickets.
	EmptySummary = "No tickets to analyze."

	DefaultConcurrency = 5
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithProvider enables LLM classification and summaries. Without a provider
// every ticket is classified by keywords.
func WithProvider(p provider.Provider) Option {
	return func(a *Analyzer) { a.llm = p }
}

// WithConcurrency bounds the number of tickets classified at once.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// Analyzer runs the fetch, classify, summarize and save pipeline. Runs are
// serialized.
type Analyzer struct {
	store       ticket.Store
	llm         provider.Provider
	concurrency int
	logger      *slog.Logger

	runMu sync.Mutex
}

// New creates an Analyzer backed by store.
func New(store ticket.Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:       store,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With("component", "analyzer")
	return a
}

// Run analyzes the pending tickets among ids, or all pending tickets when ids
// is empty, and returns the completed run.
func (a *Analyzer) Run(ctx context.Context, ids []int64) (*protocol.AnalysisRun, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	start := time.Now()
	run, err := a.run(ctx, ids)
	metrics.AnalysisRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.AnalysisRunsTotal.WithLabelValues("success").Inc()
	return run, nil
}

func (a *Analyzer) run(ctx context.Context, ids []int64) (done *protocol.AnalysisRun, err error) {
	run, err := a.store.CreateRun(ctx, InProgressSummary)
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		// The placeholder run must not outlive a failed pipeline.
		if derr := a.store.DeleteRun(context.WithoutCancel(ctx), run.ID); derr != nil {
			a.logger.Warn("failed to discard unfinished run", "run", run.ID, "error", derr)
		}
	}()

	tickets, err := a.store.ListTickets(ctx, ticket.Pending(ids...))
	if err != nil {
		return nil, fmt.Errorf("analyzer: fetch tickets: %w", err)
	}
	a.logger.Info("analysis started", "run", run.ID, "tickets", len(tickets), "requested", len(ids))

	if len(tickets) == 0 {
		done, err = a.store.CompleteRun(ctx, run.ID, EmptySummary, nil)
		if err != nil {
			return nil, fmt.Errorf("analyzer: save results: %w", err)
		}
		return done, nil
	}

	results := a.classifyAll(ctx, tickets)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}
	summary := a.summarize(ctx, tickets, results)

	analyses := make([]protocol.TicketAnalysis, 0, len(tickets))
	for i, t := range tickets {
		r := results[i]
		if r == nil {
			continue
		}
		analyses = append(analyses, protocol.TicketAnalysis{
			AnalysisRunID: run.ID,
			TicketID:      t.ID,
			Category:      r.Category,
			Priority:      r.Priority,
			Notes:         r.Notes,
		})
	}

	done, err = a.store.CompleteRun(ctx, run.ID, summary, analyses)
	if err != nil {
		return nil, fmt.Errorf("analyzer: save results: %w", err)
	}
	a.logger.Info("analysis complete", "run", run.ID, "analyzed", len(analyses))
	return done, nil
}

// classifyAll classifies tickets with at most a.concurrency in flight. The
// result slice is index-aligned with tickets.
func (a *Analyzer) classifyAll(ctx context.Context, tickets []protocol.Ticket) []*Classification {
	results := make([]*Classification, len(tickets))
	sem := make(chan struct{}, a.concurrency)

	var wg sync.WaitGroup
	for i, t := range tickets {
		wg.Add(1)
		go func(idx int, t protocol.Ticket) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			c := a.classify(ctx, t)
			results[idx] = &c
		}(i, t)
	}
	wg.Wait()
	return results
}

func (a *Analyzer) classify(ctx context.Context, t protocol.Ticket) Classification {
	if a.llm != nil {
		c, err := classifyWithLLM(ctx, a.llm, t)
		if err == nil {
			metrics.ClassificationsTotal.WithLabelValues("llm", c.Category).Inc()
			a.logger.Debug("ticket classified", "ticket", t.ID, "category", c.Category, "source", "llm")
			return c
		}
		a.logger.Warn("llm classification failed, using keywords", "ticket", t.ID, "error", err)
	}
	c := ClassifyKeywords(t)
	metrics.ClassificationsTotal.WithLabelValues("keyword", c.Category).Inc()
	return c
}

func (a *Analyzer) summarize(ctx context.Context, tickets []protocol.Ticket, results []*Classification) string {
	if a.llm != nil {
		summary, err := summarizeWithLLM(ctx, a.llm, tickets)
		if err == nil {
			metrics.SummariesTotal.WithLabelValues("llm").Inc()
			return summary
		}
		a.logger.Warn("llm summary failed, using counts", "error", err)
	}
	metrics.SummariesTotal.WithLabelValues("counts").Inc()
	return SummarizeCounts(len(tickets), results)
}
