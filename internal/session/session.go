// Package session wires user actions to the ticket store, the analysis
// reconciler and the notification queue. It is the only place where errors
// become user-facing notifications.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/triagekit/triage/internal/analysis"
	"github.com/triagekit/triage/internal/bulk"
	"github.com/triagekit/triage/internal/view"
	"github.com/triagekit/triage/pkg/protocol"
)

// Notification messages.
const (
	MsgCreateFailed   = "Failed to create tickets"
	MsgLoadFailed     = "Failed to load tickets"
	MsgAnalysisFailed = "Failed to run analysis"
	MsgAlreadyRunning = "An analysis is already in progress"
	MsgNoValidTickets = "No valid tickets found in input"
	MsgInvalidJSON    = "Invalid JSON file"
	MsgInvalidYAML    = "Invalid YAML file"
)

// Tickets is the ticket store as seen by the session.
type Tickets interface {
	Create(ctx context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error)
	Refresh(ctx context.Context) error
}

// Analyzer is the analysis reconciler as seen by the session.
type Analyzer interface {
	Run(ctx context.Context, ids ...int64) (*protocol.AnalysisRun, error)
	LoadLatest(ctx context.Context) (*protocol.AnalysisRun, error)
}

// Notifier receives user-facing messages. *notify.Queue satisfies it.
type Notifier interface {
	Success(message string) string
	Error(message string) string
	Warning(message string) string
	Info(message string) string
}

// Session tracks loading flags and maps outcomes to notifications. It is
// safe for concurrent use.
type Session struct {
	tickets  Tickets
	analyzer Analyzer
	notes    Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	refreshes int
	creates   int
	analyses  int
}

// New creates a Session.
func New(tickets Tickets, analyzer Analyzer, notes Notifier, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		tickets:  tickets,
		analyzer: analyzer,
		notes:    notes,
		logger:   logger.With("component", "session"),
	}
}

// Loading returns a snapshot of the in-flight flags. A flag stays set while
// any call of its kind is still running.
func (s *Session) Loading() view.Loading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return view.Loading{
		Tickets:   s.refreshes > 0,
		Creating:  s.creates > 0,
		Analyzing: s.analyses > 0,
	}
}

// track increments *n and returns a func that decrements it.
func (s *Session) track(n *int) func() {
	s.mu.Lock()
	*n++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		*n--
		s.mu.Unlock()
	}
}

// Start loads tickets and the latest analysis. A failure to load the latest
// analysis is only logged.
func (s *Session) Start(ctx context.Context) error {
	err := s.Refresh(ctx)
	if _, lerr := s.analyzer.LoadLatest(ctx); lerr != nil {
		s.logger.Info("no previous analysis loaded", "error", lerr)
	}
	return err
}

// Refresh reloads the ticket list.
func (s *Session) Refresh(ctx context.Context) error {
	defer s.track(&s.refreshes)()

	if err := s.tickets.Refresh(ctx); err != nil {
		s.logger.Warn("refresh failed", "error", err)
		s.notes.Error(MsgLoadFailed)
		return err
	}
	return nil
}

// Submit creates records.
func (s *Session) Submit(ctx context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error) {
	if len(records) == 0 {
		s.notes.Warning(MsgNoValidTickets)
		return nil, bulk.ErrNoValidRecords
	}

	defer s.track(&s.creates)()

	created, err := s.tickets.Create(ctx, records)
	if err != nil {
		s.logger.Warn("create failed", "records", len(records), "error", err)
		s.notes.Error(MsgCreateFailed)
		return nil, err
	}
	s.notes.Success(createdMessage(len(created)))
	return created, nil
}

// SubmitText parses freeform text and creates the resulting records. Text
// without any valid record produces a warning and no service call.
func (s *Session) SubmitText(ctx context.Context, text string) ([]protocol.Ticket, error) {
	return s.Submit(ctx, bulk.ParseText(text))
}

// SubmitFile parses an uploaded file by name and creates its records.
func (s *Session) SubmitFile(ctx context.Context, name string, data []byte) ([]protocol.Ticket, error) {
	records, err := bulk.ParseFile(name, data)
	if err != nil {
		s.logger.Warn("upload rejected", "file", name, "error", err)
		s.notes.Error(parseMessage(err))
		return nil, err
	}
	return s.Submit(ctx, records)
}

// Analyze runs an analysis over ids, or over every pending ticket when ids is
// empty, then reloads the ticket list.
func (s *Session) Analyze(ctx context.Context, ids ...int64) (*protocol.AnalysisRun, error) {
	defer s.track(&s.analyses)()

	run, err := s.analyzer.Run(ctx, ids...)
	if errors.Is(err, analysis.ErrAlreadyRunning) {
		s.notes.Warning(MsgAlreadyRunning)
		return nil, err
	}
	if err != nil {
		s.logger.Warn("analysis failed", "error", err)
		s.notes.Error(MsgAnalysisFailed)
		return nil, err
	}
	s.notes.Success(analyzedMessage(len(run.TicketAnalyses)))

	// Refresh failures are reported by Refresh; the run itself succeeded.
	_ = s.Refresh(ctx)
	return run, nil
}

func createdMessage(n int) string {
	if n == 1 {
		return "Created 1 ticket"
	}
	return fmt.Sprintf("Created %d tickets", n)
}

func analyzedMessage(n int) string {
	if n == 1 {
		return "Analysis complete: 1 ticket analyzed"
	}
	return fmt.Sprintf("Analysis complete: %d tickets analyzed", n)
}

func parseMessage(err error) string {
	switch {
	case errors.Is(err, bulk.ErrMalformedJSON):
		return MsgInvalidJSON
	case errors.Is(err, bulk.ErrMalformedYAML):
		return MsgInvalidYAML
	default:
		return MsgNoValidTickets
	}
}
