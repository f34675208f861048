package tui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/triagekit/triage/internal/analysis"
	"github.com/triagekit/triage/internal/notify"
	"github.com/triagekit/triage/internal/session"
	"github.com/triagekit/triage/internal/ticketstore"
	"github.com/triagekit/triage/internal/view"
)

// API is the remote service the dashboard talks to.
// *apiclient.Client satisfies it.
type API interface {
	ticketstore.API
	analysis.API
}

// Options configures Run.
type Options struct {
	PendingPageSize      int
	AnalyzedPageSize     int
	NotificationDuration time.Duration
	Logger               *slog.Logger
}

// Run wires the client-side state around api and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, api API, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	changes := make(chan struct{}, 1)
	notes := notify.New(
		notify.WithDefaultDuration(opts.NotificationDuration),
		notify.WithOnChange(func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		}),
	)
	defer notes.Close()

	tickets := ticketstore.New(api, logger)
	runs := analysis.New(api, tickets, logger)
	sess := session.New(tickets, runs, notes, logger)
	coord := view.New(tickets, runs, sess, view.WithPageSizes(opts.PendingPageSize, opts.AnalyzedPageSize))

	p := tea.NewProgram(NewModel(ctx, sess, coord, notes, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
