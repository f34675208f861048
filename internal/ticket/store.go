// Package ticket persists tickets and analysis runs for the server.
package ticket

import (
	"context"
	"errors"

	"github.com/triagekit/triage/pkg/protocol"
)

// ErrNotFound is returned when a ticket or run does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for tickets and analysis runs.
type Store interface {
	// CreateTickets inserts records atomically and returns them in order.
	CreateTickets(ctx context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error)
	// GetTicket retrieves a ticket by id.
	GetTicket(ctx context.Context, id int64) (*protocol.Ticket, error)
	// ListTickets returns tickets matching the filter, oldest first.
	ListTickets(ctx context.Context, filter Filter) ([]protocol.Ticket, error)
	// CountTickets returns the number of tickets matching the filter.
	CountTickets(ctx context.Context, filter Filter) (int, error)

	// CreateRun starts a run with a placeholder summary.
	CreateRun(ctx context.Context, summary string) (*protocol.AnalysisRun, error)
	// CompleteRun saves analyses, marks their tickets analyzed and sets the
	// run summary in one transaction.
	CompleteRun(ctx context.Context, runID int64, summary string, analyses []protocol.TicketAnalysis) (*protocol.AnalysisRun, error)
	// DeleteRun removes a run and its analyses.
	DeleteRun(ctx context.Context, id int64) error
	// LatestRun returns the newest completed run with its analyses. Runs
	// still in progress are skipped.
	LatestRun(ctx context.Context) (*protocol.AnalysisRun, error)
	// GetRun returns a run with its analyses.
	GetRun(ctx context.Context, id int64) (*protocol.AnalysisRun, error)
}

// Filter constrains ticket queries.
type Filter struct {
	Status *protocol.TicketStatus
	IDs    []int64 // empty = any id
	Limit  int     // 0 = no limit
}

// Pending returns a filter for pending tickets, optionally restricted to ids.
func Pending(ids ...int64) Filter {
	st := protocol.TicketPending
	return Filter{Status: &st, IDs: ids}
}
