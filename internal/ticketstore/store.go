// Package ticketstore is the client's authoritative view of tickets. It
// merges create results and list refreshes that may complete in any order
// and applies analysis results in memory.
package ticketstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/triagekit/triage/pkg/protocol"
)

var (
	// ErrCreateFailed wraps every failure of Store.Create.
	ErrCreateFailed = errors.New("create tickets failed")
	// ErrLoadFailed wraps every failure of Store.Refresh.
	ErrLoadFailed = errors.New("load tickets failed")
)

// API is the subset of the ticket service the store needs.
type API interface {
	CreateTickets(ctx context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error)
	ListTickets(ctx context.Context) ([]protocol.Ticket, error)
}

// Store holds tickets in insertion order. It is safe for concurrent use.
type Store struct {
	api    API
	logger *slog.Logger

	mu      sync.Mutex
	tickets []protocol.Ticket
	index   map[int64]int

	// Refresh bookkeeping. issued numbers each Refresh call, applied is the
	// number of the newest refresh whose result was merged. While refreshes
	// are in flight, createdAt records the issue counter at the moment a
	// ticket was appended by Create so a slower list result cannot drop it.
	issued    uint64
	applied   uint64
	inflight  int
	createdAt map[int64]uint64
}

// New creates an empty store backed by api.
func New(api API, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:       api,
		logger:    logger,
		index:     make(map[int64]int),
		createdAt: make(map[int64]uint64),
	}
}

// Create sends records to the service and appends the created tickets in the
// order the service returned them. On failure the store is unchanged.
func (s *Store) Create(ctx context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error) {
	created, err := s.api.CreateTickets(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	s.mu.Lock()
	added := 0
	for _, t := range created {
		if _, exists := s.index[t.ID]; exists {
			continue
		}
		s.appendLocked(t)
		if s.inflight > 0 {
			s.createdAt[t.ID] = s.issued
		}
		added++
	}
	s.mu.Unlock()

	s.logger.Debug("tickets created", "returned", len(created), "added", added)
	return created, nil
}

// Refresh replaces the collection with the service's list. Tickets created
// while the refresh was in flight survive even when the list predates them,
// analyzed tickets are never downgraded to pending, and a result older than
// one already applied is discarded. On failure the collection is untouched.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.inflight++
	s.mu.Unlock()

	listed, err := s.api.ListTickets(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.finishRefreshLocked()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if seq < s.applied {
		s.logger.Debug("discarding stale ticket list", "seq", seq, "applied", s.applied)
		return nil
	}

	next := make([]protocol.Ticket, 0, len(listed))
	nextIndex := make(map[int64]int, len(listed))
	for _, t := range listed {
		if _, dup := nextIndex[t.ID]; dup {
			continue
		}
		if i, ok := s.index[t.ID]; ok && s.tickets[i].IsAnalyzed() && !t.IsAnalyzed() {
			t = s.tickets[i]
		}
		nextIndex[t.ID] = len(next)
		next = append(next, t)
	}

	// Keep tickets this client created after the refresh was issued.
	kept := 0
	for _, t := range s.tickets {
		if _, ok := nextIndex[t.ID]; ok {
			continue
		}
		if at, ok := s.createdAt[t.ID]; ok && at >= seq {
			nextIndex[t.ID] = len(next)
			next = append(next, t)
			kept++
		}
	}

	s.tickets = next
	s.index = nextIndex
	s.applied = seq
	s.logger.Debug("tickets refreshed", "listed", len(listed), "kept_local", kept)
	return nil
}

func (s *Store) finishRefreshLocked() {
	s.inflight--
	if s.inflight == 0 {
		clear(s.createdAt)
	}
}

// ApplyAnalysis marks every ticket referenced by run as analyzed with its
// category, priority and notes. Unknown ticket ids are ignored. Applying the
// same run twice has no further effect.
func (s *Store) ApplyAnalysis(run *protocol.AnalysisRun) {
	if run == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, ta := range run.TicketAnalyses {
		i, ok := s.index[ta.TicketID]
		if !ok {
			continue
		}
		t := &s.tickets[i]
		t.Category = ta.Category
		t.Priority = ta.Priority
		t.Notes = ta.Notes
		t.Status = protocol.TicketAnalyzed
		applied++
	}
	s.logger.Debug("analysis applied", "run", run.ID, "analyses", len(run.TicketAnalyses), "applied", applied)
}

func (s *Store) appendLocked(t protocol.Ticket) {
	if t.Status == "" {
		t.Status = protocol.TicketPending
	}
	s.index[t.ID] = len(s.tickets)
	s.tickets = append(s.tickets, t)
}

// Pending returns pending tickets in insertion order.
func (s *Store) Pending() []protocol.Ticket {
	return s.filter(protocol.TicketPending)
}

// Analyzed returns analyzed tickets in insertion order.
func (s *Store) Analyzed() []protocol.Ticket {
	return s.filter(protocol.TicketAnalyzed)
}

func (s *Store) filter(status protocol.TicketStatus) []protocol.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []protocol.Ticket{}
	for _, t := range s.tickets {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// All returns every ticket in insertion order.
func (s *Store) All() []protocol.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Ticket, len(s.tickets))
	copy(out, s.tickets)
	return out
}

// Get returns the ticket with the given id.
func (s *Store) Get(id int64) (protocol.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return protocol.Ticket{}, false
	}
	return s.tickets[i], true
}

// Len returns the number of tickets held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
