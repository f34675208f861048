package protocol

import (
	"strings"
	"time"
)

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketPending  TicketStatus = "pending"
	TicketAnalyzed TicketStatus = "analyzed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s == TicketPending || s == TicketAnalyzed
}

// Priority is the urgency assigned to a ticket by an analysis run.
// The zero value means unset.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists the known priorities, most urgent first.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority normalizes s to a known priority. Unknown values return "" and false.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	}
	return "", false
}

// Ticket is a reported unit of support work. Category, Priority and Notes
// stay empty while the ticket is pending and are set together once an
// analysis run has classified it.
type Ticket struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	Status      TicketStatus `json:"status"`
	Category    string       `json:"category,omitempty"`
	Priority    Priority     `json:"priority,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

// IsAnalyzed reports whether the ticket has been classified.
func (t Ticket) IsAnalyzed() bool {
	return t.Status == TicketAnalyzed
}

// TicketCreate is the client-supplied part of a new ticket.
type TicketCreate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateTicketsRequest is the body of a batch create call.
type CreateTicketsRequest struct {
	Tickets []TicketCreate `json:"tickets"`
}

// ErrorResponse is the JSON body returned with every non-2xx API response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
