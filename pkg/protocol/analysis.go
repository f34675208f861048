package protocol

import "time"

// AnalysisRun is one invocation of the classification service.
type AnalysisRun struct {
	ID             int64            `json:"id"`
	Summary        string           `json:"summary"`
	CreatedAt      time.Time        `json:"created_at"`
	TicketAnalyses []TicketAnalysis `json:"ticket_analyses"`
}

// TicketIDs returns the ids of the tickets classified by the run, in run order.
func (r *AnalysisRun) TicketIDs() []int64 {
	ids := make([]int64, 0, len(r.TicketAnalyses))
	for _, ta := range r.TicketAnalyses {
		ids = append(ids, ta.TicketID)
	}
	return ids
}

// TicketAnalysis is the classification of one ticket within one run.
type TicketAnalysis struct {
	ID            int64     `json:"id"`
	AnalysisRunID int64     `json:"analysis_run_id"`
	TicketID      int64     `json:"ticket_id"`
	Category      string    `json:"category"`
	Priority      Priority  `json:"priority"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Ticket        *Ticket   `json:"ticket,omitempty"`
}

// AnalysisRequest asks the service to analyze pending tickets. An empty
// TicketIDs means every pending ticket.
type AnalysisRequest struct {
	TicketIDs []int64 `json:"ticket_ids,omitempty"`
}
