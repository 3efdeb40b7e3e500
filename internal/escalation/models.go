// Package escalation is the durable ledger of requests deferred to human
// review. Tickets are created pending, resolved at most once, and never
// deleted.
package escalation

// Ticket statuses. Pending is the only non-terminal status.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusResolved = "resolved"
)

// Ticket is one escalated request awaiting (or past) human adjudication.
// Timestamps are RFC3339 UTC strings.
type Ticket struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	InputText      string  `json:"input_text"`
	AgentReasoning string  `json:"agent_reasoning"`
	Confidence     float64 `json:"confidence"`
	Status         string  `json:"status"`
	ResolvedBy     string  `json:"resolved_by,omitempty"`
	ResolutionNote string  `json:"resolution_note,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ResolvedAt     string  `json:"resolved_at,omitempty"`
}

// Terminal reports whether the ticket has left the review queue.
func (t Ticket) Terminal() bool {
	return t.Status != StatusPending
}

// Draft is the caller-supplied part of a new ticket. ID, status, and
// created_at are assigned by the ledger.
type Draft struct {
	UserID         string
	InputText      string
	AgentReasoning string
	Confidence     float64
}

// Stats summarizes the tickets visible to one principal.
type Stats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Resolved      int     `json:"resolved"`
	AvgConfidence float64 `json:"avg_confidence"`
}
