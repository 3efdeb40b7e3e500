// Package audit is the append-only trail of governance events. Every
// decision, access, and tool invocation lands here exactly once; nothing
// is ever updated or deleted.
package audit

// Event types recorded by the trail.
const (
	EventUserQuery           = "user_query"
	EventDecision            = "decision"
	EventAccountAccess       = "account_access"
	EventTransactionQuery    = "transaction_query"
	EventToolCall            = "tool_call"
	EventSafetyBlock         = "safety_block"
	EventComplianceViolation = "compliance_violation"
	EventEscalationCreated   = "escalation_created"
	EventEscalationResolved  = "escalation_resolved"
	EventAccessDenied        = "access_denied"
)

// Event is one audit record. Details carries operation-specific context
// (ticket id, masked account id, amount) but never secrets or full account
// numbers.
type Event struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id"`
	Action    string            `json:"action"`
	Success   bool              `json:"success"`
	Details   map[string]string `json:"details,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// QueryOpts holds filters for trail queries.
type QueryOpts struct {
	EventType string
	UserID    string
	Since     string
	Limit     int
}

// TypeStat is the event count for one event type.
type TypeStat struct {
	EventType string `json:"event_type"`
	Count     int    `json:"count"`
	Failures  int    `json:"failures"`
}
