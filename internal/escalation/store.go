package escalation

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/devchilll/scope/internal/iam"
)

// ErrStorageUnavailable wraps persistence failures so callers can surface a
// "contact support" message instead of crashing the conversation.
var ErrStorageUnavailable = errors.New("escalation storage unavailable")

// ErrTicketNotFound marks a ticket id that does not exist or is not visible
// to the caller; the two cases are indistinguishable on purpose.
var ErrTicketNotFound = errors.New("escalation ticket not found")

const schema = `
CREATE TABLE IF NOT EXISTS escalations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	input_text TEXT NOT NULL,
	agent_reasoning TEXT NOT NULL,
	confidence REAL NOT NULL,
	status TEXT NOT NULL,
	resolved_by TEXT,
	resolution_note TEXT,
	created_at TEXT NOT NULL,
	resolved_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_escalations_user ON escalations(user_id);
CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status);
CREATE INDEX IF NOT EXISTS idx_escalations_created ON escalations(created_at);
`

// Store is the SQLite-backed escalation ledger. All writes are synchronous
// single-row statements; row-level atomicity is the only guarantee offered.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the ledger database.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening escalation db: %w", err)
	}

	// WAL mode keeps reads unblocked while request handlers write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a pending ticket and returns its id. The ledger assigns
// the UUID and created_at; callers never pick ids.
func (s *Store) Create(draft Draft) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(
		`INSERT INTO escalations (id, user_id, input_text, agent_reasoning, confidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, draft.UserID, draft.InputText, draft.AgentReasoning, draft.Confidence, StatusPending, now,
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert: %v", ErrStorageUnavailable, err)
	}

	s.logger.Info("escalation created", "ticket", id, "user", draft.UserID, "confidence", draft.Confidence)
	return id, nil
}

// List returns the tickets visible to the principal, newest first.
// Holders of view_all_escalations see every row; everyone else is hard
// scoped to their own user_id with no way to widen the filter. An optional
// status narrows the result.
func (s *Store) List(principal iam.Principal, status string) ([]Ticket, error) {
	if !iam.Can(principal, iam.PermViewOwnEscalations) && !iam.Can(principal, iam.PermViewAllEscalations) {
		return nil, &iam.AccessDeniedError{
			PrincipalID: principal.ID,
			Role:        principal.Role,
			Permission:  iam.PermViewOwnEscalations,
		}
	}

	query := `SELECT id, user_id, input_text, agent_reasoning, confidence, status,
		resolved_by, resolution_note, created_at, resolved_at FROM escalations WHERE 1=1`
	var args []any

	if !iam.Can(principal, iam.PermViewAllEscalations) {
		query += " AND user_id = ?"
		args = append(args, principal.ID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	// rowid breaks ties between tickets created within the same second.
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStorageUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		var resolvedBy, resolutionNote, resolvedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.InputText, &t.AgentReasoning, &t.Confidence,
			&t.Status, &resolvedBy, &resolutionNote, &t.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		t.ResolvedBy = resolvedBy.String
		t.ResolutionNote = resolutionNote.String
		t.ResolvedAt = resolvedAt.String
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Get returns one ticket by id, subject to the same row visibility as List.
// Missing and invisible tickets both come back as ErrTicketNotFound.
func (s *Store) Get(principal iam.Principal, id string) (Ticket, error) {
	tickets, err := s.List(principal, "")
	if err != nil {
		return Ticket{}, err
	}
	for _, t := range tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return Ticket{}, ErrTicketNotFound
}

// Resolve marks the ticket resolved. It returns false when the ticket does
// not exist or is already terminal; the first resolution is never
// overwritten. The status check and the status write are one conditional
// UPDATE, so two concurrent resolves cannot both succeed.
func (s *Store) Resolve(principal iam.Principal, ticketID, note string) (bool, error) {
	return s.ResolveWith(principal, ticketID, StatusResolved, note)
}

// ResolveWith is Resolve with an explicit terminal status, for reviewers
// recording an approve/reject verdict rather than a plain resolution.
func (s *Store) ResolveWith(principal iam.Principal, ticketID, status, note string) (bool, error) {
	if !iam.CanResolveEscalations(principal) {
		return false, &iam.AccessDeniedError{
			PrincipalID: principal.ID,
			Role:        principal.Role,
			Permission:  iam.PermResolveEscalations,
		}
	}
	if status != StatusApproved && status != StatusRejected && status != StatusResolved {
		return false, fmt.Errorf("invalid terminal status %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE escalations SET status = ?, resolved_by = ?, resolution_note = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		status, principal.ID, note, now, ticketID, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("%w: update: %v", ErrStorageUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	s.logger.Info("escalation resolved", "ticket", ticketID, "by", principal.ID, "status", status)
	return true, nil
}

// Stats aggregates over exactly the rows List would show the principal, so
// counts never leak invisible tickets.
func (s *Store) Stats(principal iam.Principal) (Stats, error) {
	tickets, err := s.List(principal, "")
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	var confSum float64
	for _, t := range tickets {
		st.Total++
		confSum += t.Confidence
		if t.Status == StatusPending {
			st.Pending++
		} else {
			st.Resolved++
		}
	}
	if st.Total > 0 {
		st.AvgConfidence = confSum / float64(st.Total)
	}
	return st, nil
}
