package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	event_type TEXT NOT NULL,
	user_id TEXT NOT NULL,
	action TEXT NOT NULL,
	success INTEGER NOT NULL,
	details TEXT,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
`

// Store manages the SQLite audit trail. Writes are asynchronous through a
// buffered channel so request handlers never block on disk; Flush exists
// for the points that need the trail durable before continuing.
type Store struct {
	db     *sql.DB
	writes chan writeOp
	done   chan struct{}
	logger *slog.Logger
}

// writeOp is either an event to persist or a flush marker to acknowledge.
type writeOp struct {
	event  Event
	synced chan struct{}
}

// NewStore opens (or creates) the SQLite audit database.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	// WAL mode for concurrent readers while the write loop runs.
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

	s := &Store{
		db:     db,
		writes: make(chan writeOp, 256),
		done:   make(chan struct{}),
		logger: logger,
	}

	go s.writeLoop()
	return s, nil
}

// mustLand are the event types the trail may never lose: denials and the
// escalation and compliance lifecycle. A full buffer blocks their writers
// until the loop drains instead of dropping the event.
var mustLand = map[string]bool{
	EventAccessDenied:        true,
	EventSafetyBlock:         true,
	EventComplianceViolation: true,
	EventEscalationCreated:   true,
	EventEscalationResolved:  true,
}

// Record enqueues an event for async writing, assigning id and timestamp
// when absent. Routine events are best effort: a full buffer drops them
// with a warning rather than stalling the request path. Events in mustLand
// are enqueued unconditionally.
func (s *Store) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	op := writeOp{event: event}
	if mustLand[event.EventType] {
		s.writes <- op
		return
	}

	select {
	case s.writes <- op:
	default:
		s.logger.Warn("audit write buffer full, dropping event", "id", event.ID, "type", event.EventType)
	}
}

// DB exposes the underlying handle for bulk loading and maintenance
// tooling. Normal writes go through Record.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Flush blocks until every event enqueued before the call is on disk.
func (s *Store) Flush() {
	synced := make(chan struct{})
	s.writes <- writeOp{synced: synced}
	<-synced
}

// Query returns events matching the filters, newest first.
func (s *Store) Query(opts QueryOpts) ([]Event, error) {
	query := "SELECT id, timestamp, event_type, user_id, action, success, details, error FROM audit_events WHERE 1=1"
	var args []any

	if opts.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, opts.EventType)
	}
	if opts.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.Since != "" {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY timestamp DESC, rowid DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit trail: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var success int
		var details, errText sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.UserID, &e.Action,
			&success, &details, &errText); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Success = success == 1
		e.Error = errText.String
		if details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				s.logger.Warn("corrupt details blob", "id", e.ID, "error", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// StatsByType aggregates event and failure counts per event type.
func (s *Store) StatsByType() ([]TypeStat, error) {
	rows, err := s.db.Query(
		`SELECT event_type, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		 FROM audit_events GROUP BY event_type ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []TypeStat
	for rows.Next() {
		var st TypeStat
		if err := rows.Scan(&st.EventType, &st.Count, &st.Failures); err != nil {
			return nil, fmt.Errorf("scanning stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for op := range s.writes {
		if op.synced != nil {
			close(op.synced)
			continue
		}
		e := op.event

		var details any
		if len(e.Details) > 0 {
			blob, err := json.Marshal(e.Details)
			if err != nil {
				s.logger.Error("encoding details", "id", e.ID, "error", err)
			} else {
				details = string(blob)
			}
		}
		success := 0
		if e.Success {
			success = 1
		}

		_, err := s.db.Exec(
			`INSERT INTO audit_events (id, timestamp, event_type, user_id, action, success, details, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Timestamp, e.EventType, e.UserID, e.Action, success, details, e.Error,
		)
		if err != nil {
			s.logger.Error("audit write failed", "id", e.ID, "error", err)
		}
	}
}
