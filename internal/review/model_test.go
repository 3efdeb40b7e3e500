package review

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/devchilll/scope/internal/audit"
	"github.com/devchilll/scope/internal/bank"
	"github.com/devchilll/scope/internal/escalation"
	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/metrics"
	"github.com/devchilll/scope/internal/tools"
)

type queue struct {
	dispatcher *tools.Dispatcher
	ledger     *escalation.Store
	trail      *audit.Store
}

func newTestQueue(t *testing.T, drafts int) (*queue, []string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := bank.NewStore(filepath.Join(dir, "bank.db"), logger)
	if err != nil {
		t.Fatalf("bank.NewStore: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	ledger, err := escalation.NewStore(filepath.Join(dir, "escalations.db"), logger)
	if err != nil {
		t.Fatalf("escalation.NewStore: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	trail, err := audit.NewStore(filepath.Join(dir, "audit.db"), logger)
	if err != nil {
		t.Fatalf("audit.NewStore: %v", err)
	}
	t.Cleanup(func() { _ = trail.Close() })

	ids := make([]string, 0, drafts)
	for i := 0; i < drafts; i++ {
		id, err := ledger.Create(escalation.Draft{
			UserID: "user1", InputText: "please hurry", AgentReasoning: "ambiguous", Confidence: 0.5,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, id)
	}

	return &queue{
		dispatcher: tools.NewDispatcher(b, ledger, trail, metrics.New(), logger),
		ledger:     ledger,
		trail:      trail,
	}, ids
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out
}

func TestViewListsPendingQueue(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	m, err := New(q.dispatcher, iam.Principal{ID: "admin1", Role: iam.RoleAdmin})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	view := m.View()
	if !strings.Contains(view, "user1") {
		t.Errorf("view missing ticket rows:\n%s", view)
	}
	if !strings.Contains(view, "review queue") {
		t.Errorf("view missing title:\n%s", view)
	}
}

func TestCursorStaysInBounds(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	m, err := New(q.dispatcher, iam.Principal{ID: "admin1", Role: iam.RoleAdmin})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m = step(t, m, key("k"))
	if m.cursor != 0 {
		t.Errorf("cursor moved above top: %d", m.cursor)
	}
	m = step(t, m, key("j"))
	m = step(t, m, key("j"))
	m = step(t, m, key("j"))
	if m.cursor != 1 {
		t.Errorf("cursor moved past bottom: %d", m.cursor)
	}
}

func TestApproveResolvesSelectedTicket(t *testing.T) {
	q, ids := newTestQueue(t, 1)
	admin := iam.Principal{ID: "admin1", Role: iam.RoleAdmin}
	m, err := New(q.dispatcher, admin)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m = step(t, m, key("a"))
	if !m.noting {
		t.Fatal("approve did not open the note prompt")
	}
	m.note.SetValue("looks legitimate")
	m = step(t, m, key("enter"))

	if !m.statusOK {
		t.Fatalf("resolution failed: %s", m.status)
	}
	if len(m.tickets) != 0 {
		t.Errorf("queue not refreshed, %d tickets remain", len(m.tickets))
	}

	tickets, err := q.ledger.List(admin, escalation.StatusApproved)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tickets) != 1 || tickets[0].ResolutionNote != "looks legitimate" {
		t.Errorf("verdict not persisted: %+v", tickets)
	}

	// The verdict lands in the audit trail like a CLI or API resolve.
	q.trail.Flush()
	events, err := q.trail.Query(audit.QueryOpts{EventType: audit.EventEscalationResolved})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("verdict left no escalation_resolved event: got %d", len(events))
	}
	if events[0].Details["ticket"] != ids[0] || events[0].Details["status"] != escalation.StatusApproved {
		t.Errorf("event details wrong: %+v", events[0].Details)
	}
}

func TestReviewerWithoutResolvePermission(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	staff := iam.Principal{ID: "staff1", Role: iam.RoleStaff}
	m, err := New(q.dispatcher, staff)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(m.tickets) != 1 {
		t.Fatal("staff should see the pending queue")
	}

	m = step(t, m, key("r"))
	m.note.SetValue("no")
	m = step(t, m, key("enter"))

	if m.statusOK {
		t.Error("staff resolution should be refused")
	}
	if len(m.tickets) != 1 {
		t.Errorf("ticket left the queue despite refusal: %d remain", len(m.tickets))
	}
}

func TestEscCancelsNote(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	m, err := New(q.dispatcher, iam.Principal{ID: "admin1", Role: iam.RoleAdmin})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m = step(t, m, key("d"))
	m = step(t, m, key("esc"))
	if m.noting {
		t.Error("esc did not cancel the note prompt")
	}
	if len(m.tickets) != 1 {
		t.Error("cancel must leave the queue untouched")
	}
}

func TestQuit(t *testing.T) {
	q, _ := newTestQueue(t, 0)
	m, err := New(q.dispatcher, iam.Principal{ID: "admin1", Role: iam.RoleAdmin})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("quit did not return a command")
	}
	if view := next.(Model).View(); view != "" {
		t.Errorf("quitting view not empty: %q", view)
	}
}
