package escalation

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/devchilll/scope/internal/iam"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "escalations.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

var (
	alice = iam.Principal{ID: "user1", Role: iam.RoleUser, Name: "Alice"}
	eve   = iam.Principal{ID: "user2", Role: iam.RoleUser, Name: "Eve"}
	staff = iam.Principal{ID: "staff1", Role: iam.RoleStaff, Name: "Sam"}
	admin = iam.Principal{ID: "admin1", Role: iam.RoleAdmin, Name: "Ada"}
)

func TestCreateAssignsIDAndPending(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(Draft{UserID: "user1", InputText: "transfer everything", AgentReasoning: "ambiguous", Confidence: 0.3})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("empty ticket id")
	}

	tickets, err := s.List(alice, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(tickets))
	}
	tk := tickets[0]
	if tk.ID != id || tk.Status != StatusPending || tk.CreatedAt == "" {
		t.Errorf("ticket not initialized: %+v", tk)
	}
	if tk.ResolvedBy != "" || tk.ResolvedAt != "" {
		t.Errorf("fresh ticket carries resolution fields: %+v", tk)
	}
}

func TestListRowVisibility(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(Draft{UserID: "user1", InputText: "x", AgentReasoning: "r", Confidence: 0.3})
	if err != nil {
		t.Fatal(err)
	}

	// Staff sees the ticket.
	staffView, err := s.List(staff, "")
	if err != nil {
		t.Fatalf("staff List: %v", err)
	}
	if len(staffView) != 1 || staffView[0].ID != id {
		t.Errorf("staff should see the ticket, got %+v", staffView)
	}

	// Another user does not.
	eveView, err := s.List(eve, "")
	if err != nil {
		t.Fatalf("eve List: %v", err)
	}
	if len(eveView) != 0 {
		t.Errorf("user2 sees foreign tickets: %+v", eveView)
	}

	// The owner does.
	aliceView, err := s.List(alice, "")
	if err != nil {
		t.Fatalf("alice List: %v", err)
	}
	if len(aliceView) != 1 {
		t.Errorf("owner cannot see own ticket")
	}
}

func TestListDeniedWithoutPermission(t *testing.T) {
	s := newTestStore(t)
	ghost := iam.Principal{ID: "g", Role: iam.Role("ghost")}
	_, err := s.List(ghost, "")
	var denied *iam.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDeniedError, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Create(Draft{UserID: "user1", InputText: "req", AgentReasoning: "r", Confidence: 0.5})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	tickets, err := s.List(alice, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 3 {
		t.Fatalf("got %d tickets", len(tickets))
	}
	for i := range ids {
		if tickets[i].ID != ids[len(ids)-1-i] {
			t.Fatalf("not newest first: got %v", []string{tickets[0].ID, tickets[1].ID, tickets[2].ID})
		}
	}
}

func TestListStatusFilter(t *testing.T) {
	s := newTestStore(t)
	id1, _ := s.Create(Draft{UserID: "user1", InputText: "a", AgentReasoning: "r", Confidence: 0.5})
	if _, err := s.Create(Draft{UserID: "user1", InputText: "b", AgentReasoning: "r", Confidence: 0.5}); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Resolve(admin, id1, "handled"); err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}

	pending, err := s.List(admin, StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("got %d pending, want 1", len(pending))
	}
	resolved, err := s.List(admin, StatusResolved)
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 1 || resolved[0].ID != id1 {
		t.Errorf("resolved filter wrong: %+v", resolved)
	}
}

func TestResolveOnce(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(Draft{UserID: "user1", InputText: "x", AgentReasoning: "r", Confidence: 0.4})
	if err != nil {
		t.Fatal(err)
	}

	ok, err := s.Resolve(admin, id, "first resolution")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ok {
		t.Fatal("first resolve returned false")
	}

	ok, err = s.Resolve(admin, id, "second resolution")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if ok {
		t.Fatal("second resolve succeeded")
	}

	// First resolution untouched.
	tk, err := s.Get(admin, id)
	if err != nil {
		t.Fatal(err)
	}
	if tk.ResolutionNote != "first resolution" || tk.ResolvedBy != "admin1" {
		t.Errorf("first resolution overwritten: %+v", tk)
	}
	if tk.Status != StatusResolved || tk.ResolvedAt == "" {
		t.Errorf("resolution fields not set atomically: %+v", tk)
	}
}

func TestGetMissingTicket(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create(Draft{UserID: "user1", InputText: "x", AgentReasoning: "r", Confidence: 0.4})

	if _, err := s.Get(admin, "no-such-id"); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("missing ticket: expected ErrTicketNotFound, got %v", err)
	}

	// A ticket invisible to the caller looks exactly like a missing one.
	if _, err := s.Get(eve, id); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("invisible ticket: expected ErrTicketNotFound, got %v", err)
	}
}

func TestResolveMissingTicket(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Resolve(admin, "no-such-id", "note")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ok {
		t.Fatal("resolving a missing ticket succeeded")
	}
}

func TestResolveRequiresPermission(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create(Draft{UserID: "user1", InputText: "x", AgentReasoning: "r", Confidence: 0.4})

	for _, p := range []iam.Principal{alice, staff} {
		_, err := s.Resolve(p, id, "note")
		var denied *iam.AccessDeniedError
		if !errors.As(err, &denied) {
			t.Errorf("role %s: expected AccessDeniedError, got %v", p.Role, err)
		}
	}

	// Ticket still pending after denied attempts.
	tk, err := s.Get(admin, id)
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != StatusPending {
		t.Errorf("denied resolves mutated the ticket: %+v", tk)
	}
}

func TestResolveWithVerdictStatuses(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create(Draft{UserID: "user1", InputText: "x", AgentReasoning: "r", Confidence: 0.4})

	if _, err := s.ResolveWith(admin, id, "expired", "nope"); err == nil {
		t.Error("invalid terminal status accepted")
	}

	ok, err := s.ResolveWith(admin, id, StatusApproved, "looks fine")
	if err != nil || !ok {
		t.Fatalf("ResolveWith: ok=%v err=%v", ok, err)
	}
	tk, _ := s.Get(admin, id)
	if tk.Status != StatusApproved {
		t.Errorf("status = %s, want approved", tk.Status)
	}
}

func TestStatsVisibleRowsOnly(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(Draft{UserID: "user1", InputText: "a", AgentReasoning: "r", Confidence: 0.4}); err != nil {
		t.Fatal(err)
	}
	id2, _ := s.Create(Draft{UserID: "user2", InputText: "b", AgentReasoning: "r", Confidence: 0.8})
	if ok, err := s.Resolve(admin, id2, "done"); err != nil || !ok {
		t.Fatal("resolve failed")
	}

	// Admin sees both.
	all, err := s.Stats(admin)
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 2 || all.Pending != 1 || all.Resolved != 1 {
		t.Errorf("admin stats wrong: %+v", all)
	}
	if all.AvgConfidence < 0.59 || all.AvgConfidence > 0.61 {
		t.Errorf("avg confidence = %v, want 0.6", all.AvgConfidence)
	}

	// Alice sees only her own row.
	own, err := s.Stats(alice)
	if err != nil {
		t.Fatal(err)
	}
	if own.Total != 1 || own.Pending != 1 || own.Resolved != 0 {
		t.Errorf("user stats leak foreign rows: %+v", own)
	}
}

func TestStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	st, err := s.Stats(alice)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 0 || st.AvgConfidence != 0 {
		t.Errorf("empty stats wrong: %+v", st)
	}
}
