package bank

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
	dbPath := filepath.Join(t.TempDir(), "bank.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndListAccounts(t *testing.T) {
	s := newTestStore(t)
	a, err := s.CreateAccount("user1", TypeChecking, 100)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if a.ID == "" || a.CreatedAt == "" {
		t.Errorf("account not initialized: %+v", a)
	}

	accounts, err := s.AccountsForUser("user1")
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 || accounts[0].Balance != 100 {
		t.Errorf("listing wrong: %+v", accounts)
	}

	none, err := s.AccountsForUser("user2")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("foreign accounts returned: %+v", none)
	}
}

func TestAccountNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Account("missing")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestTransferMovesFundsAndRecordsPair(t *testing.T) {
	s := newTestStore(t)
	from, _ := s.CreateAccount("user1", TypeChecking, 500)
	to, _ := s.CreateAccount("user1", TypeSavings, 0)

	p := iam.Principal{ID: "user1", Role: iam.RoleUser}
	if err := s.Transfer(p, from.ID, to.ID, 200, "savings top-up"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	gotFrom, _ := s.Account(from.ID)
	gotTo, _ := s.Account(to.ID)
	if gotFrom.Balance != 300 || gotTo.Balance != 200 {
		t.Errorf("balances wrong: from=%.2f to=%.2f", gotFrom.Balance, gotTo.Balance)
	}

	fromTxns, err := s.Transactions(from.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fromTxns) != 1 || fromTxns[0].Type != TxnWithdrawal || fromTxns[0].Amount != 200 {
		t.Errorf("withdrawal row wrong: %+v", fromTxns)
	}
	toTxns, _ := s.Transactions(to.ID, 10)
	if len(toTxns) != 1 || toTxns[0].Type != TxnDeposit {
		t.Errorf("deposit row wrong: %+v", toTxns)
	}
}

func TestTransferOwnershipRegardlessOfRole(t *testing.T) {
	s := newTestStore(t)
	own, _ := s.CreateAccount("admin1", TypeChecking, 500)
	other, _ := s.CreateAccount("user1", TypeChecking, 500)

	adminP := iam.Principal{ID: "admin1", Role: iam.RoleAdmin}
	if err := s.Transfer(adminP, own.ID, other.ID, 50, ""); !errors.Is(err, ErrNotAccountOwner) {
		t.Fatalf("admin transfer to foreign account: expected ErrNotAccountOwner, got %v", err)
	}
	if err := s.Transfer(adminP, other.ID, own.ID, 50, ""); !errors.Is(err, ErrNotAccountOwner) {
		t.Fatalf("admin transfer from foreign account: expected ErrNotAccountOwner, got %v", err)
	}

	// Balances untouched by the rejected attempts.
	a, _ := s.Account(own.ID)
	b, _ := s.Account(other.ID)
	if a.Balance != 500 || b.Balance != 500 {
		t.Errorf("rejected transfer moved funds: %.2f / %.2f", a.Balance, b.Balance)
	}
}

func TestTransferValidation(t *testing.T) {
	s := newTestStore(t)
	from, _ := s.CreateAccount("user1", TypeChecking, 100)
	to, _ := s.CreateAccount("user1", TypeSavings, 0)
	p := iam.Principal{ID: "user1", Role: iam.RoleUser}

	if err := s.Transfer(p, from.ID, to.ID, 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if err := s.Transfer(p, from.ID, to.ID, -5, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: got %v", err)
	}
	if err := s.Transfer(p, from.ID, to.ID, 100.01, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraw: got %v", err)
	}
	if err := s.Transfer(p, "missing", to.ID, 10, ""); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("missing source: got %v", err)
	}
}

func TestSeedIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := s.Seed(); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	for _, u := range SeedUsers {
		accounts, err := s.AccountsForUser(u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(accounts) != 2 {
			t.Errorf("%s has %d accounts, want 2", u.ID, len(accounts))
		}
	}
}
