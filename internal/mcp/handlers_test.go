package mcp

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/devchilll/scope/internal/audit"
	"github.com/devchilll/scope/internal/bank"
	"github.com/devchilll/scope/internal/escalation"
	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/metrics"
	"github.com/devchilll/scope/internal/pipeline"
	"github.com/devchilll/scope/internal/policy"
	"github.com/devchilll/scope/internal/risk"
	"github.com/devchilll/scope/internal/tools"
)

type safeScorer struct{}

func (safeScorer) Score(ctx context.Context, text string, principal iam.Principal) (risk.Analysis, error) {
	return risk.Analysis{SafetyScore: 0.95, ComplianceScore: 0.95, Confidence: 0.9, Analysis: "clean"}, nil
}

func newTestMCP(t *testing.T, principal iam.Principal) (*Server, *bank.Store, *escalation.Store) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := bank.NewStore(filepath.Join(dir, "bank.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = b.Close() })

	ledger, err := escalation.NewStore(filepath.Join(dir, "escalations.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	trail, err := audit.NewStore(filepath.Join(dir, "audit.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = trail.Close() })

	engine, err := policy.NewEngine(policy.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	pipe := pipeline.New(safeScorer{}, engine, ledger, trail, m, logger, time.Second)
	dispatcher := tools.NewDispatcher(b, ledger, trail, m, logger)

	return New(principal, pipe, dispatcher, logger), b, ledger
}

func TestGovernRequestTool(t *testing.T) {
	s, _, _ := newTestMCP(t, iam.Principal{ID: "user1", Role: iam.RoleUser})

	_, out, err := s.handleGovernRequest(context.Background(), nil, GovernInput{Text: "what is my balance"})
	if err != nil {
		t.Fatalf("handleGovernRequest: %v", err)
	}
	if out.Action != "approve" {
		t.Errorf("action = %s, want approve", out.Action)
	}
}

func TestCheckBalanceTool(t *testing.T) {
	s, b, _ := newTestMCP(t, iam.Principal{ID: "user1", Role: iam.RoleUser})
	acct, _ := b.CreateAccount("user1", bank.TypeChecking, 300)

	res, out, err := s.handleCheckBalance(context.Background(), nil, BalanceInput{AccountID: acct.ID})
	if err != nil {
		t.Fatalf("handleCheckBalance: %v", err)
	}
	if res != nil {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if out.Balance != 300 || out.Account == acct.ID {
		t.Errorf("output wrong (balance or unmasked id): %+v", out)
	}
}

func TestCheckBalanceToolDenied(t *testing.T) {
	s, b, _ := newTestMCP(t, iam.Principal{ID: "user2", Role: iam.RoleUser})
	acct, _ := b.CreateAccount("user1", bank.TypeChecking, 300)

	res, out, err := s.handleCheckBalance(context.Background(), nil, BalanceInput{AccountID: acct.ID})
	if err != nil {
		t.Fatalf("handleCheckBalance: %v", err)
	}
	if res == nil || !res.IsError {
		t.Fatal("denial not marked as error result")
	}
	if out.Denied == "" {
		t.Error("denial message missing")
	}
}

func TestTransferTool(t *testing.T) {
	s, b, _ := newTestMCP(t, iam.Principal{ID: "user1", Role: iam.RoleUser})
	from, _ := b.CreateAccount("user1", bank.TypeChecking, 100)
	to, _ := b.CreateAccount("user1", bank.TypeSavings, 0)

	_, out, err := s.handleTransfer(context.Background(), nil, TransferInput{
		FromAccount: from.ID, ToAccount: to.ID, Amount: 40,
	})
	if err != nil {
		t.Fatalf("handleTransfer: %v", err)
	}
	if !out.Transferred {
		t.Errorf("transfer refused: %+v", out)
	}

	res, out, _ := s.handleTransfer(context.Background(), nil, TransferInput{
		FromAccount: from.ID, ToAccount: to.ID, Amount: 1000,
	})
	if res == nil || !res.IsError || out.Denied == "" {
		t.Errorf("overdraw not refused: res=%+v out=%+v", res, out)
	}
}

func TestEscalationToolsRoundTrip(t *testing.T) {
	userSrv, _, ledger := newTestMCP(t, iam.Principal{ID: "user1", Role: iam.RoleUser})

	_, fraudOut, err := userSrv.handleReportFraud(context.Background(), nil, FraudInput{Description: "odd charge"})
	if err != nil {
		t.Fatalf("handleReportFraud: %v", err)
	}
	if fraudOut.TicketID == "" {
		t.Fatal("no ticket opened")
	}

	_, listOut, err := userSrv.handleListEscalations(context.Background(), nil, ListEscalationsInput{Status: escalation.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(listOut.Tickets) != 1 {
		t.Fatalf("user cannot see own ticket: %+v", listOut)
	}

	// A user-session server cannot resolve.
	res, _, _ := userSrv.handleResolveEscalation(context.Background(), nil, ResolveInput{TicketID: fraudOut.TicketID, Note: "x"})
	if res == nil || !res.IsError {
		t.Error("user resolve not refused")
	}

	// Resolve through the ledger as admin, then stats reflect it.
	adminP := iam.Principal{ID: "admin1", Role: iam.RoleAdmin}
	if ok, err := ledger.Resolve(adminP, fraudOut.TicketID, "confirmed"); err != nil || !ok {
		t.Fatalf("ledger resolve: ok=%v err=%v", ok, err)
	}
	_, stats, err := userSrv.handleQueueStats(context.Background(), nil, StatsInput{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Resolved != 1 {
		t.Errorf("stats wrong: %+v", stats)
	}
}
