// Package tools gates every backend operation behind the access control
// checks and audits both grants and denials. The gate re-validates
// permissions on every call; whether a tool was listed to the caller never
// matters at invocation time.
package tools

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/devchilll/scope/internal/audit"
	"github.com/devchilll/scope/internal/bank"
	"github.com/devchilll/scope/internal/escalation"
	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/metrics"
)

// Dispatcher wraps the backend stores with permission checks and auditing.
type Dispatcher struct {
	bank    *bank.Store
	ledger  *escalation.Store
	trail   *audit.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher wires the gate to its stores.
func NewDispatcher(b *bank.Store, ledger *escalation.Store, trail *audit.Store, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{bank: b, ledger: ledger, trail: trail, metrics: m, logger: logger}
}

// Tool names, as exposed to callers and recorded in audit events.
const (
	ToolCheckBalance       = "check_balance"
	ToolListAccounts       = "list_accounts"
	ToolTransactionHistory = "transaction_history"
	ToolTransfer           = "transfer"
	ToolReportFraud        = "report_fraud"
	ToolViewLogs           = "view_logs"
	ToolListEscalations    = "list_escalations"
	ToolResolveEscalation  = "resolve_escalation"
	ToolQueueStats         = "queue_stats"
)

// toolGrants maps each tool to the permissions that can justify invoking
// it. Multiple entries are OR-semantics: any one grant suffices.
var toolGrants = map[string][]iam.Permission{
	ToolCheckBalance:       {iam.PermViewAccounts},
	ToolListAccounts:       {iam.PermViewAccounts},
	ToolTransactionHistory: {iam.PermViewTransactions},
	ToolTransfer:           {iam.PermViewAccounts},
	ToolReportFraud:        {iam.PermUseAgent},
	ToolViewLogs:           {iam.PermViewLogs},
	ToolListEscalations:    {iam.PermViewOwnEscalations, iam.PermViewAllEscalations},
	ToolResolveEscalation:  {iam.PermResolveEscalations},
	ToolQueueStats:         {iam.PermViewOwnEscalations, iam.PermViewAllEscalations},
}

// toolOrder fixes the listing order for ToolsFor.
var toolOrder = []string{
	ToolCheckBalance, ToolListAccounts, ToolTransactionHistory, ToolTransfer,
	ToolReportFraud, ToolListEscalations, ToolResolveEscalation, ToolQueueStats,
	ToolViewLogs,
}

// ToolsFor returns the tools visible to a role. Visibility is cosmetic;
// invocation is re-checked on every call.
func ToolsFor(role iam.Role) []string {
	var out []string
	for _, name := range toolOrder {
		for _, perm := range toolGrants[name] {
			if iam.HasPermission(role, perm) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// authorize runs the OR-semantics permission check for a tool and audits
// the outcome. On denial the returned error is the typed access error for
// the first required permission.
func (d *Dispatcher) authorize(p iam.Principal, tool string, details map[string]string) error {
	grants := toolGrants[tool]
	if len(grants) == 0 {
		return fmt.Errorf("unknown tool %q", tool)
	}

	for _, perm := range grants {
		if iam.Can(p, perm) {
			d.trail.Record(audit.Event{
				EventType: audit.EventToolCall,
				UserID:    p.ID,
				Action:    tool,
				Success:   true,
				Details:   details,
			})
			return nil
		}
	}

	err := &iam.AccessDeniedError{PrincipalID: p.ID, Role: p.Role, Permission: grants[0]}
	d.trail.Record(audit.Event{
		EventType: audit.EventAccessDenied,
		UserID:    p.ID,
		Action:    tool,
		Success:   false,
		Details:   details,
		Error:     err.Error(),
	})
	d.metrics.Denial()
	d.logger.Warn("tool denied", "tool", tool, "principal", p.ID, "role", p.Role)
	return err
}

// CheckBalance returns the balance of one of the target user's accounts.
func (d *Dispatcher) CheckBalance(p iam.Principal, accountID string) (bank.Account, error) {
	if err := d.authorize(p, ToolCheckBalance, map[string]string{"account": MaskAccount(accountID)}); err != nil {
		return bank.Account{}, err
	}

	account, err := d.bank.Account(accountID)
	if err != nil {
		return bank.Account{}, err
	}
	if !iam.CanViewCustomerData(p, account.UserID) {
		return bank.Account{}, d.denyData(p, ToolCheckBalance, accountID)
	}

	d.trail.Record(audit.Event{
		EventType: audit.EventAccountAccess,
		UserID:    p.ID,
		Action:    "balance_read",
		Success:   true,
		Details:   map[string]string{"account": MaskAccount(accountID), "owner": account.UserID},
	})
	return account, nil
}

// ListAccounts lists targetUserID's accounts, subject to customer-data
// visibility. An empty target means the caller's own accounts.
func (d *Dispatcher) ListAccounts(p iam.Principal, targetUserID string) ([]bank.Account, error) {
	if targetUserID == "" {
		targetUserID = p.ID
	}
	if err := d.authorize(p, ToolListAccounts, map[string]string{"target": targetUserID}); err != nil {
		return nil, err
	}
	if !iam.CanViewCustomerData(p, targetUserID) {
		return nil, d.denyData(p, ToolListAccounts, targetUserID)
	}

	accounts, err := d.bank.AccountsForUser(targetUserID)
	if err != nil {
		return nil, err
	}
	d.trail.Record(audit.Event{
		EventType: audit.EventAccountAccess,
		UserID:    p.ID,
		Action:    "account_list",
		Success:   true,
		Details:   map[string]string{"target": targetUserID, "count": fmt.Sprint(len(accounts))},
	})
	return accounts, nil
}

// TransactionHistory lists recent movements on an account.
func (d *Dispatcher) TransactionHistory(p iam.Principal, accountID string, limit int) ([]bank.Transaction, error) {
	if err := d.authorize(p, ToolTransactionHistory, map[string]string{"account": MaskAccount(accountID)}); err != nil {
		return nil, err
	}

	account, err := d.bank.Account(accountID)
	if err != nil {
		return nil, err
	}
	if !iam.CanViewCustomerData(p, account.UserID) {
		return nil, d.denyData(p, ToolTransactionHistory, accountID)
	}

	txns, err := d.bank.Transactions(accountID, limit)
	if err != nil {
		return nil, err
	}
	d.trail.Record(audit.Event{
		EventType: audit.EventTransactionQuery,
		UserID:    p.ID,
		Action:    "history_read",
		Success:   true,
		Details:   map[string]string{"account": MaskAccount(accountID), "count": fmt.Sprint(len(txns))},
	})
	return txns, nil
}

// Transfer moves funds between two accounts the caller owns. The ownership
// invariant lives in the bank store and binds every role equally.
func (d *Dispatcher) Transfer(p iam.Principal, fromID, toID string, amount float64, description string) error {
	details := map[string]string{
		"from":   MaskAccount(fromID),
		"to":     MaskAccount(toID),
		"amount": fmt.Sprintf("%.2f", amount),
	}
	if err := d.authorize(p, ToolTransfer, details); err != nil {
		return err
	}

	if err := d.bank.Transfer(p, fromID, toID, amount, description); err != nil {
		d.trail.Record(audit.Event{
			EventType: audit.EventToolCall,
			UserID:    p.ID,
			Action:    "transfer",
			Success:   false,
			Details:   details,
			Error:     err.Error(),
		})
		if errors.Is(err, bank.ErrNotAccountOwner) {
			d.trail.Record(audit.Event{
				EventType: audit.EventComplianceViolation,
				UserID:    p.ID,
				Action:    "transfer_ownership",
				Success:   false,
				Details:   details,
				Error:     err.Error(),
			})
		}
		return err
	}

	d.trail.Record(audit.Event{
		EventType: audit.EventToolCall,
		UserID:    p.ID,
		Action:    "transfer_complete",
		Success:   true,
		Details:   details,
	})
	return nil
}

// ReportFraud opens a high-confidence pending escalation describing the
// suspected fraud and records a compliance incident. Returns the ticket id.
func (d *Dispatcher) ReportFraud(p iam.Principal, description string) (string, error) {
	if err := d.authorize(p, ToolReportFraud, nil); err != nil {
		return "", err
	}

	ticketID, err := d.ledger.Create(escalation.Draft{
		UserID:         p.ID,
		InputText:      description,
		AgentReasoning: "customer-initiated fraud report, routed straight to review",
		Confidence:     0.95,
	})
	if err != nil {
		return "", err
	}

	d.trail.Record(audit.Event{
		EventType: audit.EventComplianceViolation,
		UserID:    p.ID,
		Action:    "fraud_report",
		Success:   true,
		Details:   map[string]string{"ticket": ticketID},
	})
	d.trail.Record(audit.Event{
		EventType: audit.EventEscalationCreated,
		UserID:    p.ID,
		Action:    "fraud_report",
		Success:   true,
		Details:   map[string]string{"ticket": ticketID},
	})
	return ticketID, nil
}

// ViewLogs returns audit events matching opts.
func (d *Dispatcher) ViewLogs(p iam.Principal, opts audit.QueryOpts) ([]audit.Event, error) {
	if err := d.authorize(p, ToolViewLogs, nil); err != nil {
		return nil, err
	}
	return d.trail.Query(opts)
}

// ListEscalations lists the tickets visible to the caller. Row filtering
// happens in the ledger; the gate only guards the door.
func (d *Dispatcher) ListEscalations(p iam.Principal, status string) ([]escalation.Ticket, error) {
	if err := d.authorize(p, ToolListEscalations, map[string]string{"status": status}); err != nil {
		return nil, err
	}
	return d.ledger.List(p, status)
}

// ResolveEscalation resolves a ticket with the plain resolved status.
// Returns false when the ticket is missing or already terminal.
func (d *Dispatcher) ResolveEscalation(p iam.Principal, ticketID, note string) (bool, error) {
	return d.ResolveEscalationWith(p, ticketID, escalation.StatusResolved, note)
}

// ResolveEscalationWith resolves a ticket to an explicit terminal status.
// Every surface that records a verdict routes through here, so approve and
// reject land in the audit trail the same way a plain resolve does.
func (d *Dispatcher) ResolveEscalationWith(p iam.Principal, ticketID, status, note string) (bool, error) {
	if err := d.authorize(p, ToolResolveEscalation, map[string]string{"ticket": ticketID, "status": status}); err != nil {
		return false, err
	}

	ok, err := d.ledger.ResolveWith(p, ticketID, status, note)
	if err != nil {
		return false, err
	}
	if ok {
		d.trail.Record(audit.Event{
			EventType: audit.EventEscalationResolved,
			UserID:    p.ID,
			Action:    "resolve",
			Success:   true,
			Details:   map[string]string{"ticket": ticketID, "status": status},
		})
	}
	return ok, nil
}

// QueueStats aggregates over the caller's visible tickets.
func (d *Dispatcher) QueueStats(p iam.Principal) (escalation.Stats, error) {
	if err := d.authorize(p, ToolQueueStats, nil); err != nil {
		return escalation.Stats{}, err
	}
	return d.ledger.Stats(p)
}

// denyData audits and returns the denial for a row-level visibility miss,
// which the tool-level permission check cannot catch.
func (d *Dispatcher) denyData(p iam.Principal, tool, subject string) error {
	err := &iam.AccessDeniedError{PrincipalID: p.ID, Role: p.Role, Permission: iam.PermViewAccounts}
	d.trail.Record(audit.Event{
		EventType: audit.EventAccessDenied,
		UserID:    p.ID,
		Action:    tool,
		Success:   false,
		Details:   map[string]string{"subject": MaskAccount(subject)},
		Error:     err.Error(),
	})
	d.metrics.Denial()
	return err
}

// MaskAccount shortens an account id to its last four characters for audit
// details and user-facing output. Full ids never appear in the trail.
func MaskAccount(id string) string {
	if len(id) <= 4 {
		return id
	}
	return "****" + id[len(id)-4:]
}

// UserMessage maps an error from the gate to the polite string shown to
// the end user. The mapping is by error kind; wording is presentation.
func UserMessage(err error) string {
	var denied *iam.AccessDeniedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &denied):
		return "I'm sorry, but you don't have permission to do that."
	case errors.Is(err, bank.ErrNotAccountOwner):
		return "Transfers are only possible between your own accounts."
	case errors.Is(err, bank.ErrInsufficientFunds):
		return "There aren't enough funds in the source account for that transfer."
	case errors.Is(err, bank.ErrInvalidAmount):
		return "The transfer amount must be greater than zero."
	case errors.Is(err, bank.ErrAccountNotFound):
		return "I couldn't find that account."
	case errors.Is(err, escalation.ErrTicketNotFound):
		return "I couldn't find that escalation ticket."
	case errors.Is(err, escalation.ErrStorageUnavailable):
		return "I couldn't record your request right now. Please contact support."
	default:
		return "Something went wrong handling your request. Please try again."
	}
}
