package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devchilll/scope/internal/tools"
)

// GovernInput defines parameters for the govern_request tool.
type GovernInput struct {
	Text string `json:"text" jsonschema:"the user request to govern"`
}

// GovernOutput carries the governance outcome.
type GovernOutput struct {
	Action        string `json:"action"`
	Reply         string `json:"reply"`
	Reasoning     string `json:"reasoning"`
	ProcessedText string `json:"processed_text,omitempty"`
	TicketID      string `json:"ticket_id,omitempty"`
}

func (s *Server) handleGovernRequest(ctx context.Context, req *mcpsdk.CallToolRequest, input GovernInput) (*mcpsdk.CallToolResult, GovernOutput, error) {
	result := s.pipeline.Handle(ctx, s.principal, input.Text)
	out := GovernOutput{
		Action:        string(result.Action),
		Reply:         result.Reply,
		Reasoning:     result.Reasoning,
		ProcessedText: result.ProcessedText,
		TicketID:      result.TicketID,
	}
	return nil, out, nil
}

// BalanceInput defines parameters for the check_balance tool.
type BalanceInput struct {
	AccountID string `json:"account_id" jsonschema:"account to read"`
}

// BalanceOutput is the balance of one account.
type BalanceOutput struct {
	Account string  `json:"account"`
	Type    string  `json:"type"`
	Balance float64 `json:"balance"`
	Denied  string  `json:"denied,omitempty"`
}

func (s *Server) handleCheckBalance(ctx context.Context, req *mcpsdk.CallToolRequest, input BalanceInput) (*mcpsdk.CallToolResult, BalanceOutput, error) {
	account, err := s.dispatcher.CheckBalance(s.principal, input.AccountID)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, BalanceOutput{Denied: tools.UserMessage(err)}, nil
	}
	return nil, BalanceOutput{
		Account: tools.MaskAccount(account.ID),
		Type:    account.Type,
		Balance: account.Balance,
	}, nil
}

// ListAccountsInput defines parameters for the list_accounts tool.
type ListAccountsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"target user, defaults to the session user"`
}

// AccountItem is one account in a listing.
type AccountItem struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Balance float64 `json:"balance"`
}

// ListAccountsOutput lists accounts.
type ListAccountsOutput struct {
	Accounts []AccountItem `json:"accounts"`
	Denied   string        `json:"denied,omitempty"`
}

func (s *Server) handleListAccounts(ctx context.Context, req *mcpsdk.CallToolRequest, input ListAccountsInput) (*mcpsdk.CallToolResult, ListAccountsOutput, error) {
	accounts, err := s.dispatcher.ListAccounts(s.principal, input.UserID)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ListAccountsOutput{Denied: tools.UserMessage(err)}, nil
	}
	out := ListAccountsOutput{Accounts: []AccountItem{}}
	for _, a := range accounts {
		out.Accounts = append(out.Accounts, AccountItem{ID: a.ID, Type: a.Type, Balance: a.Balance})
	}
	return nil, out, nil
}

// HistoryInput defines parameters for the transaction_history tool.
type HistoryInput struct {
	AccountID string `json:"account_id" jsonschema:"account to read"`
	Limit     int    `json:"limit,omitempty" jsonschema:"max transactions, defaults to 20"`
}

// TransactionItem is one movement in a history listing.
type TransactionItem struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// HistoryOutput lists transactions.
type HistoryOutput struct {
	Transactions []TransactionItem `json:"transactions"`
	Denied       string            `json:"denied,omitempty"`
}

func (s *Server) handleTransactionHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input HistoryInput) (*mcpsdk.CallToolResult, HistoryOutput, error) {
	txns, err := s.dispatcher.TransactionHistory(s.principal, input.AccountID, input.Limit)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, HistoryOutput{Denied: tools.UserMessage(err)}, nil
	}
	out := HistoryOutput{Transactions: []TransactionItem{}}
	for _, t := range txns {
		out.Transactions = append(out.Transactions, TransactionItem{
			Type: t.Type, Amount: t.Amount, Description: t.Description, Timestamp: t.Timestamp,
		})
	}
	return nil, out, nil
}

// TransferInput defines parameters for the transfer tool.
type TransferInput struct {
	FromAccount string  `json:"from_account" jsonschema:"source account id"`
	ToAccount   string  `json:"to_account" jsonschema:"destination account id"`
	Amount      float64 `json:"amount" jsonschema:"amount to move, must be positive"`
	Description string  `json:"description,omitempty"`
}

// TransferOutput confirms or refuses a transfer.
type TransferOutput struct {
	Transferred bool   `json:"transferred"`
	Denied      string `json:"denied,omitempty"`
}

func (s *Server) handleTransfer(ctx context.Context, req *mcpsdk.CallToolRequest, input TransferInput) (*mcpsdk.CallToolResult, TransferOutput, error) {
	if err := s.dispatcher.Transfer(s.principal, input.FromAccount, input.ToAccount, input.Amount, input.Description); err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, TransferOutput{Denied: tools.UserMessage(err)}, nil
	}
	return nil, TransferOutput{Transferred: true}, nil
}

// FraudInput defines parameters for the report_fraud tool.
type FraudInput struct {
	Description string `json:"description" jsonschema:"what looks fraudulent"`
}

// FraudOutput returns the opened ticket.
type FraudOutput struct {
	TicketID string `json:"ticket_id,omitempty"`
	Denied   string `json:"denied,omitempty"`
}

func (s *Server) handleReportFraud(ctx context.Context, req *mcpsdk.CallToolRequest, input FraudInput) (*mcpsdk.CallToolResult, FraudOutput, error) {
	ticketID, err := s.dispatcher.ReportFraud(s.principal, input.Description)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, FraudOutput{Denied: tools.UserMessage(err)}, nil
	}
	return nil, FraudOutput{TicketID: ticketID}, nil
}

// ListEscalationsInput defines parameters for the list_escalations tool.
type ListEscalationsInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status (pending/approved/rejected/resolved)"`
}

// TicketItem is one ticket in a listing.
type TicketItem struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	CreatedAt  string  `json:"created_at"`
}

// ListEscalationsOutput lists tickets.
type ListEscalationsOutput struct {
	Tickets []TicketItem `json:"tickets"`
	Denied  string       `json:"denied,omitempty"`
}

func (s *Server) handleListEscalations(ctx context.Context, req *mcpsdk.CallToolRequest, input ListEscalationsInput) (*mcpsdk.CallToolResult, ListEscalationsOutput, error) {
	tickets, err := s.dispatcher.ListEscalations(s.principal, input.Status)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ListEscalationsOutput{Denied: tools.UserMessage(err)}, nil
	}
	out := ListEscalationsOutput{Tickets: []TicketItem{}}
	for _, t := range tickets {
		out.Tickets = append(out.Tickets, TicketItem{
			ID: t.ID, UserID: t.UserID, Status: t.Status, Confidence: t.Confidence, CreatedAt: t.CreatedAt,
		})
	}
	return nil, out, nil
}

// ResolveInput defines parameters for the resolve_escalation tool.
type ResolveInput struct {
	TicketID string `json:"ticket_id" jsonschema:"ticket to resolve"`
	Note     string `json:"note" jsonschema:"resolution note"`
}

// ResolveOutput reports whether the resolution took effect.
type ResolveOutput struct {
	Resolved bool   `json:"resolved"`
	Denied   string `json:"denied,omitempty"`
}

func (s *Server) handleResolveEscalation(ctx context.Context, req *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	resolved, err := s.dispatcher.ResolveEscalation(s.principal, input.TicketID, input.Note)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ResolveOutput{Denied: tools.UserMessage(err)}, nil
	}
	return nil, ResolveOutput{Resolved: resolved}, nil
}

// StatsInput is empty, queue_stats takes no parameters.
type StatsInput struct{}

// StatsOutput summarizes visible tickets.
type StatsOutput struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Resolved      int     `json:"resolved"`
	AvgConfidence float64 `json:"avg_confidence"`
	Denied        string  `json:"denied,omitempty"`
}

func (s *Server) handleQueueStats(ctx context.Context, req *mcpsdk.CallToolRequest, input StatsInput) (*mcpsdk.CallToolResult, StatsOutput, error) {
	stats, err := s.dispatcher.QueueStats(s.principal)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, StatsOutput{Denied: tools.UserMessage(err)}, nil
	}
	return nil, StatsOutput{
		Total:         stats.Total,
		Pending:       stats.Pending,
		Resolved:      stats.Resolved,
		AvgConfidence: stats.AvgConfidence,
	}, nil
}
