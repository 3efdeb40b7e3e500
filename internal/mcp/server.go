// Package mcp exposes the governed banking tools over the Model Context
// Protocol on stdio. The session principal is fixed at startup from
// configuration; every tool call is re-checked by the dispatch gate, so a
// client listing a tool it cannot use gains nothing by calling it.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/pipeline"
	"github.com/devchilll/scope/internal/tools"
)

// Server wraps the MCP SDK server with the scope governance stack.
type Server struct {
	mcpServer  *mcpsdk.Server
	pipeline   *pipeline.Pipeline
	dispatcher *tools.Dispatcher
	principal  iam.Principal
	logger     *slog.Logger
}

// New creates an MCP server acting as the given principal.
func New(principal iam.Principal, pipe *pipeline.Pipeline, dispatcher *tools.Dispatcher, logger *slog.Logger) *Server {
	s := &Server{
		pipeline:   pipe,
		dispatcher: dispatcher,
		principal:  principal,
		logger:     logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "scope",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting",
		"principal", s.principal.ID,
		"role", s.principal.Role)
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all scope tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "govern_request",
		Description: "Run a natural-language banking request through safety and compliance governance. Returns the decision and, when escalated, the review ticket id.",
	}, s.handleGovernRequest)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "check_balance",
		Description: "Get the current balance of an account.",
	}, s.handleCheckBalance)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_accounts",
		Description: "List accounts for a user. Defaults to the session user; cross-customer listing requires a support role.",
	}, s.handleListAccounts)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "transaction_history",
		Description: "List recent transactions on an account.",
	}, s.handleTransactionHistory)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "transfer",
		Description: "Transfer funds between two accounts owned by the session user. Ownership of both accounts is enforced for every role.",
	}, s.handleTransfer)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "report_fraud",
		Description: "Report suspected fraud. Opens a high-priority review ticket and returns its id.",
	}, s.handleReportFraud)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_escalations",
		Description: "List escalation tickets visible to the session user, optionally filtered by status.",
	}, s.handleListEscalations)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "resolve_escalation",
		Description: "Resolve a pending escalation ticket. Requires the resolve permission; a ticket resolves at most once.",
	}, s.handleResolveEscalation)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "queue_stats",
		Description: "Summarize the escalation tickets visible to the session user.",
	}, s.handleQueueStats)
}
