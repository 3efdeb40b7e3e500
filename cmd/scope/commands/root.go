// Package commands implements the scope CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/audit"
	"github.com/devchilll/scope/internal/bank"
	"github.com/devchilll/scope/internal/config"
	"github.com/devchilll/scope/internal/escalation"
	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/metrics"
	"github.com/devchilll/scope/internal/pipeline"
	"github.com/devchilll/scope/internal/policy"
	"github.com/devchilll/scope/internal/risk"
	"github.com/devchilll/scope/internal/tools"
)

var cfgFile string

// NewRoot creates the root scope command.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "scope",
		Short: "Role-aware request governance for an LLM banking agent",
		Long: `scope sits between users and an LLM banking agent. Every request is
scored for safety and compliance, decided against policy thresholds, and
either approved, rewritten, rejected, or escalated to a human review queue.
Banking tools behind the agent are gated per role and fully audited.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "scope.yaml", "config file path")

	root.AddCommand(
		newInitCmd(),
		newAskCmd(),
		newServeCmd(),
		newMCPCmd(),
		newEscalationsCmd(),
		newAccountsCmd(),
		newLogsCmd(),
		newRulesCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// newLogger builds the text logger all commands share. Logs go to stderr so
// stdout stays clean for command output and the MCP transport.
func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist yet.
func loadConfig(logger *slog.Logger) *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Warn("config not loaded, using defaults", "path", cfgFile, "error", err)
		return config.Defaults()
	}
	return cfg
}

// sessionPrincipal resolves the principal the CLI acts as. Unknown roles
// downgrade to user rather than failing open.
func sessionPrincipal(cfg *config.Config, logger *slog.Logger) iam.Principal {
	role, ok := iam.ParseRole(cfg.Session.Role)
	if !ok {
		logger.Warn("unknown session role, acting as user", "role", cfg.Session.Role)
	}
	return iam.Principal{ID: cfg.Session.UserID, Role: role, Name: cfg.Session.Name}
}

// stack is the full governance stack a command runs against.
type stack struct {
	bank       *bank.Store
	ledger     *escalation.Store
	trail      *audit.Store
	metrics    *metrics.Metrics
	pipeline   *pipeline.Pipeline
	dispatcher *tools.Dispatcher
}

// Close flushes the audit trail and closes the stores.
func (s *stack) Close() {
	_ = s.trail.Close()
	_ = s.ledger.Close()
	_ = s.bank.Close()
}

// openStack opens the three databases and wires the pipeline and dispatcher
// on top of them.
func openStack(cfg *config.Config, logger *slog.Logger) (*stack, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	b, err := bank.NewStore(cfg.BankDB(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening bank store: %w", err)
	}

	ledger, err := escalation.NewStore(cfg.EscalationDB(), logger)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("opening escalation ledger: %w", err)
	}

	trail, err := audit.NewStore(cfg.AuditDB(), logger)
	if err != nil {
		_ = ledger.Close()
		_ = b.Close()
		return nil, fmt.Errorf("opening audit trail: %w", err)
	}

	engine, err := policy.NewEngine(cfg.Policy)
	if err != nil {
		logger.Warn("invalid policy thresholds in config, using defaults", "error", err)
	}

	m := metrics.New()
	pipe := pipeline.New(newScorer(cfg, logger), engine, ledger, trail, m, logger, cfg.Scorer.Timeout())

	return &stack{
		bank:       b,
		ledger:     ledger,
		trail:      trail,
		metrics:    m,
		pipeline:   pipe,
		dispatcher: tools.NewDispatcher(b, ledger, trail, m, logger),
	}, nil
}

// newScorer builds the configured risk scorer, wrapped in the Redis cache
// when caching is enabled.
func newScorer(cfg *config.Config, logger *slog.Logger) risk.Scorer {
	var scorer risk.Scorer
	if cfg.Scorer.Mode == "remote" {
		scorer = risk.NewRemoteScorer(cfg.Scorer.URL, cfg.Scorer.Timeout())
	} else {
		scorer = risk.NewHeuristicScorer(cfg.CustomRulesDir, logger)
	}
	if cfg.Cache.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		scorer = risk.NewCachedScorer(scorer, rdb, cfg.Cache.TTL(), logger)
	}
	return scorer
}

// shortID trims a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
