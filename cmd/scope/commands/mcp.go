package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the governed banking tools over MCP on stdio",
		Long: `Exposes govern_request and the gated banking tools to an MCP client
over stdio. The server acts as the session principal from the config file;
every call is still permission-checked and audited.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			principal := sessionPrincipal(cfg, logger)
			return mcp.New(principal, st.pipeline, st.dispatcher, logger).Run(ctx)
		},
	}
}
