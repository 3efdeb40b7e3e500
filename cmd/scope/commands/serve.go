package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/config"
	"github.com/devchilll/scope/internal/pipeline"
	"github.com/devchilll/scope/internal/policy"
	"github.com/devchilll/scope/internal/server"
	"github.com/devchilll/scope/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scope HTTP API",
		Long: `Starts the governance API. Principals are taken from the
X-Scope-User and X-Scope-Role request headers; policy thresholds reload
live when the config file changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := newLogger("info")
			cfg := loadConfig(bootLogger)

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind = bind
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := newLogger(cfg.Server.LogLevel)

			shutdownTraces, err := telemetry.Init(cfg.Telemetry.Traces)
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			srv, err := server.NewServer(cfg, server.Deps{
				Pipeline:   st.pipeline,
				Dispatcher: st.dispatcher,
				Trail:      st.trail,
				Metrics:    st.metrics,
			}, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watcher, err := config.NewWatcher(cfgFile, logger, func(next *config.Config) {
				srv.UpdatePolicy(next.Policy, func(engine *policy.Engine) *pipeline.Pipeline {
					return pipeline.New(newScorer(next, logger), engine,
						st.ledger, st.trail, st.metrics, logger, next.Scorer.Timeout())
				})
			})
			if err != nil {
				logger.Warn("config watching disabled", "error", err)
			} else {
				go func() { _ = watcher.Run(ctx) }()
			}

			printBanner(cfg, srv.Port())

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
				logger.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown error: %w", err)
				}
			}

			_ = shutdownTraces(context.Background())
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8090, "port to listen on")
	cmd.Flags().StringVar(&bind, "bind", "127.0.0.1", "address to bind")
	return cmd
}

func printBanner(cfg *config.Config, port int) {
	bold := color.New(color.Bold)
	bold.Println("scope governance api") //nolint:errcheck
	fmt.Printf("  listening:  http://%s:%d\n", cfg.Server.Bind, port)
	fmt.Printf("  scorer:     %s\n", cfg.Scorer.Mode)
	fmt.Printf("  data:       %s\n", cfg.DataDir)
	fmt.Printf("  thresholds: reject<%.2f approve>=%.2f confidence>=%.2f\n",
		cfg.Policy.RejectFloor, cfg.Policy.ApproveCeiling, cfg.Policy.ConfidenceFloor)
	fmt.Println()
}
