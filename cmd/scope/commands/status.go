package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/iam"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, queue, and audit summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			session := sessionPrincipal(cfg, logger)

			fmt.Printf("Config:   %s\n", cfgFile)
			fmt.Printf("Data dir: %s\n", cfg.DataDir)
			fmt.Printf("Session:  %s (%s)\n", session.ID, session.Role)
			fmt.Printf("          %s\n", iam.RoleDescription(session.Role))
			fmt.Printf("Scorer:   %s", cfg.Scorer.Mode)
			if cfg.Cache.Enabled {
				fmt.Printf(" (cached via %s)", cfg.Cache.Addr)
			}
			fmt.Println()
			fmt.Printf("Policy:   reject<%.2f rewrite>=%.2f approve>=%.2f confidence>=%.2f\n",
				cfg.Policy.RejectFloor, cfg.Policy.RewriteLow, cfg.Policy.ApproveCeiling, cfg.Policy.ConfidenceFloor)

			// Local databases, local operator: summarize as the system
			// principal rather than the configured session.
			system := iam.Principal{ID: "scope-cli", Role: iam.RoleSystem}
			stats, err := st.ledger.Stats(system)
			if err != nil {
				return err
			}
			fmt.Printf("\nQueue:    %d total, %d pending, %d resolved\n",
				stats.Total, stats.Pending, stats.Resolved)

			typeStats, err := st.trail.StatsByType()
			if err != nil {
				return err
			}
			if len(typeStats) == 0 {
				fmt.Println("Audit:    no events recorded")
				return nil
			}

			fmt.Println("Audit:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  TYPE\tCOUNT\tFAILURES") //nolint:errcheck
			for _, ts := range typeStats {
				fmt.Fprintf(w, "  %s\t%d\t%d\n", ts.EventType, ts.Count, ts.Failures) //nolint:errcheck
			}
			return w.Flush()
		},
	}
}
