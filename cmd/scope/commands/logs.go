package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/audit"
)

func newLogsCmd() *cobra.Command {
	var (
		eventType string
		user      string
		since     time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query the audit trail",
		Long: `Lists audit events, newest first. Needs the view-logs permission;
customer sessions are refused.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := audit.QueryOpts{EventType: eventType, UserID: user, Limit: limit}
			if since > 0 {
				opts.Since = time.Now().UTC().Add(-since).Format(time.RFC3339)
			}

			principal := sessionPrincipal(cfg, logger)
			events, err := st.dispatcher.ViewLogs(principal, opts)
			if err != nil {
				return err
			}

			if len(events) == 0 {
				fmt.Println("No audit events match.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTYPE\tUSER\tACTION\tOK") //nolint:errcheck
			for _, e := range events {
				ok := "yes"
				if !e.Success {
					ok = "no"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck
					e.Timestamp, e.EventType, e.UserID, e.Action, ok)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&eventType, "type", "t", "", "filter by event type")
	cmd.Flags().StringVarP(&user, "user", "u", "", "filter by user id")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this (e.g. 24h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max events to show")
	return cmd
}
