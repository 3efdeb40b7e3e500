package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/escalation"
)

func newEscalationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "escalations",
		Aliases: []string{"esc"},
		Short:   "Inspect and resolve the human review queue",
	}

	cmd.AddCommand(
		newEscalationsListCmd(),
		newEscalationsDetailCmd(),
		newEscalationsResolveCmd(),
		newEscalationsStatsCmd(),
		newEscalationsReviewCmd(),
	)

	return cmd
}

func newEscalationsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List escalation tickets visible to the session user",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			principal := sessionPrincipal(cfg, logger)
			tickets, err := st.dispatcher.ListEscalations(principal, status)
			if err != nil {
				return err
			}
			if limit > 0 && len(tickets) > limit {
				tickets = tickets[:limit]
			}

			if len(tickets) == 0 {
				fmt.Println("No escalation tickets found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tSTATUS\tCONFIDENCE\tCREATED") //nolint:errcheck
			for _, t := range tickets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", //nolint:errcheck
					shortID(t.ID), t.UserID, t.Status, t.Confidence, t.CreatedAt)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (pending/approved/rejected/resolved)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max tickets to show")
	return cmd
}

func newEscalationsDetailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail [ticket-id]",
		Short: "Show one escalation ticket in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			principal := sessionPrincipal(cfg, logger)
			ticket, err := st.ledger.Get(principal, args[0])
			if err != nil {
				return fmt.Errorf("loading ticket: %w", err)
			}

			fmt.Printf("Ticket:      %s\n", ticket.ID)
			fmt.Printf("User:        %s\n", ticket.UserID)
			fmt.Printf("Status:      %s\n", ticket.Status)
			fmt.Printf("Confidence:  %.2f\n", ticket.Confidence)
			fmt.Printf("Created:     %s\n", ticket.CreatedAt)
			fmt.Printf("Input:       %s\n", ticket.InputText)
			fmt.Printf("Reasoning:   %s\n", ticket.AgentReasoning)
			if ticket.Terminal() {
				fmt.Printf("Resolved by: %s at %s\n", ticket.ResolvedBy, ticket.ResolvedAt)
				fmt.Printf("Note:        %s\n", ticket.ResolutionNote)
			}
			return nil
		},
	}
}

func newEscalationsResolveCmd() *cobra.Command {
	var (
		note    string
		verdict string
	)

	cmd := &cobra.Command{
		Use:   "resolve [ticket-id]",
		Short: "Resolve a pending ticket",
		Long: `Marks a pending ticket as handled. A ticket resolves at most once;
resolving an already-terminal ticket reports that nothing changed. The
verdict can be resolved, approved, or rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			principal := sessionPrincipal(cfg, logger)
			resolved, err := st.dispatcher.ResolveEscalationWith(principal, args[0], verdict, note)
			if err != nil {
				return err
			}

			if resolved {
				fmt.Printf("Ticket %s marked %s.\n", shortID(args[0]), verdict)
			} else {
				fmt.Printf("Ticket %s was not pending; nothing changed.\n", shortID(args[0]))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&note, "note", "m", "", "resolution note")
	cmd.Flags().StringVar(&verdict, "verdict", escalation.StatusResolved, "resolved, approved, or rejected")
	return cmd
}

func newEscalationsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize tickets visible to the session user",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			principal := sessionPrincipal(cfg, logger)
			stats, err := st.dispatcher.QueueStats(principal)
			if err != nil {
				return err
			}

			fmt.Printf("Total:          %d\n", stats.Total)
			fmt.Printf("Pending:        %d\n", stats.Pending)
			fmt.Printf("Resolved:       %d\n", stats.Resolved)
			fmt.Printf("Avg confidence: %.2f\n", stats.AvgConfidence)
			return nil
		},
	}
}
