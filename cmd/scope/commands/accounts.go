package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/tools"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts and move funds as the session user",
	}

	cmd.AddCommand(
		newAccountsListCmd(),
		newAccountsHistoryCmd(),
		newAccountsTransferCmd(),
	)

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			principal := sessionPrincipal(cfg, logger)
			accounts, err := st.dispatcher.ListAccounts(principal, user)
			if err != nil {
				return err
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts found. Run 'scope init' to seed demo data.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tTYPE\tBALANCE") //nolint:errcheck
			for _, a := range accounts {
				fmt.Fprintf(w, "%s\t%s\t%.2f\n", tools.MaskAccount(a.ID), a.Type, a.Balance) //nolint:errcheck
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "list another user's accounts (needs a support role)")
	return cmd
}

func newAccountsHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [account-id]",
		Short: "List recent transactions on an account",
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
			txns, err := st.dispatcher.TransactionHistory(principal, args[0], limit)
			if err != nil {
				return err
			}

			if len(txns) == 0 {
				fmt.Println("No transactions.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTYPE\tAMOUNT\tDESCRIPTION") //nolint:errcheck
			for _, tx := range txns {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", tx.Timestamp, tx.Type, tx.Amount, tx.Description) //nolint:errcheck
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max transactions to show")
	return cmd
}

func newAccountsTransferCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "transfer [from-id] [to-id] [amount]",
		Short: "Transfer between two of your own accounts",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}

			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			principal := sessionPrincipal(cfg, logger)
			if err := st.dispatcher.Transfer(principal, args[0], args[1], amount, note); err != nil {
				return fmt.Errorf("%s", tools.UserMessage(err))
			}

			fmt.Printf("Transferred %.2f from %s to %s.\n",
				amount, tools.MaskAccount(args[0]), tools.MaskAccount(args[1]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&note, "note", "m", "", "transfer description")
	return cmd
}
