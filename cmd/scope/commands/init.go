package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/bank"
	"github.com/devchilll/scope/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and seed demo banking data",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")

			if _, err := os.Stat(cfgFile); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", cfgFile)
			}

			cfg := config.Defaults()
			if err := cfg.Save(cfgFile); err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("creating data dir: %w", err)
			}

			b, err := bank.NewStore(cfg.BankDB(), logger)
			if err != nil {
				return err
			}
			defer b.Close() //nolint:errcheck

			if err := b.Seed(); err != nil {
				return fmt.Errorf("seeding demo data: %w", err)
			}

			color.Green("scope initialized")
			fmt.Printf("  config: %s\n", cfgFile)
			fmt.Printf("  data:   %s\n", cfg.DataDir)
			fmt.Println("  demo identities:")
			for _, u := range bank.SeedUsers {
				fmt.Printf("    %-12s %-12s (%s)\n", u.ID, u.Name, u.Role)
			}
			fmt.Println("\nTry: scope ask \"what is my balance\"")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}
