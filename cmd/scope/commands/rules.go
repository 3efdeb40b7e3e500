package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/garagon/aguara"
	"github.com/spf13/cobra"

	"github.com/devchilll/scope/rules"
)

func newRulesCmd() *cobra.Command {
	var explain string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List or explain detection rules",
		Example: `  scope rules
  scope rules --explain BNK-003`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Extract the banking rules so they list alongside Aguara's
			bankDir, err := rules.ExtractDir()
			if err != nil {
				return fmt.Errorf("extracting banking rules: %w", err)
			}
			defer os.RemoveAll(bankDir) //nolint:errcheck

			opts := []aguara.Option{aguara.WithCustomRules(bankDir)}

			logger := newLogger("warn")
			if cfg := loadConfig(logger); cfg.CustomRulesDir != "" {
				opts = append(opts, aguara.WithCustomRules(cfg.CustomRulesDir))
			}

			if explain != "" {
				detail, err := aguara.ExplainRule(explain, opts...)
				if err != nil {
					return err
				}
				fmt.Printf("Rule: %s\n", detail.ID)
				fmt.Printf("Name: %s\n", detail.Name)
				fmt.Printf("Severity: %s\n", detail.Severity)
				fmt.Printf("Category: %s\n", detail.Category)
				fmt.Printf("Description: %s\n", detail.Description)
				fmt.Println("\nPatterns:")
				for _, p := range detail.Patterns {
					fmt.Printf("  %s\n", p)
				}
				return nil
			}

			allRules := aguara.ListRules(opts...)
			fmt.Printf("Loaded %d detection rules:\n\n", len(allRules))
			for _, r := range allRules {
				fmt.Printf("  %-12s %-10s %s\n", r.ID, r.Severity, r.Name)
			}

			// Verify the engine is working
			result, err := aguara.ScanContent(context.Background(), "test", "test.md", opts...)
			if err != nil {
				return fmt.Errorf("engine check: %w", err)
			}
			fmt.Printf("\nEngine status: OK (%d rules loaded)\n", result.RulesLoaded)
			return nil
		},
	}

	cmd.Flags().StringVar(&explain, "explain", "", "explain a specific rule by ID")
	return cmd
}
