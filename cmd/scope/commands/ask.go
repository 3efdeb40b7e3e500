package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devchilll/scope/internal/pipeline"
	"github.com/devchilll/scope/internal/policy"
)

func newAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Govern one request as the configured session user",
		Long: `Runs a single request through scoring and policy as the session
principal from the config file, then prints the verdict. Escalated requests
print the review ticket id.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("warn")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			principal := sessionPrincipal(cfg, logger)
			result := st.pipeline.Handle(cmd.Context(), principal, strings.Join(args, " "))

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			printVerdict(principal.ID, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printVerdict(userID string, result pipeline.Result) {
	label := strings.ToUpper(string(result.Action))
	switch result.Action {
	case policy.ActionApprove:
		label = color.GreenString(label)
	case policy.ActionRewrite:
		label = color.CyanString(label)
	case policy.ActionEscalate:
		label = color.YellowString(label)
	case policy.ActionReject:
		label = color.RedString(label)
	}

	fmt.Printf("%s  (user %s)\n", label, userID)
	fmt.Printf("  safety %.2f  compliance %.2f  confidence %.2f\n",
		result.Analysis.SafetyScore, result.Analysis.ComplianceScore, result.Analysis.Confidence)
	if result.Reasoning != "" {
		fmt.Printf("  reasoning: %s\n", result.Reasoning)
	}
	if result.ProcessedText != "" && result.Action == policy.ActionRewrite {
		fmt.Printf("  rewritten: %s\n", result.ProcessedText)
	}
	if result.TicketID != "" {
		fmt.Printf("  ticket: %s\n", result.TicketID)
	}
	if result.Reply != "" {
		fmt.Printf("  reply: %s\n", result.Reply)
	}
}
