package commands

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/devchilll/scope/internal/review"
)

func newEscalationsReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Work the pending queue interactively",
		Long: `Opens a terminal UI over the pending escalation queue. Verdicts are
recorded through the same gated, audited path as every other surface, so
a session without the resolve permission can browse but not act.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("review needs an interactive terminal; use 'scope escalations list' instead")
			}

			logger := newLogger("error")
			cfg := loadConfig(logger)

			st, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			model, err := review.New(st.dispatcher, sessionPrincipal(cfg, logger))
			if err != nil {
				return err
			}

			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
}
