// Package review is the interactive terminal queue for escalation tickets.
// A reviewer walks the pending queue and records a verdict with a note;
// every resolution goes through the gated dispatcher like the API and CLI,
// so verdicts are permission-checked and audited, and a session without
// the resolve permission can browse but not act.
package review

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/devchilll/scope/internal/escalation"
	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/tools"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle   = lipgloss.NewStyle().PaddingLeft(4).Foreground(lipgloss.Color("250"))
)

// Model is the bubbletea model for the review queue.
type Model struct {
	dispatcher *tools.Dispatcher
	principal  iam.Principal

	tickets []escalation.Ticket
	cursor  int
	expand  bool

	noting  bool
	verdict string
	note    textinput.Model

	status   string
	statusOK bool
	quitting bool
}

// New builds a review model over the pending queue visible to principal.
func New(dispatcher *tools.Dispatcher, principal iam.Principal) (Model, error) {
	note := textinput.New()
	note.Placeholder = "resolution note"
	note.CharLimit = 200

	m := Model{dispatcher: dispatcher, principal: principal, note: note}
	if err := m.refresh(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m *Model) refresh() error {
	tickets, err := m.dispatcher.ListEscalations(m.principal, escalation.StatusPending)
	if err != nil {
		return fmt.Errorf("loading pending queue: %w", err)
	}
	m.tickets = tickets
	if m.cursor >= len(m.tickets) {
		m.cursor = len(m.tickets) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.noting {
		return m.updateNoting(key)
	}

	switch key.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.tickets)-1 {
			m.cursor++
		}

	case "enter":
		m.expand = !m.expand

	case "a":
		m.beginVerdict(escalation.StatusApproved)

	case "r":
		m.beginVerdict(escalation.StatusRejected)

	case "d":
		m.beginVerdict(escalation.StatusResolved)
	}

	return m, nil
}

func (m *Model) beginVerdict(verdict string) {
	if len(m.tickets) == 0 {
		return
	}
	m.noting = true
	m.verdict = verdict
	m.note.SetValue("")
	m.note.Focus()
}

func (m Model) updateNoting(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.noting = false
		m.status = ""
		return m, nil

	case "enter":
		ticket := m.tickets[m.cursor]
		resolved, err := m.dispatcher.ResolveEscalationWith(m.principal, ticket.ID, m.verdict, m.note.Value())
		m.noting = false
		switch {
		case err != nil:
			m.status = fmt.Sprintf("cannot resolve: %v", err)
			m.statusOK = false
		case !resolved:
			m.status = "ticket was no longer pending"
			m.statusOK = false
		default:
			m.status = fmt.Sprintf("ticket %s marked %s", ticket.ID[:8], m.verdict)
			m.statusOK = true
		}
		if err := m.refresh(); err != nil {
			m.status = err.Error()
			m.statusOK = false
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.note, cmd = m.note.Update(key)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := titleStyle.Render("scope review queue") + "\n"
	s += dimStyle.Render(fmt.Sprintf("reviewer %s (%s)", m.principal.ID, m.principal.Role)) + "\n\n"

	if len(m.tickets) == 0 {
		s += dimStyle.Render("nothing pending") + "\n"
	}

	for i, t := range m.tickets {
		line := fmt.Sprintf("%s  %-12s  conf %.2f  %s", t.ID[:8], t.UserID, t.Confidence, t.CreatedAt)
		if i == m.cursor {
			s += selectedStyle.Render("> "+line) + "\n"
			if m.expand {
				s += detailStyle.Render("input:     "+t.InputText) + "\n"
				s += detailStyle.Render("reasoning: "+t.AgentReasoning) + "\n"
			}
		} else {
			s += "  " + line + "\n"
		}
	}

	s += "\n"
	if m.noting {
		s += fmt.Sprintf("note for %s: %s\n", m.verdict, m.note.View())
		s += dimStyle.Render("enter to confirm, esc to cancel") + "\n"
		return s
	}

	if m.status != "" {
		if m.statusOK {
			s += okStyle.Render(m.status) + "\n"
		} else {
			s += errStyle.Render(m.status) + "\n"
		}
	}
	s += dimStyle.Render("j/k move · enter detail · a approve · r reject · d resolve · q quit") + "\n"
	return s
}
