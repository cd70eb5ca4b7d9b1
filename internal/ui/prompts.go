package ui

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when a prompt is dismissed with esc or ctrl+c.
var ErrCancelled = errors.New("prompt cancelled")

var (
	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})

	unselectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"})

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})
)

// runPrompt runs a prompt model until it quits.
func runPrompt(ctx context.Context, m tea.Model, in io.Reader, out io.Writer) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	return p.Run()
}

// confirmPrompt is a yes/no choice navigated with the arrow keys. y and n
// answer directly.
type confirmPrompt struct {
	question  string
	yes       bool
	done      bool
	cancelled bool
}

func newConfirmPrompt(question string, def bool) confirmPrompt {
	return confirmPrompt{question: question, yes: def}
}

func (m confirmPrompt) Init() tea.Cmd { return nil }

func (m confirmPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "left", "h":
		m.yes = true
	case "right", "l":
		m.yes = false
	case "tab":
		m.yes = !m.yes
	case "y", "Y":
		m.yes, m.done = true, true
		return m, tea.Quit
	case "n", "N":
		m.yes, m.done = false, true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	case "ctrl+c", "esc", "q":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmPrompt) View() string {
	title := questionStyle.Render("? " + m.question)
	if m.cancelled {
		return ""
	}
	if m.done {
		answer := "No"
		if m.yes {
			answer = "Yes"
		}
		return title + " " + selectedStyle.Render(answer) + "\n"
	}

	yes, no := unselectedStyle, unselectedStyle
	yesCursor, noCursor := "  ", "  "
	if m.yes {
		yes, yesCursor = selectedStyle, cursorStyle.Render("❯ ")
	} else {
		no, noCursor = selectedStyle, cursorStyle.Render("❯ ")
	}
	var b strings.Builder
	b.WriteString(title + "\n\n")
	b.WriteString(yesCursor + yes.Render("Yes") + "    " + noCursor + no.Render("No") + "\n\n")
	b.WriteString(dimStyle.Render("  ← → to select • enter to confirm • esc to cancel"))
	return b.String()
}

func (m confirmPrompt) result() (bool, error) {
	if m.cancelled || !m.done {
		return false, ErrCancelled
	}
	return m.yes, nil
}

// textPrompt reads one line of free text. An empty answer selects def.
type textPrompt struct {
	question  string
	def       string
	input     textinput.Model
	done      bool
	cancelled bool
}

func newTextPrompt(question, def string) textPrompt {
	ti := textinput.New()
	ti.Placeholder = def
	ti.CharLimit = 256
	ti.Width = 50
	ti.Focus()
	return textPrompt{question: question, def: def, input: ti}
}

func (m textPrompt) Init() tea.Cmd { return textinput.Blink }

func (m textPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textPrompt) View() string {
	title := questionStyle.Render("? " + m.question)
	if m.cancelled {
		return ""
	}
	if m.done {
		return title + " " + selectedStyle.Render(m.value()) + "\n"
	}
	return title + "\n\n  " + m.input.View() + "\n\n" + dimStyle.Render("  enter to confirm • esc to cancel")
}

func (m textPrompt) value() string {
	if v := strings.TrimSpace(m.input.Value()); v != "" {
		return v
	}
	return m.def
}

func (m textPrompt) result() (string, error) {
	if m.cancelled || !m.done {
		return "", ErrCancelled
	}
	return m.value(), nil
}
