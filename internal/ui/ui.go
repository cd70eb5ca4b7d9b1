package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"})

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#AA6600", Dark: "#FFCC00"})

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"})

	questionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
)

// Console writes user-facing messages and reads prompt answers.
// Messages are separate from structured logs.
type Console struct {
	Out io.Writer
	In  io.Reader

	rd *bufio.Reader
}

// NewConsole returns a Console bound to the process stdio.
func NewConsole() *Console {
	return &Console{Out: os.Stdout, In: os.Stdin}
}

func (c *Console) Success(format string, a ...any) { c.line(successStyle, format, a...) }
func (c *Console) Notice(format string, a ...any)  { c.line(noticeStyle, format, a...) }
func (c *Console) Warn(format string, a ...any)    { c.line(warnStyle, format, a...) }
func (c *Console) Error(format string, a ...any)   { c.line(errorStyle, format, a...) }

func (c *Console) line(st lipgloss.Style, format string, a ...any) {
	_, _ = fmt.Fprintln(c.Out, st.Render(fmt.Sprintf(format, a...)))
}

// Interactive reports whether In is a terminal.
func (c *Console) Interactive() bool {
	f, ok := c.In.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) readLine() (string, error) {
	if c.rd == nil {
		c.rd = bufio.NewReader(c.In)
	}
	s, err := c.rd.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// Confirm asks a yes/no question. On a terminal it runs an arrow-key
// prompt; otherwise it reads a line where an empty answer selects def.
func (c *Console) Confirm(question string, def bool) (bool, error) {
	if c.Interactive() {
		m, err := runPrompt(context.Background(), newConfirmPrompt(question, def), c.In, c.Out)
		if err != nil {
			return false, err
		}
		return m.(confirmPrompt).result()
	}
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	_, _ = fmt.Fprintf(c.Out, "%s %s ", questionStyle.Render(question), dimStyle.Render("("+hint+")"))
	ans, err := c.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(ans) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Ask reads a free-form answer, offering def.
func (c *Console) Ask(question, def string) (string, error) {
	if c.Interactive() {
		m, err := runPrompt(context.Background(), newTextPrompt(question, def), c.In, c.Out)
		if err != nil {
			return "", err
		}
		return m.(textPrompt).result()
	}
	prompt := questionStyle.Render(question)
	if def != "" {
		prompt += " " + dimStyle.Render("("+def+")")
	}
	_, _ = fmt.Fprintf(c.Out, "%s ", prompt)
	ans, err := c.readLine()
	if err != nil {
		return "", err
	}
	if ans == "" {
		return def, nil
	}
	return ans, nil
}
