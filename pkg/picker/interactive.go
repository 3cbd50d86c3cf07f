package picker

import (
	"context"
	"io"
	"os"
	"strings"

	"emperror.dev/errors"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	optionStyle   = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("212"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// Interactive asks on the terminal. A single option is taken without asking.
type Interactive struct {
	In  io.Reader
	Out io.Writer
}

func (i Interactive) Choose(ctx context.Context, title string, options []string) (int, error) {
	switch len(options) {
	case 0:
		return -1, ErrEmpty
	case 1:
		return 0, nil
	}
	in, out := i.In, i.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	prog := tea.NewProgram(newModel(title, options), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return -1, errors.WithStack(ctx.Err())
		}
		return -1, errors.Wrap(err, "cannot run chooser")
	}
	return final.(model).result()
}

type model struct {
	title   string
	options []string
	cursor  int
	chosen  bool
	aborted bool
}

func newModel(title string, options []string) model {
	return model{title: title, options: options}
}

// result is the selection once the program ended. Anything but enter aborts.
func (m model) result() (int, error) {
	if !m.chosen {
		return -1, ErrAborted
	}
	return m.cursor, nil
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = len(m.options) - 1
		case "enter":
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.chosen || m.aborted {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title) + "\n")
	for i, opt := range m.options {
		if i == m.cursor {
			sb.WriteString(cursorStyle.Render(">") + selectedStyle.Render(opt) + "\n")
		} else {
			sb.WriteString(" " + optionStyle.Render(opt) + "\n")
		}
	}
	sb.WriteString(helpStyle.Render("j/k move • enter select • q quit"))
	return sb.String() + "\n"
}
