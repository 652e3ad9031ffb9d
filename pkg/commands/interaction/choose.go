package interaction

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

type choiceKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Quit   key.Binding
}

var choiceKeys = choiceKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Choose: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "cancel"),
	),
}

var (
	questionStyle = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// choiceModel is a selection list. Digits 1-9 pick an option directly.
type choiceModel struct {
	question  string
	options   []string
	cursor    int
	chosen    bool
	cancelled bool
}

func (m choiceModel) Init() tea.Cmd { return nil }

func (m choiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, choiceKeys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, choiceKeys.Down):
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, choiceKeys.Choose):
		m.chosen = true
		return m, tea.Quit
	case key.Matches(keyMsg, choiceKeys.Quit):
		m.cancelled = true
		return m, tea.Quit
	default:
		s := keyMsg.String()
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if idx := int(s[0] - '1'); idx < len(m.options) {
				m.cursor = idx
				m.chosen = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m choiceModel) View() string {
	if m.chosen || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(questionStyle.Render(m.question))
	b.WriteString("\n\n")
	for i, opt := range m.options {
		line := fmt.Sprintf("%d. %s", i+1, opt)
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("▸ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑↓:select  enter:choose  1-9:quick select  esc:cancel"))
	b.WriteString("\n")
	return b.String()
}

// Choose asks the user to pick one of choices. Prepared answers and the
// default work as for Ask, but must be one of the choices.
func Choose(c *engine.Context, question string, choices []any, def any) (any, error) {
	if len(choices) == 0 {
		return nil, engine.FormatError("Prompt: choices must not be empty")
	}
	if !c.Interactive || hasAnswer(c, question) {
		answer, err := Ask(c, question, def)
		if err != nil {
			return nil, err
		}
		for _, ch := range choices {
			if node.Equal(ch, answer) || node.Text(ch) == node.Text(answer) {
				return ch, nil
			}
		}
		return nil, engine.TypedError(ErrorType, nil, "%q is not a valid choice for %q", node.Text(answer), question)
	}

	options := make([]string, len(choices))
	for i, ch := range choices {
		options[i] = node.Text(ch)
	}
	m := choiceModel{question: question, options: options}
	for i, ch := range choices {
		if def != nil && node.Equal(ch, def) {
			m.cursor = i
		}
	}

	var out io.Writer = os.Stdout
	if c.Stdout != nil {
		out = c.Stdout
	}
	final, err := tea.NewProgram(m, tea.WithOutput(out)).Run()
	if err != nil {
		return nil, engine.InternalError(err, "run choice prompt")
	}
	result := final.(choiceModel)
	if result.cancelled {
		return nil, engine.TypedError(ErrorType, nil, "no answer for %q", question)
	}
	fmt.Fprintf(out, "%s %s\n", question, options[result.cursor])
	return choices[result.cursor], nil
}

func hasAnswer(c *engine.Context, question string) bool {
	answers, ok := engine.SessionValue[map[string]any](c.Session, KeyAnswers)
	if !ok {
		return false
	}
	_, ok = answers[question]
	return ok
}
