package audit

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobalert/internal/model"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerItemStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

const (
	pickerPending = -1
	pickerQuit    = -2
)

type pickerModel struct {
	alerts []model.JobAlert
	cursor int
	chosen int
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.chosen = pickerQuit
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.alerts)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.alerts) > 0 {
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render("Preview: select an alert"))
	b.WriteByte('\n')

	if len(m.alerts) == 0 {
		b.WriteString(pickerItemStyle.Render("(no alerts, create one with `jobalert alerts add`)"))
		b.WriteByte('\n')
	}
	for i, a := range m.alerts {
		label := alertLabel(a)
		if !a.Active {
			label += pickerInactiveStyle.Render("  (inactive)")
		}
		if i == m.cursor {
			b.WriteString(pickerSelectedStyle.Render("> " + label))
		} else {
			b.WriteString(pickerItemStyle.Render(label))
		}
		b.WriteByte('\n')
	}

	b.WriteString(pickerHintStyle.Render("↑/↓/j/k navigate  enter select  q quit"))
	return b.String()
}

// alertLabel summarises an alert on one line: companies, keywords and frequency.
func alertLabel(a model.JobAlert) string {
	return fmt.Sprintf("%s  [%s]  %s",
		truncate(strings.Join(a.CompanyNames(), ", "), 48),
		truncate(strings.Join(a.Words(), ", "), 32),
		a.Frequency,
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RunAlertPicker shows an interactive alert selector.
// Returns the index of the chosen alert, or -1 if the user quit.
func RunAlertPicker(alerts []model.JobAlert) (int, error) {
	p := tea.NewProgram(pickerModel{alerts: alerts, chosen: pickerPending})
	result, err := p.Run()
	if err != nil {
		return -1, err
	}
	final := result.(pickerModel)
	if final.chosen < 0 {
		return -1, nil
	}
	return final.chosen, nil
}
