package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type searchPage struct {
	width       int
	height      int
	err         error
	items       []incidentDetail
	searchInput textinput.Model
}

func (m searchPage) Init() tea.Cmd {
	return nil
}

func (m searchPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEnter && m.searchInput.Focused() {
			return m, m.showIncident()
		}
		if msg.Type == tea.KeyTab && !m.searchInput.Focused() {
			m.searchInput.Focus()
		}
		switch msg.String() {
		case "esc":
			if m.searchInput.Focused() {
				m.searchInput.Blur()
			} else {
				return m, tea.Quit
			}
		case "1":
			if !m.searchInput.Focused() {
				return m, func() tea.Msg { return goToTableMsg{} }
			}
		}
		if m.searchInput.Focused() {
			var cmd tea.Cmd
			m.searchInput, cmd = m.searchInput.Update(msg)
			return m, cmd
		}
	case goToSearchMsg:
		if m.searchInput.Value() == "" {
			m.searchInput = initializeInput()
		}
		m.err = nil
		return m, m.searchInput.Focus()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

func initializeInput() textinput.Model {
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "incident id or part of its name"
	input.Width = 50
	return input
}

// find returns the first incident whose id matches exactly or whose name
// contains q, case-insensitively.
func (m searchPage) find(q string) *incidentDetail {
	q = strings.ToLower(strings.TrimSpace(q))
	for i := range m.items {
		if strings.ToLower(m.items[i].incident.ID) == q {
			return &m.items[i]
		}
	}
	for i := range m.items {
		if strings.Contains(strings.ToLower(m.items[i].incident.Name), q) {
			return &m.items[i]
		}
	}
	return nil
}

func (m *searchPage) showIncident() tea.Cmd {
	q := m.searchInput.Value()
	if strings.TrimSpace(q) == "" {
		m.err = errors.New("please enter an incident id or name")
		return nil
	}
	item := m.find(q)
	if item == nil {
		m.err = fmt.Errorf("no incident matches %q", q)
		return nil
	}
	m.err = nil
	return func() tea.Msg { return goToDetailMsg{item: item} }
}

func (m searchPage) View() string {
	instructions := lipgloss.NewStyle().
		MarginTop(min(m.height/4, 10)).
		MarginBottom(2).
		Render("Find a ledgered incident by id or name")

	borderColor := lipgloss.Color("8")
	if m.searchInput.Focused() {
		borderColor = lipgloss.Color("15")
	}
	input := lipgloss.NewStyle().
		Width(50).
		Border(lipgloss.NormalBorder()).
		BorderForeground(borderColor).
		Render(m.searchInput.View())

	help := helpBar("1: go to incidents", "Tab: focus search input", "Esc: quit")
	if m.searchInput.Focused() {
		help = helpBar("Enter: open incident", "Esc: unfocus search input")
	}

	var errLine string
	if m.err != nil {
		errLine = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.err.Error())
	}

	return pageLayout(lipgloss.JoinVertical(
		lipgloss.Center,
		renderMenu(1, m.width),
		instructions,
		input,
		errLine,
		lipgloss.NewStyle().MarginTop(2).Render(help),
	))
}
