package tui

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

type tablePage struct {
	items []incidentDetail
	table *table.Table

	ready        bool
	cursor       int
	currentPage  int
	totalPages   int
	tableWidth   int
	nameWidth    int
	startedWidth int
	countWidth   int
	postsWidth   int
	pageSize     int
}

func TablePage(items []incidentDetail, cursor int, pageSize int, currentPage int) tablePage {
	return tablePage{
		items:       items,
		cursor:      cursor,
		pageSize:    pageSize,
		currentPage: currentPage,
	}
}

func (m tablePage) Init() tea.Cmd {
	return nil
}

// selected returns the item under the cursor.
func (m tablePage) selected() *incidentDetail {
	i := m.currentPage*m.pageSize + m.cursor
	if i < 0 || i >= len(m.items) {
		return nil
	}
	return &m.items[i]
}

func (m tablePage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "enter":
			if item := m.selected(); item != nil {
				return m, func() tea.Msg { return goToDetailMsg{item: item} }
			}
			return m, nil
		case "2", "/":
			return m, func() tea.Msg { return goToSearchMsg{} }
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			} else if m.currentPage > 0 {
				m.currentPage--
				m.cursor = m.pageSize - 1
			}
			m.updateTableRows()
			return m, nil
		case "j", "down":
			onPage := min(m.pageSize, len(m.items)-m.currentPage*m.pageSize)
			if m.cursor < onPage-1 {
				m.cursor++
			} else if m.currentPage < m.totalPages-1 {
				m.currentPage++
				m.cursor = 0
			}
			m.updateTableRows()
			return m, nil
		case "g":
			m.currentPage = 0
			m.cursor = 0
			m.updateTableRows()
			return m, nil
		case "G":
			if len(m.items) == 0 {
				return m, nil
			}
			m.currentPage = m.totalPages - 1
			last := len(m.items) % m.pageSize
			if last == 0 {
				last = m.pageSize
			}
			m.cursor = last - 1
			m.updateTableRows()
			return m, nil
		case "l":
			if m.currentPage < m.totalPages-1 {
				m.currentPage++
				m.cursor = 0
				m.updateTableRows()
				return m, tea.ClearScreen // border rendering glitches without a full redraw
			}
			return m, nil
		case "h":
			if m.currentPage > 0 {
				m.currentPage--
				m.cursor = 0
				m.updateTableRows()
				return m, tea.ClearScreen
			}
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.tableWidth = msg.Width - 2
		m.configureTable(msg.Width, msg.Height-4)
		m.ready = true
		return m, tea.ClearScreen
	}

	return m, nil
}

func (m tablePage) View() string {
	if !m.ready {
		return "...Loading"
	}
	if len(m.items) == 0 {
		return "No incidents recorded yet"
	}

	help := helpBar("j/k: move", "l/h: page", "g/G: home/end", "Space: view details", "/: search", "q: quit")
	return pageLayout(lipgloss.JoinVertical(lipgloss.Left, renderMenu(0, m.tableWidth), m.table.Render(), help))
}

func (m *tablePage) updateTableRows() {
	if len(m.items) == 0 {
		return
	}

	headers := []string{
		truncateString("Incident", m.nameWidth),
		truncateString("Started", m.startedWidth),
		truncateString("Updates", m.countWidth),
		truncateString("Posted to", m.postsWidth),
	}

	var rows [][]string
	start := m.currentPage * m.pageSize
	end := min(start+m.pageSize, len(m.items))
	for i := start; i < end; i++ {
		item := m.items[i]
		name := item.incident.Name
		if name == "" {
			name = item.incident.ID
		}
		rows = append(rows, []string{
			truncateString(name, m.nameWidth),
			truncateString(item.incident.CreatedAt.UTC().Format("2006-01-02 15:04"), m.startedWidth),
			truncateString(strconv.Itoa(len(item.updates)), m.countWidth),
			truncateString(postTargets(item), m.postsWidth),
		})
	}

	if n := len(rows); n > 0 {
		m.cursor = max(0, min(m.cursor, n-1))
	}

	headerStyle := lipgloss.NewStyle().
		Padding(0, 1).
		Bold(true).
		Foreground(blurple()).
		Align(lipgloss.Center)

	m.table = table.New().
		Width(m.tableWidth).
		Border(lipgloss.ThickBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(blurple())).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row == m.cursor {
				return lipgloss.NewStyle().
					Padding(0, 1).
					Background(lightBlurple()).
					Foreground(lipgloss.Color("0"))
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// configureTable sizes columns from the available space.
func (m *tablePage) configureTable(width, height int) {
	if len(m.items) == 0 {
		return
	}

	m.pageSize = max(5, height-6)
	m.totalPages = (len(m.items) + m.pageSize - 1) / m.pageSize
	m.currentPage = max(0, min(m.currentPage, m.totalPages-1))

	global := m.currentPage*m.pageSize + m.cursor
	if global >= len(m.items) {
		global = len(m.items) - 1
		m.currentPage = global / m.pageSize
		m.cursor = global % m.pageSize
	}

	m.startedWidth = 16
	m.countWidth = 7
	borderPadding := 4 + 3*4
	remaining := width - m.startedWidth - m.countWidth - borderPadding
	m.nameWidth = max(20, remaining*60/100)
	m.postsWidth = max(15, remaining*40/100)

	m.updateTableRows()
}

func postTargets(item incidentDetail) string {
	if len(item.posts) == 0 {
		return "none"
	}
	s := ""
	for i, p := range item.posts {
		if i > 0 {
			s += ", "
		}
		s += p.ChannelKind + "/" + p.Target
	}
	return s
}
