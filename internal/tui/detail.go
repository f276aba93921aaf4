package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MattIPv4/Discord-Status/internal/ledger"
)

var statusTitle = cases.Title(language.English)

type detailPage struct {
	width        int
	height       int
	viewport     viewport.Model
	selectedItem *incidentDetail
}

func (m detailPage) Init() tea.Cmd {
	return nil
}

func (m detailPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, func() tea.Msg { return goToTableMsg{} }
		case "k", "up":
			m.viewport.ScrollUp(1)
			return m, nil
		case "j", "down":
			m.viewport.ScrollDown(1)
			return m, nil
		case "g":
			m.viewport.GotoTop()
			return m, nil
		case "G":
			m.viewport.GotoBottom()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width - 4
		m.height = msg.Height - 4
		if m.selectedItem != nil {
			m.viewport = setupViewport(m.width, m.height, m.selectedItem)
		}
		return m, nil
	case goToDetailMsg:
		m.selectedItem = msg.item
		m.viewport = setupViewport(m.width, m.height, m.selectedItem)
		return m, nil
	}

	return m, nil
}

func (m detailPage) View() string {
	if m.selectedItem == nil {
		return "No incident selected"
	}
	inc := m.selectedItem.incident

	titleStyle := lipgloss.NewStyle().
		Foreground(blurple()).
		Bold(true).
		MarginBottom(1).
		Width(max(20, m.width-8))

	metaStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		MarginBottom(1)

	var posts []string
	for _, p := range m.selectedItem.posts {
		ref := p.Link
		if ref == "" {
			ref = p.ExternalID
		}
		posts = append(posts, lipgloss.NewStyle().Foreground(lightBlurple()).Italic(true).
			Render(fmt.Sprintf("%s/%s: %s", p.ChannelKind, p.Target, ref)))
	}
	if len(posts) == 0 {
		posts = []string{metaStyle.Render("Not posted anywhere")}
	}

	tally := map[ledger.Disposition]int{}
	var legend []string
	for _, u := range m.selectedItem.updates {
		tally[u.Disposition]++
	}
	for _, d := range []ledger.Disposition{ledger.Summary, ledger.Folded, ledger.Dropped} {
		legend = append(legend, lipgloss.NewStyle().Foreground(dispositionColor(d)).Render(fmt.Sprintf("%d %s", tally[d], d)))
	}

	scroll := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Bold(true).
		Render(fmt.Sprintf("Scroll: %d%%", int(max(0, min(1, m.viewport.ScrollPercent()))*100)))

	header := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(inc.Name),
		metaStyle.Render(fmt.Sprintf("ID: %s • Started: %s • Last update: %s • %s",
			inc.ID,
			inc.CreatedAt.UTC().Format("2006-01-02 15:04"),
			inc.LastUpdateAt.UTC().Format("2006-01-02 15:04"),
			strings.Join(legend, ", "))),
		lipgloss.JoinVertical(lipgloss.Left, posts...),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		scroll,
		lipgloss.NewStyle().MarginTop(1).Render(helpBar("j/k: scroll", "g/G: top/bottom", "esc/q: back")))

	return pageLayout(lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(blurple()).
		Render(content))
}

func setupViewport(width, height int, item *incidentDetail) viewport.Model {
	contentWidth := max(20, width)
	vp := viewport.New(contentWidth, max(5, height-12))
	vp.SetContent(renderMarkdown(timelineMarkdown(item), contentWidth))
	return vp
}

// timelineMarkdown lists updates oldest first, tagged with how each reached the posts.
func timelineMarkdown(item *incidentDetail) string {
	var sb strings.Builder
	for _, u := range item.updates {
		fmt.Fprintf(&sb, "### %s · %s\n\n", statusTitle.String(u.Status), u.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(&sb, "_%s_\n\n", u.Disposition)
		if strings.TrimSpace(u.Body) != "" {
			sb.WriteString(u.Body)
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// renderMarkdown uses Glamour to render markdown content with terminal styling
func renderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return "No updates recorded"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithWordWrap(width),
		glamour.WithStandardStyle("dark"),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
