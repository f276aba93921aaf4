package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/ledger"
)

type viewMode int

const (
	tableView viewMode = iota
	searchView
	detailView
)

// Navigation messages
type goToDetailMsg struct {
	item *incidentDetail
}
type goToSearchMsg struct{}
type goToTableMsg struct{}

type rootPage struct {
	viewMode   viewMode
	detailPage detailPage
	tablePage  tablePage
	searchPage searchPage
	width      int
	height     int
	err        error
}

// incidentDetail is everything the ledger knows about one incident.
type incidentDetail struct {
	incident ledger.Incident
	updates  []ledger.Update
	posts    []ledger.Post
}

// Run opens an interactive browser over the ledger.
func Run(ctx context.Context, load config.ConfigLoad) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed opening the ledger: %w", err)
	}
	defer store.Close()

	items, err := loadIncidents(ctx, store)
	if err != nil {
		return fmt.Errorf("query failed while reading from the ledger: %w", err)
	}

	m := newRootPage(items)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func newRootPage(items []incidentDetail) rootPage {
	return rootPage{
		tablePage:  TablePage(items, 0, 10, 0),
		searchPage: searchPage{items: items},
	}
}

func loadIncidents(ctx context.Context, store *ledger.Store) ([]incidentDetail, error) {
	incs, err := store.Incidents(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]incidentDetail, 0, len(incs))
	for _, inc := range incs {
		updates, err := store.UpdatesFor(ctx, inc.ID)
		if err != nil {
			return nil, err
		}
		posts, err := store.PostsFor(ctx, inc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, incidentDetail{incident: inc, updates: updates, posts: posts})
	}
	return out, nil
}

func (m rootPage) Init() tea.Cmd {
	return nil
}

func (m rootPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.viewMode {
	case tableView:
		m.tablePage, cmd = update[tablePage](m.tablePage, msg)
	case detailView:
		m.detailPage, cmd = update[detailPage](m.detailPage, msg)
	case searchView:
		m.searchPage, cmd = update[searchPage](m.searchPage, msg)
	}

	switch msg := msg.(type) {
	case goToSearchMsg:
		m.viewMode = searchView
		m.searchPage, cmd = update[searchPage](m.searchPage, msg)
	case goToTableMsg:
		m.viewMode = tableView
	case goToDetailMsg:
		m.viewMode = detailView
		m.detailPage, cmd = update[detailPage](m.detailPage, msg)
	case tea.WindowSizeMsg:
		var cmds []tea.Cmd

		m.tablePage, cmd = update[tablePage](m.tablePage, msg)
		cmds = append(cmds, cmd)

		m.detailPage, cmd = update[detailPage](m.detailPage, msg)
		cmds = append(cmds, cmd)

		m.searchPage, cmd = update[searchPage](m.searchPage, msg)
		cmds = append(cmds, cmd)

		m.width = msg.Width - 4
		m.height = msg.Height - 4

		return m, tea.Batch(cmds...)
	}

	return m, cmd
}

func (m rootPage) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v", m.err)
	}

	switch m.viewMode {
	case detailView:
		return m.detailPage.View()
	case searchView:
		return m.searchPage.View()
	case tableView:
		return m.tablePage.View()
	default:
		return "Unknown View"
	}
}

func update[T any](model tea.Model, msg tea.Msg) (T, tea.Cmd) {
	newModel, cmd := model.Update(msg)
	return newModel.(T), cmd
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
