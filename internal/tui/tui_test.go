package tui

import (
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MattIPv4/Discord-Status/internal/ledger"
)

var t0 = time.Date(2025, time.March, 4, 17, 0, 0, 0, time.UTC)

func fixtures() []incidentDetail {
	return []incidentDetail{
		{
			incident: ledger.Incident{ID: "abc123", Name: "Delayed messages", CreatedAt: t0, LastUpdateAt: t0.Add(time.Hour)},
			updates: []ledger.Update{
				{UpdateID: "u1", CreatedAt: t0, Status: "investigating", Body: "Looking.", Disposition: ledger.Summary},
				{UpdateID: "u2", CreatedAt: t0.Add(time.Hour), Status: "resolved", Body: "Fixed.", Disposition: ledger.Folded},
			},
			posts: []ledger.Post{{ChannelKind: "reddit", Target: "discordstatus", ExternalID: "p1", Link: "https://redd.it/p1"}},
		},
		{
			incident: ledger.Incident{ID: "def456", Name: "API latency", CreatedAt: t0.Add(-time.Hour), LastUpdateAt: t0},
		},
	}
}

func send(m tea.Model, msg tea.Msg) (tea.Model, tea.Msg) {
	m, cmd := m.Update(msg)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTableToDetailAndBack(t *testing.T) {
	var m tea.Model = newRootPage(fixtures())
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	view := m.View()
	assert.Contains(t, view, "Delayed messages")
	assert.Contains(t, view, "reddit/discordstatus")

	m, msg := send(m, key(" "))
	require.IsType(t, goToDetailMsg{}, msg)
	assert.Equal(t, "abc123", msg.(goToDetailMsg).item.incident.ID)

	m, _ = m.Update(msg)
	assert.Equal(t, detailView, m.(rootPage).viewMode)
	view = m.View()
	assert.Contains(t, view, "ID: abc123")
	assert.Contains(t, view, "1 summary, 1 folded, 0 dropped")
	assert.Contains(t, view, "https://redd.it/p1")

	m, msg = send(m, key("q"))
	m, _ = m.Update(msg)
	assert.Equal(t, tableView, m.(rootPage).viewMode)
}

func TestTableCursorMoves(t *testing.T) {
	var m tea.Model = newRootPage(fixtures())
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = m.Update(key("j"))

	_, msg := send(m, key(" "))
	assert.Equal(t, "def456", msg.(goToDetailMsg).item.incident.ID)
}

func TestSearch(t *testing.T) {
	var m tea.Model = newRootPage(fixtures())
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	m, msg := send(m, key("/"))
	m, _ = m.Update(msg)
	require.Equal(t, searchView, m.(rootPage).viewMode)

	m, _ = m.Update(key("latency"))
	_, msg = send(m, key("enter"))
	require.IsType(t, goToDetailMsg{}, msg)
	assert.Equal(t, "def456", msg.(goToDetailMsg).item.incident.ID)
}

func TestSearchNoMatch(t *testing.T) {
	p := searchPage{items: fixtures(), searchInput: initializeInput()}
	p.searchInput.SetValue("nothing")
	assert.Nil(t, p.showIncident())
	assert.ErrorContains(t, p.err, "no incident matches")

	p.searchInput.SetValue("ABC123")
	assert.NotNil(t, p.showIncident())
}

func TestTimelineMarkdown(t *testing.T) {
	items := fixtures()
	md := timelineMarkdown(&items[0])
	assert.Contains(t, md, "### Investigating · 2025-03-04 17:00 UTC")
	assert.Contains(t, md, "_folded_\n\nFixed.")
}

func TestLoadIncidents(t *testing.T) {
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	var b ledger.Batch
	b.RecordIncident("abc123", "Delayed messages", t0)
	b.RecordUpdate(ledger.Update{IncidentID: "abc123", UpdateID: "u1", CreatedAt: t0, Status: "investigating", Disposition: ledger.Summary})
	b.RecordPost(ledger.Post{IncidentID: "abc123", ChannelKind: "discord", Target: "42", ExternalID: "m1"})
	require.NoError(t, store.Apply(t.Context(), &b))

	items, err := loadIncidents(t.Context(), store)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Len(t, items[0].updates, 1)
	assert.Len(t, items[0].posts, 1)
}
