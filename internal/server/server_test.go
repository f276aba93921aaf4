package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/ledger"
)

func seeded(t *testing.T) *handlers {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(path)
	require.NoError(t, err)

	t0 := time.Date(2025, time.March, 4, 17, 0, 0, 0, time.UTC)
	var b ledger.Batch
	b.RecordIncident("abc123", "Delayed messages", t0)
	b.RecordUpdate(ledger.Update{IncidentID: "abc123", UpdateID: "u1", CreatedAt: t0, Status: "investigating", Body: "Looking.", Disposition: ledger.Summary})
	b.RecordPost(ledger.Post{IncidentID: "abc123", ChannelKind: "reddit", Target: "discordstatus", ExternalID: "p1", Link: "https://redd.it/p1"})
	require.NoError(t, store.Apply(t.Context(), &b))
	require.NoError(t, store.Close())

	return &handlers{load: func() (config.Config, error) { return config.Config{DatabasePath: path}, nil }}
}

func TestListIncidents(t *testing.T) {
	h := seeded(t)

	_, out, err := h.listIncidents(t.Context(), nil, ListIncidentsParams{})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, 1, m["count"])
	items := m["items"].([]incidentItem)
	assert.Equal(t, "Delayed messages", items[0].Name)
	assert.Equal(t, []postDTO{{Channel: "reddit", Target: "discordstatus", ExternalID: "p1", Link: "https://redd.it/p1"}}, items[0].Posts)
}

func TestGetIncident(t *testing.T) {
	h := seeded(t)

	_, out, err := h.getIncident(t.Context(), nil, GetIncidentParams{ID: "abc123", IncludeBodies: true})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, true, m["ok"])
	updates := m["updates"].([]updateDTO)
	require.Len(t, updates, 1)
	assert.Equal(t, "summary", updates[0].Disposition)
	assert.Equal(t, "Looking.", updates[0].Body)

	_, out, err = h.getIncident(t.Context(), nil, GetIncidentParams{ID: "nope"})
	require.NoError(t, err)
	assert.Equal(t, false, out.(map[string]any)["ok"])
}

func TestMissingLedger(t *testing.T) {
	h := &handlers{load: func() (config.Config, error) {
		return config.Config{DatabasePath: filepath.Join(t.TempDir(), "missing.db")}, nil
	}}

	_, out, err := h.listIncidents(t.Context(), nil, ListIncidentsParams{})
	require.NoError(t, err)
	assert.Equal(t, false, out.(map[string]any)["ok"])
}
