package list

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/ledger"
)

func TestPrint(t *testing.T) {
	ctx := t.Context()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	t0 := time.Date(2025, time.March, 4, 17, 0, 0, 0, time.UTC)
	var b ledger.Batch
	b.RecordIncident("abc123", "Delayed messages", t0)
	b.SetWatermark("abc123", t0.Add(20*time.Minute))
	b.RecordUpdate(ledger.Update{IncidentID: "abc123", UpdateID: "u1", CreatedAt: t0, Disposition: ledger.Dropped})
	b.RecordUpdate(ledger.Update{IncidentID: "abc123", UpdateID: "u2", CreatedAt: t0.Add(10 * time.Minute), Disposition: ledger.Summary})
	b.RecordPost(ledger.Post{IncidentID: "abc123", ChannelKind: "reddit", Target: "discordstatus", ExternalID: "p1", Link: "https://redd.it/p1"})
	b.RecordPost(ledger.Post{IncidentID: "abc123", ChannelKind: "telegram", Target: "-100", ExternalID: "7"})
	require.NoError(t, store.Apply(ctx, &b))

	var out bytes.Buffer
	require.NoError(t, Print(ctx, store, 10, t0.Add(3*time.Hour), &out))

	s := out.String()
	assert.Contains(t, s, "Showing 1 incidents:")
	assert.Contains(t, s, "Name: Delayed messages")
	assert.Contains(t, s, "Started: 2025-03-04 17:00 UTC (3 hours ago)")
	assert.Contains(t, s, "Last update: 2 hours ago")
	assert.Contains(t, s, "Updates: 2 (1 summary, 0 folded, 1 dropped)")
	assert.Contains(t, s, "Post: reddit/discordstatus https://redd.it/p1")
	assert.Contains(t, s, "Post: telegram/-100 7")
}

func TestRunWithoutLedger(t *testing.T) {
	load := func() (config.Config, error) {
		return config.Config{DatabasePath: filepath.Join(t.TempDir(), "missing.db")}, nil
	}
	var out bytes.Buffer
	require.NoError(t, Run(t.Context(), load, 0, &out))
	assert.Contains(t, out.String(), "Ledger not found")
}

func TestPrintEmpty(t *testing.T) {
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	var out bytes.Buffer
	require.NoError(t, Print(t.Context(), store, 0, time.Now(), &out))
	assert.Equal(t, "No incidents recorded yet.\n", out.String())
}
