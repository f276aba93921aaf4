package discord

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MattIPv4/Discord-Status/internal/publish"
)

type call struct {
	Method string
	Path   string
	Body   map[string]any
}

func newBot(t *testing.T, handle func(w http.ResponseWriter, c call)) (*Bot, *[]call) {
	t.Helper()
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		c := call{Method: r.Method, Path: r.URL.Path}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &c.Body)
		}
		calls = append(calls, c)
		w.Header().Set("Content-Type", "application/json")
		handle(w, c)
	}))
	t.Cleanup(srv.Close)

	bot, err := NewBot(Config{Token: "secret", APIBase: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return bot, &calls
}

func TestCreateAndAnnounce(t *testing.T) {
	bot, calls := newBot(t, func(w http.ResponseWriter, c call) {
		if c.Method == http.MethodPost && c.Path == "/channels/42/messages" {
			_, _ = io.WriteString(w, `{"id":"9001","channel_id":"42","content":"x"}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	})
	ch := bot.Channel("42", "7", true)

	res := ch.Create(t.Context(), publish.Content{Title: "Delayed messages", Body: "Investigating."})
	require.NoError(t, res.Err)
	assert.Equal(t, "9001", res.ExternalID)
	assert.Equal(t, "https://discord.com/channels/7/42/9001", res.Link)
	require.NoError(t, ch.Announce(t.Context(), res.ExternalID))

	require.Len(t, *calls, 2)
	assert.Equal(t, "**Delayed messages**\n\nInvestigating.", (*calls)[0].Body["content"])
	assert.Equal(t, map[string]any{"parse": []any{}}, (*calls)[0].Body["allowed_mentions"])
	assert.Equal(t, "/channels/42/messages/9001/crosspost", (*calls)[1].Path)
}

func TestAnnounceDisabled(t *testing.T) {
	bot, calls := newBot(t, func(w http.ResponseWriter, c call) {})
	require.NoError(t, bot.Channel("42", "", false).Announce(t.Context(), "9001"))
	assert.Empty(t, *calls)
}

func TestAmendFetchesThenEdits(t *testing.T) {
	bot, calls := newBot(t, func(w http.ResponseWriter, c call) {
		if c.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"id":"9001","content":"current text"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"9001"}`)
	})

	res := bot.Channel("42", "", false).Amend(t.Context(), "9001", "\n\nmore")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Link)

	require.Len(t, *calls, 2)
	assert.Equal(t, http.MethodPatch, (*calls)[1].Method)
	assert.Equal(t, "/channels/42/messages/9001", (*calls)[1].Path)
	assert.Equal(t, "current text\n\nmore", (*calls)[1].Body["content"])
}

func TestAmendTooLong(t *testing.T) {
	bot, calls := newBot(t, func(w http.ResponseWriter, c call) {
		_, _ = io.WriteString(w, `{"id":"9001","content":"`+strings.Repeat("a", MaxMessage-2)+`"}`)
	})

	res := bot.Channel("42", "", false).Amend(t.Context(), "9001", "\n\nxyz")
	assert.ErrorIs(t, res.Err, publish.ErrContentTooLong)
	assert.Len(t, *calls, 1, "no edit is attempted")
}

func TestCreateFailure(t *testing.T) {
	bot, _ := newBot(t, func(w http.ResponseWriter, c call) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"Missing Access","code":50001}`)
	})

	res := bot.Channel("42", "", false).Create(t.Context(), publish.Content{Body: "x"})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "403")
}

func TestSetIcon(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "major.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000"), 0o644))

	bot, calls := newBot(t, func(w http.ResponseWriter, c call) {
		_, _ = io.WriteString(w, `{"id":"1"}`)
	})
	bot.icons = map[string]string{"major": png}

	require.NoError(t, bot.SetIcon(t.Context(), "none"), "indicators without an icon are ignored")
	assert.Empty(t, *calls)

	require.NoError(t, bot.SetIcon(t.Context(), "major"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "/users/@me", (*calls)[0].Path)
	assert.True(t, strings.HasPrefix((*calls)[0].Body["avatar"].(string), "data:image/png;base64,"))
}

func TestSetIconRejectsNonImage(t *testing.T) {
	txt := filepath.Join(t.TempDir(), "none.png")
	require.NoError(t, os.WriteFile(txt, []byte("not an image"), 0o644))

	bot, calls := newBot(t, func(w http.ResponseWriter, c call) {})
	bot.icons = map[string]string{"none": txt}

	require.Error(t, bot.SetIcon(t.Context(), "none"))
	assert.Empty(t, *calls)
}
