package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/ledger"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

type feedUpdate struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// world fakes the status page, Reddit and Discord behind one server.
type world struct {
	mu sync.Mutex

	indicator  string
	updatedAt  string
	updates    []feedUpdate // newest first
	failStatus bool

	selftext map[string]string
	messages map[string]string
	unread   []string // raw t1 children
	writes   []string // method + path of every non-GET API call
}

func (w *world) serve(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rw.Header().Set("Content-Type", "application/json")
	p := r.URL.Path

	switch {
	case p == "/status/incidents.json" || p == "/status/status.json":
		if w.failStatus {
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		if p == "/status/status.json" {
			fmt.Fprintf(rw, `{"status":{"indicator":%q,"description":"x"}}`, w.indicator)
			return
		}
		doc := map[string]any{"incidents": []any{map[string]any{
			"id":               "abc123",
			"name":             "Delayed message delivery",
			"status":           "investigating",
			"shortlink":        "https://stspg.io/abc",
			"created_at":       "2025-03-04T17:00:00Z",
			"updated_at":       w.updatedAt,
			"resolved_at":      nil,
			"incident_updates": w.updates,
		}}}
		_ = json.NewEncoder(rw).Encode(doc)
		return

	case p == "/reddit/token":
		_, _ = io.WriteString(rw, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
		return
	}

	if r.Method != http.MethodGet {
		w.writes = append(w.writes, r.Method+" "+p)
	}
	_ = r.ParseForm()

	switch {
	case p == "/reddit/api/submit":
		w.selftext["p1"] = r.PostForm.Get("text")
		_, _ = io.WriteString(rw, `{"json":{"errors":[],"data":{"id":"p1","url":"https://www.reddit.com/r/discordstatus/comments/p1/x/"}}}`)
	case p == "/reddit/by_id/t3_p1":
		fmt.Fprintf(rw, `{"data":{"children":[{"data":{"selftext":%s,"permalink":"/r/discordstatus/comments/p1/x/"}}]}}`, jsonString(w.selftext["p1"]))
	case p == "/reddit/api/editusertext":
		w.selftext["p1"] = r.PostForm.Get("text")
		_, _ = io.WriteString(rw, `{"json":{"errors":[]}}`)
	case p == "/reddit/message/unread":
		fmt.Fprintf(rw, `{"data":{"children":[%s]}}`, strings.Join(w.unread, ","))
	case p == "/reddit/api/read_message":
		w.unread = nil
		_, _ = io.WriteString(rw, `{}`)
	case p == "/reddit/r/discordstatus/about/moderators":
		_, _ = io.WriteString(rw, `{"data":{"children":[{"name":"mod_alice"}]}}`)
	case strings.HasPrefix(p, "/reddit/api/"):
		_, _ = io.WriteString(rw, `{"json":{"errors":[]}}`)

	case p == "/discord/channels/42/messages" && r.Method == http.MethodPost:
		var m struct{ Content string }
		_ = json.NewDecoder(r.Body).Decode(&m)
		w.messages["m1"] = m.Content
		_, _ = io.WriteString(rw, `{"id":"m1"}`)
	case p == "/discord/channels/42/messages/m1" && r.Method == http.MethodGet:
		fmt.Fprintf(rw, `{"id":"m1","content":%s}`, jsonString(w.messages["m1"]))
	case p == "/discord/channels/42/messages/m1" && r.Method == http.MethodPatch:
		var m struct{ Content string }
		_ = json.NewDecoder(r.Body).Decode(&m)
		w.messages["m1"] = m.Content
		_, _ = io.WriteString(rw, `{"id":"m1"}`)
	default:
		_, _ = io.WriteString(rw, `{}`)
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (w *world) writeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

type env struct {
	world *world
	store *ledger.Store
	cfg   config.Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	w := &world{
		indicator: "minor",
		updatedAt: "2025-03-04T17:10:00Z",
		updates: []feedUpdate{
			{ID: "u2", Status: "identified", Body: "Root cause found.", CreatedAt: "2025-03-04T17:10:00Z"},
			{ID: "u1", Status: "investigating", Body: "Looking into it.", CreatedAt: "2025-03-04T17:00:00Z"},
		},
		selftext: map[string]string{},
		messages: map[string]string{},
	}
	srv := httptest.NewServer(http.HandlerFunc(w.serve))
	t.Cleanup(srv.Close)

	icon := filepath.Join(t.TempDir(), "minor.png")
	require.NoError(t, os.WriteFile(icon, []byte("\x89PNG\r\n\x1a\n0000"), 0o644))

	cfg := config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "ledger.db")
	cfg.StatusPage.BaseURL = srv.URL + "/status"
	cfg.StatusPage.TimeoutSeconds = 5
	cfg.Reddit = config.Reddit{
		Enabled:     true,
		ClientID:    "id",
		Username:    "bot",
		Password:    "pw",
		Subreddits:  []string{"discordstatus"},
		Corrections: true,
		APIBase:     srv.URL + "/reddit",
		TokenURL:    srv.URL + "/reddit/token",
	}
	cfg.Discord = config.Discord{
		Token:    "secret",
		APIBase:  srv.URL + "/discord",
		Channels: []config.DiscordChannel{{ID: "42", GuildID: "7", Announce: true}},
		Icons:    map[string]string{"minor": icon},
	}

	store, err := ledger.Open(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &env{world: w, store: store, cfg: cfg}
}

func (e *env) cycle(t *testing.T) Result {
	t.Helper()
	c, err := Build(e.cfg, e.store, zerolog.Nop())
	require.NoError(t, err)
	res, err := c.RunOnce(t.Context())
	require.NoError(t, err)
	return res
}

func TestCycleEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := t.Context()

	// discovery: one post per target, crosspost, avatar for the new indicator
	res := e.cycle(t)
	assert.True(t, res.IndicatorChanged)
	assert.Equal(t, 1, res.Reconcile.New)
	assert.Equal(t, 2, res.Reconcile.Published)
	assert.Equal(t, []string{
		"PATCH /discord/users/@me",
		"POST /reddit/api/submit",
		"POST /discord/channels/42/messages",
		"POST /discord/channels/42/messages/m1/crosspost",
	}, e.world.writes)
	assert.Contains(t, e.world.selftext["p1"], "Root cause found.")
	assert.NotContains(t, e.world.selftext["p1"], "Looking into it.")

	known, err := e.store.KnownIncidents(ctx)
	require.NoError(t, err)
	assert.True(t, known["abc123"].Equal(time.Date(2025, 3, 4, 17, 10, 0, 0, time.UTC)))

	// unchanged snapshot: nothing goes out
	before := e.world.writeCount()
	res = e.cycle(t)
	assert.False(t, res.IndicatorChanged)
	assert.Equal(t, 1, res.Reconcile.Unchanged)
	assert.Equal(t, before, e.world.writeCount())

	// a new update is appended to both posts
	e.world.mu.Lock()
	e.world.updatedAt = "2025-03-04T17:20:00Z"
	e.world.updates = append([]feedUpdate{{ID: "u3", Status: "monitoring", Body: "Fix deployed.", CreatedAt: "2025-03-04T17:20:00Z"}}, e.world.updates...)
	e.world.mu.Unlock()

	res = e.cycle(t)
	assert.Equal(t, 1, res.Reconcile.Updated)
	assert.Equal(t, 1, res.Reconcile.Folded)
	assert.Equal(t, 2, res.Reconcile.Amended)
	assert.Equal(t, 1, strings.Count(e.world.selftext["p1"], "Fix deployed."))
	assert.Equal(t, 1, strings.Count(e.world.messages["m1"], "Fix deployed."))

	// a moderator correction lands on both posts and is acknowledged
	e.world.mu.Lock()
	e.world.unread = []string{`{"kind":"t1","data":{"name":"t1_c1","body":"?update Fully recovered.","author":"mod_alice","link_id":"t3_p1","subreddit":"discordstatus","created_utc":1741112400}}`}
	e.world.mu.Unlock()

	res = e.cycle(t)
	assert.Equal(t, 1, res.Corrections.Applied)
	assert.Equal(t, 2, res.Corrections.Amended)
	assert.Contains(t, e.world.selftext["p1"], "Moderator update from mod_alice")
	assert.Contains(t, e.world.messages["m1"], "> Fully recovered.")
	assert.Contains(t, e.world.writes, "POST /reddit/api/vote")
	assert.Contains(t, e.world.writes, "POST /reddit/api/comment")
}

func TestFetchFailureAbortsWithoutWrites(t *testing.T) {
	e := newEnv(t)
	e.world.failStatus = true

	c, err := Build(e.cfg, e.store, zerolog.Nop())
	require.NoError(t, err)
	_, err = c.RunOnce(t.Context())

	var fetchErr *statuspage.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, e.world.writeCount())

	known, err := e.store.KnownIncidents(t.Context())
	require.NoError(t, err)
	assert.Empty(t, known)
	_, ok, err := e.store.GetStatus(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunUsesConfigLoader(t *testing.T) {
	e := newEnv(t)
	e.cfg.DatabasePath = filepath.Join(t.TempDir(), "nested", "ledger.db")
	logFile := filepath.Join(t.TempDir(), "relay.log")

	res, err := Run(t.Context(), Options{LogFile: logFile}, func() (config.Config, error) { return e.cfg, nil })
	require.NoError(t, err)
	assert.Len(t, res.RunID, 26)
	assert.Equal(t, 1, res.Reconcile.New)

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), res.RunID)
	assert.Contains(t, string(raw), "cycle completed")
}

func TestBuildRejectsBadBacklog(t *testing.T) {
	e := newEnv(t)
	e.cfg.DiscoveryBacklog = "keep"
	_, err := Build(e.cfg, e.store, zerolog.Nop())
	require.Error(t, err)
}
