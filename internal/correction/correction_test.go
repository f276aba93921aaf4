package correction

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MattIPv4/Discord-Status/internal/ledger"
	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/publish/publishtest"
	"github.com/MattIPv4/Discord-Status/internal/render"
)

type fakeInbox struct {
	items      []Reply
	moderators map[string]bool

	failUnread    bool
	failConsume   map[string]bool
	failModLookup bool

	consumed []string
	acked    []string
	replies  map[string]string
}

func (f *fakeInbox) Kind() publish.Kind { return publish.Reddit }

func (f *fakeInbox) Unread(context.Context) ([]Reply, error) {
	if f.failUnread {
		return nil, errors.New("inbox down")
	}
	out := f.items
	f.items = nil
	return out, nil
}

func (f *fakeInbox) MarkConsumed(_ context.Context, r Reply) error {
	if f.failConsume[r.ID] {
		return errors.New("mark failed")
	}
	f.consumed = append(f.consumed, r.ID)
	return nil
}

func (f *fakeInbox) IsModerator(_ context.Context, r Reply) (bool, error) {
	if f.failModLookup {
		return false, errors.New("lookup failed")
	}
	return f.moderators[r.AuthorName], nil
}

func (f *fakeInbox) Acknowledge(_ context.Context, r Reply) error {
	f.acked = append(f.acked, r.ID)
	return errors.New("vote rejected")
}

func (f *fakeInbox) ReplyTo(_ context.Context, r Reply, text string) error {
	if f.replies == nil {
		f.replies = map[string]string{}
	}
	f.replies[r.ID] = text
	return nil
}

type harness struct {
	store  *ledger.Store
	inbox  *fakeInbox
	reddit *publishtest.Fake
	chat   *publishtest.Fake
	intake *Intake
}

var at = time.Date(2025, time.March, 4, 18, 30, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:  store,
		inbox:  &fakeInbox{moderators: map[string]bool{"mod_alice": true}},
		reddit: publishtest.New(publish.Reddit, "discordstatus"),
		chat:   publishtest.New(publish.Discord, "1234"),
	}
	router, err := publish.NewRouter(zerolog.Nop(), h.reddit, h.chat)
	require.NoError(t, err)
	h.intake = New(h.inbox, store, render.New("", ""), router, zerolog.Nop())

	// one incident published to both targets
	ctx := t.Context()
	require.NoError(t, store.RecordIncident(ctx, "abc123", "Delayed messages", at.Add(-time.Hour)))
	for _, f := range []*publishtest.Fake{h.reddit, h.chat} {
		res := f.Create(ctx, publish.Content{Title: "t", Body: "initial"})
		require.True(t, res.OK())
		target := f.Target()
		require.NoError(t, store.RecordPost(ctx, ledger.Post{
			IncidentID:  "abc123",
			ChannelKind: string(target.Kind),
			Target:      target.Name,
			ExternalID:  res.ExternalID,
			Link:        res.Link,
		}))
	}
	return h
}

func reply(id, author, body string) Reply {
	return Reply{
		ID:                   id,
		Body:                 body,
		AuthorName:           author,
		ParentPostExternalID: "discordstatus-1",
		OriginChannel:        "discordstatus",
		CreatedAt:            at,
	}
}

func (h *harness) process(t *testing.T, items ...Reply) Report {
	t.Helper()
	h.inbox.items = items
	rep, err := h.intake.Process(t.Context())
	require.NoError(t, err)
	return rep
}

func amendCount(h *harness) int {
	return len(h.reddit.Amends) + len(h.chat.Amends)
}

func TestModeratorCorrectionAmendsEveryPost(t *testing.T) {
	h := newHarness(t)

	rep := h.process(t, reply("t1_a", "mod_alice", "?update Fix is rolling out to all regions."))

	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, 2, rep.Amended)
	require.Len(t, h.reddit.Amends, 1)
	require.Len(t, h.chat.Amends, 1)

	text := h.reddit.Amends[0].Text
	assert.True(t, strings.HasPrefix(text, publish.Separator))
	assert.Contains(t, text, "Moderator update from mod_alice: 04 Mar 2025 18:30 UTC")
	assert.Contains(t, text, "> Fix is rolling out to all regions.")
	assert.Equal(t, text, h.chat.Amends[0].Text)

	assert.Equal(t, []string{"t1_a"}, h.inbox.consumed)
	assert.Equal(t, []string{"t1_a"}, h.inbox.acked)
	assert.Equal(t,
		"The following posts have been updated with your message:\n\n - https://example.test/discordstatus-1\n - https://example.test/1234-1",
		h.inbox.replies["t1_a"])

	applied, err := h.store.HasCorrection(t.Context(), "reddit", "t1_a")
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestNonModeratorIsConsumedWithoutEffect(t *testing.T) {
	h := newHarness(t)

	rep := h.process(t, reply("t1_b", "random_user", "?update it's fixed"))

	assert.Equal(t, 0, rep.Applied)
	assert.Equal(t, 1, rep.Failures["denied"])
	assert.Zero(t, amendCount(h))
	assert.Equal(t, []string{"t1_b"}, h.inbox.consumed)
	assert.Empty(t, h.inbox.acked)
	assert.Empty(t, h.inbox.replies)

	applied, err := h.store.HasCorrection(t.Context(), "reddit", "t1_b")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestModeratorLookupFailureDenies(t *testing.T) {
	h := newHarness(t)
	h.inbox.failModLookup = true

	rep := h.process(t, reply("t1_c", "mod_alice", "?update x"))

	assert.Equal(t, 1, rep.Failures["denied"])
	assert.Zero(t, amendCount(h))
}

func TestGatesDropItems(t *testing.T) {
	tests := []struct {
		name   string
		item   Reply
		reason string
	}{
		{
			name:   "unknown parent post",
			item:   Reply{ID: "t1_1", Body: "?update hi", AuthorName: "mod_alice", ParentPostExternalID: "zzz", CreatedAt: at},
			reason: "unknown_post",
		},
		{
			name:   "post of another channel kind",
			item:   Reply{ID: "t1_2", Body: "?update hi", AuthorName: "mod_alice", ParentPostExternalID: "1234-1", CreatedAt: at},
			reason: "unknown_post",
		},
		{
			name:   "no command prefix",
			item:   reply("t1_3", "mod_alice", "thanks for the update!"),
			reason: "malformed",
		},
		{
			name:   "empty payload",
			item:   reply("t1_4", "mod_alice", "?update    "),
			reason: "malformed",
		},
		{
			name:   "prefix without space",
			item:   reply("t1_5", "mod_alice", "?updated the thing"),
			reason: "malformed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rep := h.process(t, tt.item)
			assert.Equal(t, 1, rep.Dropped)
			assert.Equal(t, 1, rep.Failures[tt.reason])
			assert.Zero(t, amendCount(h))
			assert.Equal(t, []string{tt.item.ID}, h.inbox.consumed)
		})
	}
}

func TestUnconsumableItemIsNotApplied(t *testing.T) {
	h := newHarness(t)
	h.inbox.failConsume = map[string]bool{"t1_d": true}

	rep := h.process(t,
		reply("t1_d", "mod_alice", "?update first"),
		reply("t1_e", "mod_alice", "?update second"),
	)

	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, 1, rep.Dropped)
	require.Len(t, h.reddit.Amends, 1)
	assert.Contains(t, h.reddit.Amends[0].Text, "second")
}

func TestRedeliveredCorrectionAppliedOnce(t *testing.T) {
	h := newHarness(t)
	item := reply("t1_f", "mod_alice", "?update once")

	h.process(t, item)
	rep := h.process(t, item)

	assert.Equal(t, 1, rep.Failures["duplicate"])
	assert.Len(t, h.reddit.Amends, 1)
	assert.Len(t, h.chat.Amends, 1)
}

func TestAmendFailureOmittedFromAck(t *testing.T) {
	h := newHarness(t)
	h.chat.FailAmend = true

	rep := h.process(t, reply("t1_g", "mod_alice", "?update partial"))

	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, 1, rep.Amended)
	assert.Len(t, h.chat.Amends, 1)
	assert.Equal(t,
		"The following posts have been updated with your message:\n\n - https://example.test/discordstatus-1",
		h.inbox.replies["t1_g"])
}

func TestInboxFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.inbox.failUnread = true

	_, err := h.intake.Process(t.Context())
	require.Error(t, err)
	assert.Zero(t, amendCount(h))
}

func TestParseCommand(t *testing.T) {
	got, err := ParseCommand("  ?update   multi\nline  ")
	require.NoError(t, err)
	assert.Equal(t, "multi\nline", got)

	_, err = ParseCommand("?UPDATE shouting")
	assert.ErrorIs(t, err, ErrMalformedCorrection)
}

func TestAckTextFallsBackToHandle(t *testing.T) {
	got := AckText([]ledger.Post{{ChannelKind: "telegram", Target: "-100", ExternalID: "42"}})
	assert.Equal(t, "The following posts have been updated with your message:\n\n - telegram/-100/42", got)
}
