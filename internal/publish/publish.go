// Package publish defines the downstream publisher contracts and the
// best-effort fan-out used to amend every recorded post of an incident.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MattIPv4/Discord-Status/internal/ledger"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

// Kind names a downstream system.
type Kind string

const (
	Reddit   Kind = "reddit"
	Discord  Kind = "discord"
	Telegram Kind = "telegram"
)

// Separator joins appended fragments to existing content.
const Separator = "\n\n"

// ErrContentTooLong is reported when a target rejects content by size.
var ErrContentTooLong = errors.New("content too long")

// ErrUnsupported is reported by targets that cannot perform an operation.
var ErrUnsupported = errors.New("operation not supported by target")

// Target identifies one configured destination, e.g. a subreddit or channel.
type Target struct {
	Kind Kind
	Name string
}

func (t Target) String() string {
	return string(t.Kind) + "/" + t.Name
}

// Content is a rendered post.
type Content struct {
	Title string
	Body  string
}

// Result is the outcome of one call against one target.
type Result struct {
	ExternalID string
	Link       string
	Err        error
}

// OK reports success.
func (r Result) OK() bool {
	return r.Err == nil
}

// Failed builds a failed result.
func Failed(err error) Result {
	return Result{Err: err}
}

// Publisher creates the initial post for an incident on its target.
type Publisher interface {
	Target() Target
	Create(ctx context.Context, c Content) Result
}

// Amender appends text to an existing post. Implementations must never
// blindly overwrite remote content.
type Amender interface {
	Amend(ctx context.Context, externalID, appended string) Result
}

// Announcer broadcasts a freshly created post (crosspost, pin).
type Announcer interface {
	Announce(ctx context.Context, externalID string) error
}

// IconSetter changes a cosmetic asset to match the page indicator.
type IconSetter interface {
	SetIcon(ctx context.Context, indicator statuspage.Indicator) error
}

// Router resolves recorded posts back to the publishers that own them.
type Router struct {
	publishers []Publisher
	byTarget   map[Target]Publisher
	logger     zerolog.Logger
}

// NewRouter indexes publishers by target. Duplicate targets are rejected.
func NewRouter(logger zerolog.Logger, pubs ...Publisher) (*Router, error) {
	r := &Router{byTarget: make(map[Target]Publisher, len(pubs)), logger: logger}
	for _, p := range pubs {
		t := p.Target()
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("publisher of kind %s has no target name", t.Kind)
		}
		if _, dup := r.byTarget[t]; dup {
			return nil, fmt.Errorf("duplicate publish target %s", t)
		}
		r.byTarget[t] = p
		r.publishers = append(r.publishers, p)
	}
	return r, nil
}

// Publishers returns every configured publisher in configuration order.
func (r *Router) Publishers() []Publisher {
	return r.publishers
}

// Lookup returns the publisher owning a recorded post.
func (r *Router) Lookup(p ledger.Post) (Publisher, bool) {
	pub, ok := r.byTarget[Target{Kind: Kind(p.ChannelKind), Name: p.Target}]
	return pub, ok
}

// AmendAll appends text to every post independently. Failures are logged and
// skipped; the posts that were amended are returned in input order.
func (r *Router) AmendAll(ctx context.Context, posts []ledger.Post, text string) []ledger.Post {
	var amended []ledger.Post
	for _, p := range posts {
		log := r.logger.With().Str("incident", p.IncidentID).Str("target", p.ChannelKind+"/"+p.Target).Str("external_id", p.ExternalID).Logger()
		pub, ok := r.Lookup(p)
		if !ok {
			log.Warn().Msg("amend skipped: target no longer configured")
			continue
		}
		am, ok := pub.(Amender)
		if !ok {
			log.Debug().Msg("amend skipped: target cannot amend")
			continue
		}
		res := am.Amend(ctx, p.ExternalID, text)
		if !res.OK() {
			log.Warn().Err(res.Err).Msg("amend failed")
			continue
		}
		if p.Link == "" {
			p.Link = res.Link
		}
		log.Info().Msg("post amended")
		amended = append(amended, p)
	}
	return amended
}
