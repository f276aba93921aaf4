// Package correction applies moderator-submitted notes, relayed as replies
// through a channel inbox, to every post of the incident they target.
package correction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MattIPv4/Discord-Status/internal/ledger"
	"github.com/MattIPv4/Discord-Status/internal/publish"
)

// CommandPrefix introduces a correction in a reply body.
const CommandPrefix = "?update "

var (
	// ErrUnknownPost means the reply is not under a ledgered post.
	ErrUnknownPost = errors.New("reply is not to a known post")
	// ErrMalformedCorrection means the body is not a usable ?update command.
	ErrMalformedCorrection = errors.New("malformed correction")
	// ErrAuthorizationDenied means the author is not a moderator right now.
	ErrAuthorizationDenied = errors.New("author is not authorized")
	// ErrAlreadyApplied means this reply was applied in an earlier cycle.
	ErrAlreadyApplied = errors.New("correction already applied")
)

// Reply is one inbound inbox item.
type Reply struct {
	ID                   string
	Body                 string
	AuthorID             string
	AuthorName           string
	ParentPostExternalID string
	OriginChannel        string
	CreatedAt            time.Time
}

// Inbox is a channel's notification feed. Every method is independent and
// best-effort from the intake's point of view.
type Inbox interface {
	Kind() publish.Kind
	Unread(ctx context.Context) ([]Reply, error)
	MarkConsumed(ctx context.Context, r Reply) error
	IsModerator(ctx context.Context, r Reply) (bool, error)
	Acknowledge(ctx context.Context, r Reply) error
	ReplyTo(ctx context.Context, r Reply, text string) error
}

// Ledger is the slice of the ledger store the intake needs.
type Ledger interface {
	IncidentForPost(ctx context.Context, channelKind, externalID string) (string, bool, error)
	PostsFor(ctx context.Context, incidentID string) ([]ledger.Post, error)
	HasCorrection(ctx context.Context, channelKind, replyID string) (bool, error)
	RecordCorrection(ctx context.Context, channelKind, replyID, incidentID, author string) error
}

// Renderer formats the correction fragment.
type Renderer interface {
	Correction(author string, at time.Time, text string) (string, error)
}

// Report summarises one intake pass.
type Report struct {
	Seen     int
	Applied  int
	Dropped  int
	Amended  int
	Failures map[string]int
}

// Intake processes one inbox.
type Intake struct {
	inbox  Inbox
	ledger Ledger
	render Renderer
	router *publish.Router
	logger zerolog.Logger
}

// New wires an intake.
func New(inbox Inbox, l Ledger, r Renderer, router *publish.Router, logger zerolog.Logger) *Intake {
	return &Intake{inbox: inbox, ledger: l, render: r, router: router, logger: logger}
}

// ParseCommand extracts the payload of a "?update <text>" body.
func ParseCommand(body string) (string, error) {
	body = strings.TrimLeft(body, " \t\r\n")
	if !strings.HasPrefix(body, CommandPrefix) {
		return "", ErrMalformedCorrection
	}
	payload := strings.TrimSpace(body[len(CommandPrefix):])
	if payload == "" {
		return "", ErrMalformedCorrection
	}
	return payload, nil
}

// Process drains the inbox once. Only a failure to list the inbox is
// returned; every item is otherwise handled or dropped on its own.
func (in *Intake) Process(ctx context.Context) (Report, error) {
	rep := Report{Failures: map[string]int{}}
	items, err := in.inbox.Unread(ctx)
	if err != nil {
		return rep, fmt.Errorf("read %s inbox: %w", in.inbox.Kind(), err)
	}
	for _, item := range items {
		rep.Seen++
		log := in.logger.With().Str("reply", item.ID).Str("author", item.AuthorName).Logger()
		amended, err := in.handle(ctx, item, log)
		if err != nil {
			rep.Dropped++
			rep.Failures[reason(err)]++
			log.Info().Err(err).Msg("correction dropped")
			continue
		}
		rep.Applied++
		rep.Amended += amended
	}
	return rep, nil
}

func (in *Intake) handle(ctx context.Context, item Reply, log zerolog.Logger) (int, error) {
	// consume first: an item that cannot be processed must not come back
	if err := in.inbox.MarkConsumed(ctx, item); err != nil {
		return 0, fmt.Errorf("mark consumed: %w", err)
	}

	kind := string(in.inbox.Kind())
	incidentID, ok, err := in.ledger.IncidentForPost(ctx, kind, item.ParentPostExternalID)
	if err != nil {
		return 0, fmt.Errorf("resolve parent post: %w", err)
	}
	if !ok {
		return 0, ErrUnknownPost
	}

	payload, err := ParseCommand(item.Body)
	if err != nil {
		return 0, err
	}

	isMod, err := in.inbox.IsModerator(ctx, item)
	if err != nil {
		log.Warn().Err(err).Msg("moderator lookup failed")
		return 0, ErrAuthorizationDenied
	}
	if !isMod {
		return 0, ErrAuthorizationDenied
	}

	applied, err := in.ledger.HasCorrection(ctx, kind, item.ID)
	if err != nil {
		return 0, fmt.Errorf("check correction: %w", err)
	}
	if applied {
		return 0, ErrAlreadyApplied
	}

	frag, err := in.render.Correction(item.AuthorName, item.CreatedAt, payload)
	if err != nil {
		return 0, fmt.Errorf("render correction: %w", err)
	}
	posts, err := in.ledger.PostsFor(ctx, incidentID)
	if err != nil {
		return 0, fmt.Errorf("load posts: %w", err)
	}
	if err := in.ledger.RecordCorrection(ctx, kind, item.ID, incidentID, item.AuthorName); err != nil {
		return 0, fmt.Errorf("record correction: %w", err)
	}

	amended := in.router.AmendAll(ctx, posts, publish.Separator+frag)
	log.Info().Str("incident", incidentID).Int("posts", len(posts)).Int("amended", len(amended)).Msg("correction applied")

	if err := in.inbox.Acknowledge(ctx, item); err != nil {
		log.Warn().Err(err).Msg("acknowledge failed")
	}
	if err := in.inbox.ReplyTo(ctx, item, AckText(amended)); err != nil {
		log.Warn().Err(err).Msg("reply failed")
	}
	return len(amended), nil
}

// AckText lists the amended posts for the requester.
func AckText(amended []ledger.Post) string {
	var b strings.Builder
	b.WriteString("The following posts have been updated with your message:\n")
	for _, p := range amended {
		ref := p.Link
		if ref == "" {
			ref = p.ChannelKind + "/" + p.Target + "/" + p.ExternalID
		}
		b.WriteString("\n - ")
		b.WriteString(ref)
	}
	return b.String()
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownPost):
		return "unknown_post"
	case errors.Is(err, ErrMalformedCorrection):
		return "malformed"
	case errors.Is(err, ErrAuthorizationDenied):
		return "denied"
	case errors.Is(err, ErrAlreadyApplied):
		return "duplicate"
	default:
		return "error"
	}
}
