// Package reconcile decides, for every poll of the status feed, which
// incidents are new, which carry unpublished updates and which are
// unchanged, and drives publishing and ledger writes accordingly.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MattIPv4/Discord-Status/internal/ledger"
	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

// Ledger is the slice of the ledger store the reconciler needs.
type Ledger interface {
	KnownIncidents(ctx context.Context) (map[string]time.Time, error)
	KnownUpdateIDs(ctx context.Context, incidentID string) (map[string]struct{}, error)
	PostsFor(ctx context.Context, incidentID string) ([]ledger.Post, error)
	Apply(ctx context.Context, b *ledger.Batch) error
}

// Renderer formats feed entities.
type Renderer interface {
	NewIncident(inc statuspage.Incident, latest *statuspage.Update) (publish.Content, error)
	UpdateFragment(u statuspage.Update) (string, error)
}

// BacklogPolicy decides what happens to updates that already existed,
// besides the summarised one, when an incident is first discovered.
type BacklogPolicy string

const (
	// BacklogDrop records older updates as known without appending them.
	BacklogDrop BacklogPolicy = "drop"
	// BacklogFold leaves them to the fold step, appended after the initial post.
	BacklogFold BacklogPolicy = "fold"
)

// ParseBacklogPolicy validates a configured policy; empty means drop.
func ParseBacklogPolicy(s string) (BacklogPolicy, error) {
	switch p := BacklogPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return BacklogDrop, nil
	case BacklogDrop, BacklogFold:
		return p, nil
	default:
		return "", fmt.Errorf("unknown discovery backlog policy %q (want drop or fold)", s)
	}
}

// Report summarises one reconcile pass.
type Report struct {
	New       int
	Updated   int
	Unchanged int
	Skipped   int
	Published int
	Folded    int
	Amended   int
}

// Reconciler is the classification and publishing engine.
type Reconciler struct {
	ledger  Ledger
	render  Renderer
	router  *publish.Router
	backlog BacklogPolicy
	logger  zerolog.Logger
}

// New wires a reconciler.
func New(l Ledger, r Renderer, router *publish.Router, backlog BacklogPolicy, logger zerolog.Logger) *Reconciler {
	if backlog == "" {
		backlog = BacklogDrop
	}
	return &Reconciler{ledger: l, render: r, router: router, backlog: backlog, logger: logger}
}

// Reconcile processes one snapshot. Publish and render failures are isolated
// to their target or incident; ledger failures abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context, snap statuspage.Snapshot) (Report, error) {
	var rep Report
	known, err := r.ledger.KnownIncidents(ctx)
	if err != nil {
		return rep, fmt.Errorf("load known incidents: %w", err)
	}

	for _, inc := range snap.Incidents {
		log := r.logger.With().Str("incident", inc.ID).Logger()
		watermark, seen := known[inc.ID]

		switch {
		case !seen && !inc.Resolved():
			ok, err := r.discover(ctx, inc, &rep, log)
			if err != nil {
				return rep, err
			}
			if !ok {
				rep.Skipped++
				continue
			}
			rep.New++
		case seen && !watermark.Equal(inc.UpdatedAt):
			rep.Updated++
		default:
			rep.Unchanged++
			continue
		}

		if err := r.fold(ctx, inc, &rep, log); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// discover publishes a new incident to every target and ledgers the outcome.
// It returns false when the incident could not be rendered.
func (r *Reconciler) discover(ctx context.Context, inc statuspage.Incident, rep *Report, log zerolog.Logger) (bool, error) {
	updates := inc.SortedUpdates()
	var latest *statuspage.Update
	if n := len(updates); n > 0 {
		latest = &updates[n-1]
	}

	content, err := r.render.NewIncident(inc, latest)
	if err != nil {
		log.Error().Err(err).Msg("render new incident failed, skipping this cycle")
		return false, nil
	}

	var batch ledger.Batch
	batch.RecordIncident(inc.ID, inc.Name, inc.CreatedAt)

	for _, pub := range r.router.Publishers() {
		target := pub.Target()
		tlog := log.With().Str("target", target.String()).Logger()
		res := pub.Create(ctx, content)
		if !res.OK() {
			tlog.Warn().Err(res.Err).Msg("publish failed")
			continue
		}
		if a, ok := pub.(publish.Announcer); ok {
			if err := a.Announce(ctx, res.ExternalID); err != nil {
				tlog.Warn().Err(err).Str("external_id", res.ExternalID).Msg("announce failed")
			}
		}
		batch.RecordPost(ledger.Post{
			IncidentID:  inc.ID,
			ChannelKind: string(target.Kind),
			Target:      target.Name,
			ExternalID:  res.ExternalID,
			Link:        res.Link,
		})
		rep.Published++
		tlog.Info().Str("external_id", res.ExternalID).Str("link", res.Link).Msg("incident published")
	}

	if latest != nil {
		batch.RecordUpdate(toLedger(inc.ID, *latest, ledger.Summary))
		if r.backlog == BacklogDrop {
			for _, u := range updates[:len(updates)-1] {
				batch.RecordUpdate(toLedger(inc.ID, u, ledger.Dropped))
			}
		}
	}

	if err := r.ledger.Apply(ctx, &batch); err != nil {
		return false, fmt.Errorf("record incident %s: %w", inc.ID, err)
	}
	return true, nil
}

// fold appends every unrecorded update, oldest first, to all recorded posts.
// Update ids and the watermark are committed before the amendments go out.
func (r *Reconciler) fold(ctx context.Context, inc statuspage.Incident, rep *Report, log zerolog.Logger) error {
	knownIDs, err := r.ledger.KnownUpdateIDs(ctx, inc.ID)
	if err != nil {
		return fmt.Errorf("load updates of %s: %w", inc.ID, err)
	}

	var block strings.Builder
	var batch ledger.Batch
	folded := 0
	for _, u := range inc.SortedUpdates() {
		if _, ok := knownIDs[u.ID]; ok {
			continue
		}
		frag, err := r.render.UpdateFragment(u)
		if err != nil {
			log.Error().Err(err).Str("update", u.ID).Msg("render update failed, skipping this cycle")
			return nil
		}
		block.WriteString(publish.Separator)
		block.WriteString(frag)
		batch.RecordUpdate(toLedger(inc.ID, u, ledger.Folded))
		folded++
	}
	batch.SetWatermark(inc.ID, inc.UpdatedAt)

	if err := r.ledger.Apply(ctx, &batch); err != nil {
		return fmt.Errorf("record fold of %s: %w", inc.ID, err)
	}
	rep.Folded += folded
	if block.Len() == 0 {
		log.Debug().Msg("watermark moved without new updates")
		return nil
	}

	posts, err := r.ledger.PostsFor(ctx, inc.ID)
	if err != nil {
		return fmt.Errorf("load posts of %s: %w", inc.ID, err)
	}
	amended := r.router.AmendAll(ctx, posts, block.String())
	rep.Amended += len(amended)
	log.Info().Int("updates", folded).Int("posts", len(posts)).Int("amended", len(amended)).Msg("updates folded")
	return nil
}

func toLedger(incidentID string, u statuspage.Update, d ledger.Disposition) ledger.Update {
	return ledger.Update{
		IncidentID:  incidentID,
		UpdateID:    u.ID,
		CreatedAt:   u.CreatedAt,
		Status:      u.Status,
		Body:        u.Body,
		Disposition: d,
	}
}
