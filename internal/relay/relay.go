// Package relay wires the ledger and adapters for one cycle and runs it:
// fetch the status page, check the indicator, reconcile incidents, then
// drain correction inboxes.
package relay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/correction"
	"github.com/MattIPv4/Discord-Status/internal/discord"
	"github.com/MattIPv4/Discord-Status/internal/httpclient"
	"github.com/MattIPv4/Discord-Status/internal/ledger"
	"github.com/MattIPv4/Discord-Status/internal/logging"
	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/reconcile"
	"github.com/MattIPv4/Discord-Status/internal/reddit"
	"github.com/MattIPv4/Discord-Status/internal/render"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
	"github.com/MattIPv4/Discord-Status/internal/statuswatch"
	"github.com/MattIPv4/Discord-Status/internal/telegram"
)

// Options allow overriding config values from CLI flags.
type Options struct {
	LogFile  string
	LogLevel string
}

// Source yields one snapshot per cycle.
type Source interface {
	Fetch(ctx context.Context) (statuspage.Snapshot, error)
}

// Cycle is the explicit context of one run: every collaborator is built
// up front and nothing is shared with other runs except the ledger file.
type Cycle struct {
	Source     Source
	Watcher    *statuswatch.Watcher
	Reconciler *reconcile.Reconciler
	Intakes    []*correction.Intake
	Logger     zerolog.Logger
}

// Result summarises one cycle.
type Result struct {
	RunID            string
	IndicatorChanged bool
	Reconcile        reconcile.Report
	Corrections      correction.Report
}

// Run executes a single cycle. Scheduling is delegated to launchd, cron or
// the watch command.
func Run(ctx context.Context, opts Options, load config.ConfigLoad) (Result, error) {
	cfg, err := load()
	if err != nil {
		return Result{}, fmt.Errorf("load config: %w", err)
	}
	logFile := firstNonEmpty(opts.LogFile, cfg.LogFile)
	logger, closeLog, err := logging.New(config.ExpandPath(logFile), firstNonEmpty(opts.LogLevel, cfg.LogLevel))
	if err != nil {
		return Result{}, err
	}
	defer closeLog()

	runID := ulid.Make().String()
	logger = logger.With().Str("run_id", runID).Logger()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Result{RunID: runID}, fmt.Errorf("create ledger directory: %w", err)
	}
	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		return Result{RunID: runID}, fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	cycle, err := Build(cfg, store, logger)
	if err != nil {
		logger.Error().Err(err).Msg("cycle setup failed")
		return Result{RunID: runID}, err
	}
	res, err := cycle.RunOnce(ctx)
	res.RunID = runID
	return res, err
}

// Build constructs the adapters configured in cfg around store.
func Build(cfg config.Config, store *ledger.Store, logger zerolog.Logger) (*Cycle, error) {
	backlog, err := reconcile.ParseBacklogPolicy(cfg.DiscoveryBacklog)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.StatusPage.TimeoutSeconds) * time.Second

	var (
		pubs    []publish.Publisher
		setters []publish.IconSetter
		inboxes []correction.Inbox
	)

	if cfg.Reddit.Enabled {
		rc, err := reddit.NewClient(reddit.Config{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			UserAgent:    cfg.Reddit.UserAgent,
			Timeout:      timeout,
			APIBase:      cfg.Reddit.APIBase,
			TokenURL:     cfg.Reddit.TokenURL,
		})
		if err != nil {
			return nil, err
		}
		for _, sub := range cfg.Reddit.Subreddits {
			if strings.TrimSpace(sub) != "" {
				pubs = append(pubs, rc.Subreddit(sub))
			}
		}
		if cfg.Reddit.Corrections {
			inboxes = append(inboxes, rc.Inbox())
		}
	}

	if cfg.Discord.Token != "" {
		bot, err := discord.NewBot(discord.Config{
			Token:   cfg.Discord.Token,
			APIBase: cfg.Discord.APIBase,
			Timeout: timeout,
			Icons:   cfg.Discord.Icons,
		})
		if err != nil {
			return nil, err
		}
		for _, ch := range cfg.Discord.Channels {
			pubs = append(pubs, bot.Channel(ch.ID, ch.GuildID, ch.Announce))
		}
		if len(cfg.Discord.Icons) > 0 {
			setters = append(setters, bot)
		}
	}

	for _, ch := range cfg.Telegram.Chats {
		chat, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			Chat:        ch.Chat,
			APIEndpoint: cfg.Telegram.APIEndpoint,
			Timeout:     timeout,
			Pin:         ch.Pin,
			Icons:       cfg.Telegram.Icons,
		})
		if err != nil {
			// an unreachable bot only loses this target for this cycle
			logger.Warn().Err(err).Str("chat", ch.Chat).Msg("telegram target unavailable")
			continue
		}
		pubs = append(pubs, chat)
		if len(cfg.Telegram.Icons) > 0 {
			setters = append(setters, chat)
		}
	}

	if len(pubs) == 0 {
		logger.Warn().Msg("no publish targets configured; incidents will only be ledgered")
	}
	router, err := publish.NewRouter(logger.With().Str("component", "publish").Logger(), pubs...)
	if err != nil {
		return nil, err
	}

	renderer := render.New(cfg.TemplatesDir, cfg.StatusPage.Service)
	hc := httpclient.New(timeout, cfg.StatusPage.UserAgent)

	c := &Cycle{
		Source:     statuspage.NewClient(cfg.StatusPage.BaseURL, hc),
		Watcher:    statuswatch.New(store, setters, logger.With().Str("component", "statuswatch").Logger()),
		Reconciler: reconcile.New(store, renderer, router, backlog, logger.With().Str("component", "reconcile").Logger()),
		Logger:     logger,
	}
	for _, in := range inboxes {
		c.Intakes = append(c.Intakes, correction.New(in, store, renderer, router,
			logger.With().Str("component", "correction").Str("inbox", string(in.Kind())).Logger()))
	}
	return c, nil
}

// RunOnce runs exactly one cycle. A failed fetch aborts before any write;
// an unreadable inbox only skips that inbox.
func (c *Cycle) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	start := time.Now()

	snap, err := c.Source.Fetch(ctx)
	if err != nil {
		c.Logger.Error().Err(err).Msg("status fetch failed, cycle aborted")
		return res, err
	}

	res.IndicatorChanged, err = c.Watcher.Check(ctx, snap.Indicator)
	if err != nil {
		return res, err
	}

	res.Reconcile, err = c.Reconciler.Reconcile(ctx, snap)
	if err != nil {
		c.Logger.Error().Err(err).Msg("reconcile aborted")
		return res, err
	}

	res.Corrections.Failures = map[string]int{}
	for _, in := range c.Intakes {
		rep, err := in.Process(ctx)
		if err != nil {
			c.Logger.Warn().Err(err).Msg("correction inbox skipped")
			continue
		}
		res.Corrections.Seen += rep.Seen
		res.Corrections.Applied += rep.Applied
		res.Corrections.Dropped += rep.Dropped
		res.Corrections.Amended += rep.Amended
		for k, v := range rep.Failures {
			res.Corrections.Failures[k] += v
		}
	}

	c.Logger.Info().
		Str("indicator", string(snap.Indicator)).
		Bool("indicator_changed", res.IndicatorChanged).
		Int("incidents", len(snap.Incidents)).
		Int("new", res.Reconcile.New).
		Int("updated", res.Reconcile.Updated).
		Int("published", res.Reconcile.Published).
		Int("folded", res.Reconcile.Folded).
		Int("amended", res.Reconcile.Amended).
		Int("corrections", res.Corrections.Applied).
		Dur("took", time.Since(start)).
		Msg("cycle completed")
	return res, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
