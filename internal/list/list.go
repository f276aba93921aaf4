package list

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/ledger"
)

// Run prints the most recently updated incidents of the ledger.
func Run(ctx context.Context, load config.ConfigLoad, limit int, out io.Writer) error {
	if limit <= 0 {
		limit = 20
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if !fileExists(cfg.DatabasePath) {
		fmt.Fprintf(out, "Ledger not found at %s\n", cfg.DatabasePath)
		fmt.Fprintln(out, "Hint: Run 'discord-status run' to create/populate the ledger, or set database_path in ~/.config/discord-status/config.yaml.")
		return nil
	}

	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed opening the ledger: %w", err)
	}
	defer store.Close()
	return Print(ctx, store, limit, time.Now(), out)
}

// Print writes up to limit incidents with their posts and update tally.
func Print(ctx context.Context, store *ledger.Store, limit int, now time.Time, out io.Writer) error {
	incs, err := store.Incidents(ctx, limit)
	if err != nil {
		return fmt.Errorf("query failed while reading from the ledger: %w", err)
	}
	if len(incs) == 0 {
		fmt.Fprintln(out, "No incidents recorded yet.")
		return nil
	}

	fmt.Fprintf(out, "Showing %d incidents:\n\n", len(incs))
	for _, inc := range incs {
		updates, err := store.UpdatesFor(ctx, inc.ID)
		if err != nil {
			return err
		}
		posts, err := store.PostsFor(ctx, inc.ID)
		if err != nil {
			return err
		}
		tally := map[ledger.Disposition]int{}
		for _, u := range updates {
			tally[u.Disposition]++
		}

		fmt.Fprintf(out, "ID: %s\n", inc.ID)
		fmt.Fprintf(out, "Name: %s\n", inc.Name)
		fmt.Fprintf(out, "Started: %s (%s)\n", inc.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), humanize.RelTime(inc.CreatedAt, now, "ago", "from now"))
		fmt.Fprintf(out, "Last update: %s\n", humanize.RelTime(inc.LastUpdateAt, now, "ago", "from now"))
		fmt.Fprintf(out, "Updates: %d (%d summary, %d folded, %d dropped)\n",
			len(updates), tally[ledger.Summary], tally[ledger.Folded], tally[ledger.Dropped])
		if len(posts) == 0 {
			fmt.Fprintln(out, "Posts: none")
		}
		for _, p := range posts {
			ref := p.Link
			if ref == "" {
				ref = p.ExternalID
			}
			fmt.Fprintf(out, "Post: %s/%s %s\n", p.ChannelKind, p.Target, ref)
		}
		fmt.Fprintln(out, strings.Repeat("-", 80))
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return false
}
