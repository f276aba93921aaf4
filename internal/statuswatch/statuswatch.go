// Package statuswatch tracks the page's top-level indicator and mirrors
// changes onto cosmetic assets such as bot avatars.
package statuswatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

// Store holds the single last-seen indicator.
type Store interface {
	GetStatus(ctx context.Context) (string, bool, error)
	SetStatus(ctx context.Context, indicator string) error
}

// Watcher compares each fetched indicator with the stored one.
type Watcher struct {
	store   Store
	setters []publish.IconSetter
	logger  zerolog.Logger
}

// New builds a watcher. setters may be empty.
func New(store Store, setters []publish.IconSetter, logger zerolog.Logger) *Watcher {
	return &Watcher{store: store, setters: setters, logger: logger}
}

// Check reports whether the indicator changed. On change every icon setter
// is attempted and the stored value is overwritten whatever they returned.
func (w *Watcher) Check(ctx context.Context, indicator statuspage.Indicator) (bool, error) {
	prev, ok, err := w.store.GetStatus(ctx)
	if err != nil {
		return false, fmt.Errorf("load status: %w", err)
	}
	if ok && prev == string(indicator) {
		return false, nil
	}

	log := w.logger.With().Str("from", prev).Str("to", string(indicator)).Logger()
	for _, s := range w.setters {
		if err := s.SetIcon(ctx, indicator); err != nil {
			log.Warn().Err(err).Msg("icon update failed")
		}
	}
	if err := w.store.SetStatus(ctx, string(indicator)); err != nil {
		return true, fmt.Errorf("store status: %w", err)
	}
	log.Info().Int("icons", len(w.setters)).Msg("status indicator changed")
	return true, nil
}
