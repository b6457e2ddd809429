// Package catalogwatch keeps the running catalog current. It reloads the
// configuration when the config file changes and, for rolling catalogs, when
// the UTC date rolls over, and hands every changed registry to the sessions.
package catalogwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/pkg/config"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Target receives every new registry.
type Target interface {
	SetRegistry(ctx context.Context, reg *catalog.Registry) error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce duration for file events.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithClock replaces the wall clock used for rolling windows.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		w.now = now
	}
}

// Watcher reloads the catalog from a config provider.
type Watcher struct {
	provider config.ConfigProvider
	path     string
	target   Target
	logger   *zap.SugaredLogger
	debounce time.Duration
	now      func() time.Time

	current *catalog.Registry
	rolling bool
}

// New creates a watcher. path is the config file to watch; when empty only
// date rollovers trigger a reload. current is the registry the sessions were
// started with.
func New(provider config.ConfigProvider, path string, target Target, current *catalog.Registry, logger *zap.SugaredLogger, opts ...Option) *Watcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w := &Watcher{
		provider: provider,
		target:   target,
		logger:   logger,
		debounce: DefaultDebounce,
		now:      time.Now,
		current:  current,
	}
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			w.path = abs
		} else {
			w.path = filepath.Clean(path)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	if cc, err := provider.GetCatalog(); err == nil {
		w.rolling = catalog.Rolling(*cc)
	}
	return w
}

// NextRollover returns the next UTC midnight after now.
func NextRollover(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// Reload reads the configuration again and passes the registry on if its
// chunks changed. It reports whether the target was updated.
func (w *Watcher) Reload(ctx context.Context) (bool, error) {
	cfg, err := w.provider.LoadConfig()
	if err != nil {
		return false, fmt.Errorf("reload config: %w", err)
	}
	reg, err := catalog.FromConfig(cfg.Catalog, w.now(), w.logger.Named("catalog"))
	if err != nil {
		return false, fmt.Errorf("rebuild catalog: %w", err)
	}
	w.rolling = catalog.Rolling(cfg.Catalog)

	if sameChunks(w.current, reg) {
		w.logger.Debugw("catalog unchanged", "chunks", reg.Len())
		return false, nil
	}
	if err := w.target.SetRegistry(ctx, reg); err != nil {
		return false, err
	}
	w.current = reg
	w.logger.Infow("catalog reloaded", "chunks", reg.Len(), "days", reg.Days(),
		"epoch", reg.Epoch().Format(catalog.DateLayout))
	return true, nil
}

// Run watches until ctx is done. A failed reload is logged and the previous
// catalog stays in place.
func (w *Watcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.path != "" {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create file watcher: %w", err)
		}
		defer fsw.Close()
		// Watch the directory; editors replace the file on save.
		if err := fsw.Add(filepath.Dir(w.path)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
		}
		events, errs = fsw.Events, fsw.Errors
		w.logger.Infow("watching config file", "path", w.path)
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	var rollover *time.Timer
	var rolloverC <-chan time.Time
	arm := func() {
		if rollover != nil {
			rollover.Stop()
			rollover, rolloverC = nil, nil
		}
		if w.rolling {
			now := w.now()
			rollover = time.NewTimer(NextRollover(now).Sub(now))
			rolloverC = rollover.C
		}
	}
	arm()
	defer func() {
		if rollover != nil {
			rollover.Stop()
		}
	}()

	reload := func(reason string) {
		if _, err := w.Reload(ctx); err != nil {
			w.logger.Errorw("catalog reload failed", "reason", reason, "error", err)
		}
		arm()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce.Reset(w.debounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warnw("file watcher error", "error", err)
		case <-debounce.C:
			reload("config changed")
		case <-rolloverC:
			reload("date rollover")
		}
	}
}

func sameChunks(a, b *catalog.Registry) bool {
	if a == nil || b == nil || a.Len() != b.Len() {
		return false
	}
	ac, bc := a.Chunks(), b.Chunks()
	for i := range ac {
		x, y := ac[i], bc[i]
		if x.ID != y.ID || x.SourceLayer != y.SourceLayer || !x.Date.Equal(y.Date) ||
			x.StartHour != y.StartHour || x.EndHour != y.EndHour {
			return false
		}
	}
	return true
}
