// Package watcher keeps the alert store in step with out-of-band edits to
// the file backend's data directory.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/storage"
)

// Reloader is the part of the alert store the watcher drives.
type Reloader interface {
	// Reload re-reads one alert and reports whether the store changed.
	// A missing document is dropped from the store.
	Reload(ctx context.Context, id models.AlertID) (bool, error)
}

// Options contains options for configuring a Watcher.
type Options struct {
	// Debounce is how long a file must be quiet before it is reloaded.
	// Editors tend to write a file in several steps.
	Debounce time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Debounce: 100 * time.Millisecond,
	}
}

// Watcher reloads alerts whose backing files change on disk.
type Watcher struct {
	dir     string
	opts    *Options
	store   Reloader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu      sync.Mutex
	timers  map[models.AlertID]*time.Timer
	pending chan models.AlertID
	done    chan struct{}
}

// New creates a watcher on dir. Run starts delivering changes.
func New(dir string, store Reloader, logger zerolog.Logger, opts *Options) (*Watcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(absDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absDir, err)
	}

	return &Watcher{
		dir:     absDir,
		opts:    opts,
		store:   store,
		watcher: fw,
		logger:  logger.With().Str("component", "watcher").Str("dir", absDir).Logger(),
		timers:  make(map[models.AlertID]*time.Timer),
		pending: make(chan models.AlertID, 64),
		done:    make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is cancelled. It always closes the
// underlying fsnotify watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	w.logger.Info().Msg("watching data directory")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		case id := <-w.pending:
			w.reload(ctx, id)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Dir(event.Name) != w.dir {
		return
	}
	id, ok := storage.AlertIDFromPath(event.Name)
	if !ok {
		return
	}
	// Chmod alone never changes a document.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug().Str("alert_id", id.String()).Str("op", event.Op.String()).Msg("file event")
	w.schedule(id)
}

// schedule (re)arms the debounce timer for id.
func (w *Watcher) schedule(id models.AlertID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[id]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.timers[id] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()

		select {
		case w.pending <- id:
		case <-w.done:
		}
	})
}

func (w *Watcher) reload(ctx context.Context, id models.AlertID) {
	changed, err := w.store.Reload(ctx, id)
	if err != nil {
		w.logger.Error().Err(err).Str("alert_id", id.String()).Msg("failed to reload alert")
		return
	}
	if changed {
		w.logger.Info().Str("alert_id", id.String()).Msg("applied out-of-band change")
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	close(w.done)
	w.watcher.Close()
}
