// Package watcher re-runs ingestion when the corpus file changes on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CorpusWatcher watches the corpus directory rather than the file itself so
// that atomic rename-into-place uploads are observed.
type CorpusWatcher struct {
	path     string
	debounce time.Duration
	onChange func(context.Context) error
	logger   *slog.Logger
}

func New(path string, debounce time.Duration, onChange func(context.Context) error, logger *slog.Logger) *CorpusWatcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run blocks until ctx is done.
func (w *CorpusWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create corpus watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch corpus directory: %w", err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("corpus_watch_error", "error", err.Error())
		case <-timer.C:
			w.logger.Info("corpus_changed", "path", w.path)
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("corpus_reingest_failed", "path", w.path, "error", err.Error())
			}
		}
	}
}

func (w *CorpusWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}
