package corrector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the corrections file into a Corrector whenever it changes
// on disk, so edits take effect without restarting the application.
type Watcher struct {
	path      string
	corrector *Corrector
}

// NewWatcher creates a watcher for the given corrections file.
func NewWatcher(path string, c *Corrector) *Watcher {
	return &Watcher{path: path, corrector: c}
}

// Run blocks watching the file until ctx is cancelled. The parent directory
// is watched rather than the file itself because most editors replace the
// file on save, which would drop a direct file watch.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("corrector: create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("corrector: watch dir %q: %w", dir, err)
	}

	target := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("corrector: watch: %w", err)
		}
	}
}

// reload swaps in the freshly parsed dictionary. A file that fails to parse
// (e.g. saved mid-edit) leaves the previous dictionary active.
func (w *Watcher) reload() {
	dict, err := Load(w.path)
	if err != nil {
		slog.Warn("corrections reload failed, keeping previous rules", "path", w.path, "err", err)
		return
	}
	w.corrector.Replace(dict)
	slog.Info("corrections reloaded", "path", w.path, "rules", dict.Len())
}
