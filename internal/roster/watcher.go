package roster

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kazz187/dispatch/internal/store"
)

const DebounceInterval = 500 * time.Millisecond

// Watcher reapplies the roster file whenever its content changes.
type Watcher struct {
	store    *store.Store
	path     string
	lastHash [sha256.Size]byte
	reloaded chan struct{}
}

func NewWatcher(st *store.Store, path string) *Watcher {
	return &Watcher{store: st, path: path, reloaded: make(chan struct{}, 1)}
}

// Load applies the file once and remembers its hash.
func (w *Watcher) Load(ctx context.Context) error {
	h, err := Sync(ctx, w.store, w.path)
	if err != nil {
		return err
	}
	w.lastHash = h
	return nil
}

// Reloaded receives after each applied change.
func (w *Watcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Start watches the roster's directory until ctx is done. The directory is
// watched rather than the file so editors that replace the file by rename are
// still seen.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	slog.Info("watching roster", "path", w.path)

	changed := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DebounceInterval, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		case <-changed:
			w.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("roster watch error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.WarnContext(ctx, "failed to read roster after change", "error", err)
		return
	}
	if sha256.Sum256(data) == w.lastHash {
		return
	}
	h, err := Sync(ctx, w.store, w.path)
	if err != nil {
		// Keep the last good roster.
		slog.ErrorContext(ctx, "failed to reload roster", "error", err)
		return
	}
	w.lastHash = h
	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}
