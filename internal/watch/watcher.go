// pattern: Imperative Shell

package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dmnexplorer/internal/logging"
)

// DefaultPollInterval is the safeguard interval for filesystems that drop
// inotify events (network shares, container bind mounts).
const DefaultPollInterval = 5 * time.Second

// Watcher reports changes to a workspace root and its fixture directories.
type Watcher struct {
	root          string
	fixtureSuffix string
	debounce      time.Duration
	pollInterval  time.Duration
	logger        *logging.ScopedLogger
	fsw           *fsnotify.Watcher

	mu     sync.Mutex
	stamps map[string]time.Time
	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// New watches root and every fixture directory that exists in it.
// Fixture directories created later are picked up while running.
func New(root, fixtureSuffix string, debounce time.Duration, logger *logging.ScopedLogger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if debounce <= 0 {
		debounce = time.Millisecond
	}

	w := &Watcher{
		root:          root,
		fixtureSuffix: fixtureSuffix,
		debounce:      debounce,
		pollInterval:  DefaultPollInterval,
		logger:        logger,
		fsw:           fsw,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fsw.Add(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	for _, dir := range w.fixtureDirs() {
		w.addDir(dir)
	}
	w.stamps = w.snapshot()
	return w, nil
}

// Run calls onChange after each burst of changes, at most once per
// debounce window. It returns when ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)
	schedule := func() {
		if pending {
			return
		}
		pending = true
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.logger.Debug("workspace event", "path", event.Name, "op", event.Op.String())
			if event.Has(fsnotify.Create) && w.isFixtureDir(event.Name) {
				w.addDir(event.Name)
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			schedule()

		case <-timerC:
			pending = false
			timerC = nil
			w.refreshStamps()
			onChange()

		case <-ticker.C:
			if w.pollChanged() {
				w.logger.Debug("poll detected workspace change")
				schedule()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}

func (w *Watcher) addDir(dir string) {
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("cannot watch fixture directory", "path", dir, "error", err)
	}
}

func (w *Watcher) isFixtureDir(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.root) || !strings.HasSuffix(filepath.Base(path), w.fixtureSuffix) {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (w *Watcher) fixtureDirs() []string {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		path := filepath.Join(w.root, e.Name())
		if w.isFixtureDir(path) {
			dirs = append(dirs, path)
		}
	}
	return dirs
}

// snapshot records modification times of the root and fixture directories.
// Adding, removing or renaming an entry updates its directory's mtime.
func (w *Watcher) snapshot() map[string]time.Time {
	stamps := make(map[string]time.Time)
	for _, dir := range append([]string{w.root}, w.fixtureDirs()...) {
		if info, err := os.Stat(dir); err == nil {
			stamps[dir] = info.ModTime()
		}
	}
	return stamps
}

func (w *Watcher) refreshStamps() {
	stamps := w.snapshot()
	w.mu.Lock()
	w.stamps = stamps
	w.mu.Unlock()
}

func (w *Watcher) pollChanged() bool {
	current := w.snapshot()
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := len(current) != len(w.stamps)
	if !changed {
		for dir, ts := range current {
			if prev, ok := w.stamps[dir]; !ok || !prev.Equal(ts) {
				changed = true
				break
			}
		}
	}
	if changed {
		for dir := range current {
			if _, known := w.stamps[dir]; !known && dir != w.root {
				w.addDir(dir)
			}
		}
		w.stamps = current
	}
	return changed
}
