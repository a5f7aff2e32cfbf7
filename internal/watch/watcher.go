// Package watch rebuilds on file changes. It monitors the project tree and
// invokes a callback after a quiet period, coalescing the events of that
// window into one call that carries every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
)

const defaultDebounce = 300 * time.Millisecond

// defaultIgnores are always excluded, whatever the configured ignores are.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
}

// ErrStarted is returned by a second call to Run.
var ErrStarted = errors.New("watch: Run called more than once")

// ChangeFunc receives the root-relative, slash separated paths changed
// during one debounce window.
type ChangeFunc func(ctx context.Context, changed []string) error

// Config holds the parameters for a Watcher.
type Config struct {
	// BaseDir is the directory paths are reported relative to. Empty means
	// the working directory.
	BaseDir string
	// Paths are the directories below BaseDir that are watched recursively.
	// Empty watches BaseDir itself.
	Paths []string
	// Patterns select the files that trigger a rebuild. Empty matches every
	// file that is not ignored.
	Patterns []string
	// Ignore is merged with the built-in ignores.
	Ignore   []string
	Debounce time.Duration
	OnChange ChangeFunc
}

// Watcher fires a debounced callback when matching files change.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	ignores  []string
	debounce time.Duration
	baseDir  string
	started  atomic.Bool
}

// New validates cfg and registers every non-ignored directory for
// monitoring.
func New(cfg Config) (*Watcher, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	ignores := make([]string, 0, len(defaultIgnores)+len(cfg.Ignore))
	ignores = append(ignores, defaultIgnores...)
	ignores = append(ignores, cfg.Ignore...)

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  ignores,
		debounce: debounce,
		baseDir:  absBase,
	}

	roots := []string{absBase}
	if len(cfg.Paths) > 0 {
		roots = roots[:0]
		for _, p := range cfg.Paths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(absBase, p)
			}
			roots = append(roots, p)
		}
	}
	for _, root := range roots {
		if err := w.addDirectories(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled, dispatching debounced callbacks. It
// returns nil on cancellation. A callback that is still running when the
// next window closes delays that window instead of running concurrently.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	logger := ctxlog.FromContext(ctx)

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			logger.Debug("Rebuild still running, delaying.")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange == nil {
			return
		}
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			logger.Error("Rebuild failed.", "error", err, "changed", changed)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			logger.Warn("Failed to close file watcher.", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(ctx, evt.Name)
			}
			rel, err := filepath.Rel(w.baseDir, evt.Name)
			if err != nil {
				rel = evt.Name
			}
			rel = filepath.ToSlash(rel)
			if w.isIgnored(rel) || !w.matches(rel) {
				continue
			}
			logger.Debug("File changed.", "path", rel, "op", evt.Op.String())

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("File watcher dropped events.", "error", err)
				continue
			}
			logger.Error("File watcher error.", "error", err)
		}
	}
}

// addDirectories registers root and every non-ignored directory below it.
func (w *Watcher) addDirectories(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.baseDir && w.dirIgnored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

// maybeAddDir extends the watch to directories created after startup.
func (w *Watcher) maybeAddDir(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.dirIgnored(path) {
		return
	}
	if err := w.addDirectories(path); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to watch new directory.", "path", path, "error", err)
	}
}

func (w *Watcher) dirIgnored(path string) bool {
	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return w.isIgnored(rel) || w.isIgnored(rel+"/")
}

func (w *Watcher) isIgnored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) matches(rel string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	return matchAny(w.cfg.Patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}
