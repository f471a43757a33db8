// Package loader discovers extensions on disk and resolves their entry files.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goatkit/prodmanager/internal/plugin"
)

// Loader scans a plugins root where every extension lives in its own
// directory D with an entry file D/D<ext>.
type Loader struct {
	resolvers []Resolver
	logger    *slog.Logger

	// Hot reload
	watcher     *fsnotify.Watcher
	watchCtx    context.Context
	watchCancel context.CancelFunc
	watchMu     sync.Mutex
	debounce    *time.Timer
	debounceFor time.Duration
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDebounce sets how long WatchDir waits for changes to settle.
func WithDebounce(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.debounceFor = d
	}
}

// NewLoader creates a loader trying resolvers in order.
func NewLoader(resolvers []Resolver, opts ...LoaderOption) *Loader {
	l := &Loader{
		resolvers:   resolvers,
		logger:      slog.Default(),
		debounceFor: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Discover resolves every immediate subdirectory of root. Directories that
// fail to resolve are logged and skipped. A missing root yields an empty map.
// Keys are the directory names with the first letter lower-cased.
func (l *Loader) Discover(ctx context.Context, root string) map[string]plugin.Extension {
	found := make(map[string]plugin.Extension)

	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("cannot read plugins directory", "path", root, "error", err)
		}
		return found
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !plugin.ValidSystemName(name) {
			l.logger.Debug("skipping directory with invalid name", "name", name)
			continue
		}

		ext, err := l.Resolve(ctx, filepath.Join(root, name))
		if err != nil {
			if errors.Is(err, plugin.ErrEntryFileMissing) {
				l.logger.Debug("skipping directory without entry file", "name", name)
			} else {
				l.logger.Warn("skipping extension", "name", name, "error", err)
			}
			continue
		}

		found[plugin.RegistryKey(name)] = ext
		l.logger.Debug("discovered extension", "name", name, "version", ext.Descriptor().Version)
	}

	return found
}

// Resolve builds the extension in dir. The result must report the
// directory name as its system name.
func (l *Loader) Resolve(ctx context.Context, dir string) (plugin.Extension, error) {
	name := filepath.Base(dir)

	for _, r := range l.resolvers {
		entry := filepath.Join(dir, name+r.Ext())
		info, err := os.Stat(entry)
		if err != nil || info.IsDir() {
			continue
		}

		ext, err := r.Resolve(ctx, entry, name)
		if err != nil {
			return nil, err
		}
		if got := ext.Descriptor().SystemName; got != name {
			return nil, plugin.NewError("resolve", name, plugin.ErrNotAnExtension,
				fmt.Errorf("declares system name %q", got))
		}
		return ext, nil
	}

	return nil, plugin.NewError("resolve", name, plugin.ErrEntryFileMissing, nil)
}

// WatchDir watches root and calls onChange once changes settle. Creating,
// removing or renaming extension directories or their files triggers it.
func (l *Loader) WatchDir(ctx context.Context, root string, onChange func(ctx context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return fmt.Errorf("watch plugins dir: %w", err)
	}

	// Also watch extension directories so entry file changes are seen
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if e.IsDir() {
			_ = watcher.Add(filepath.Join(root, e.Name()))
		}
	}

	l.watchMu.Lock()
	l.watcher = watcher
	l.watchCtx, l.watchCancel = context.WithCancel(ctx)
	l.watchMu.Unlock()

	l.logger.Info("hot reload enabled", "path", root)

	go l.watchLoop(watcher, onChange)
	return nil
}

// StopWatch stops the file watcher.
func (l *Loader) StopWatch() {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	if l.watchCancel != nil {
		l.watchCancel()
	}
	if l.debounce != nil {
		l.debounce.Stop()
	}
	if l.watcher != nil {
		l.watcher.Close()
		l.watcher = nil
	}
}

func (l *Loader) watchLoop(watcher *fsnotify.Watcher, onChange func(ctx context.Context)) {
	for {
		select {
		case <-l.watchCtx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			l.handleFSEvent(watcher, event, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("watcher error", "error", err)
		}
	}
}

func (l *Loader) handleFSEvent(watcher *fsnotify.Watcher, event fsnotify.Event, onChange func(ctx context.Context)) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = watcher.Add(event.Name)
		}
	}

	// Debounce rapid changes such as an extraction in progress
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.debounce != nil {
		l.debounce.Stop()
	}
	ctx := l.watchCtx
	l.debounce = time.AfterFunc(l.debounceFor, func() {
		if ctx.Err() != nil {
			return
		}
		l.logger.Info("plugins directory changed, reloading", "path", event.Name)
		onChange(ctx)
	})
}
