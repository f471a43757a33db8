package plugin

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Discoverer finds the extensions installed under a plugins root.
type Discoverer interface {
	Discover(ctx context.Context, root string) map[string]Extension
}

// RegistryKey returns the lookup key for a system name: the name with its
// first letter lower-cased.
func RegistryKey(systemName string) string {
	r, size := utf8.DecodeRuneInString(systemName)
	if r == utf8.RuneError {
		return systemName
	}
	return string(unicode.ToLower(r)) + systemName[size:]
}

// Registry holds the extensions loaded in this process. It discovers them
// on first use and again on every Reload. Every instance it takes in is
// connected first; a failed Connect is logged and the instance stays loaded.
type Registry struct {
	root       string
	discoverer Discoverer
	logger     *slog.Logger

	mu         sync.RWMutex
	loaded     bool
	extensions map[string]Extension
}

// NewRegistry creates a registry over the plugins root.
func NewRegistry(root string, d Discoverer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		root:       root,
		discoverer: d,
		logger:     logger,
		extensions: make(map[string]Extension),
	}
}

// Root returns the plugins root directory.
func (r *Registry) Root() string { return r.root }

func (r *Registry) ensureLoaded(ctx context.Context) {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return
	}
	r.extensions = r.discoverer.Discover(ctx, r.root)
	r.connect(ctx, r.extensions)
	r.loaded = true
	getMetrics().loaded.Set(float64(len(r.extensions)))
	r.logger.Info("extensions discovered", "path", r.root, "count", len(r.extensions))
}

// Reload re-runs discovery and replaces the loaded set.
func (r *Registry) Reload(ctx context.Context) {
	found := r.discoverer.Discover(ctx, r.root)
	r.connect(ctx, found)

	r.mu.Lock()
	r.extensions = found
	r.loaded = true
	r.mu.Unlock()

	getMetrics().loaded.Set(float64(len(found)))
	r.logger.Info("extensions reloaded", "path", r.root, "count", len(found))
}

// All returns the loaded extensions ordered by system name.
func (r *Registry) All(ctx context.Context) []Extension {
	r.ensureLoaded(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.extensions))
	for k := range r.extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Extension, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.extensions[k])
	}
	return out
}

// Get returns the extension with the given system name. The first letter
// may be given in either case.
func (r *Registry) Get(ctx context.Context, systemName string) (Extension, bool) {
	r.ensureLoaded(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[RegistryKey(systemName)]
	return ext, ok
}

// Add makes a freshly installed extension available without a reload.
func (r *Registry) Add(ctx context.Context, ext Extension) {
	r.ensureLoaded(ctx)
	key := RegistryKey(ext.Descriptor().SystemName)
	r.connect(ctx, map[string]Extension{key: ext})

	r.mu.Lock()
	r.extensions[key] = ext
	n := len(r.extensions)
	r.mu.Unlock()

	getMetrics().loaded.Set(float64(n))
}

func (r *Registry) connect(ctx context.Context, exts map[string]Extension) {
	for _, ext := range exts {
		if err := safeCall(ctx, ext.Connect); err != nil {
			r.logger.Warn("extension failed to connect", "name", ext.Descriptor().SystemName, "error", err)
		}
	}
}

// Remove drops an extension from the loaded set and reports whether it was there.
func (r *Registry) Remove(ctx context.Context, systemName string) bool {
	r.ensureLoaded(ctx)

	r.mu.Lock()
	key := RegistryKey(systemName)
	_, ok := r.extensions[key]
	delete(r.extensions, key)
	n := len(r.extensions)
	r.mu.Unlock()

	getMetrics().loaded.Set(float64(n))
	return ok
}
