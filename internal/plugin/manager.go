package plugin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/plugin/packaging"
)

// EntryResolver builds the extension found in an extension directory.
type EntryResolver interface {
	Resolve(ctx context.Context, dir string) (Extension, error)
}

// LinkStore removes product associations on uninstall.
type LinkStore interface {
	UnlinkAllFor(ctx context.Context, systemName string) (int64, error)
}

// ManagerConfig wires a Manager. Registry and Resolver are required.
type ManagerConfig struct {
	Registry *Registry
	Resolver EntryResolver

	// DB, when set, wraps each lifecycle hook in a transaction.
	DB *sql.DB
	// Links, when set, receives the uninstall cascade.
	Links LinkStore
	// Locker defaults to an in-process MemoryLocker.
	Locker Locker

	Logger *slog.Logger
	Logs   *LogBuffer
}

// Manager installs extensions from archives and uninstalls them.
type Manager struct {
	registry *Registry
	resolver EntryResolver
	db       *sql.DB
	links    LinkStore
	locker   Locker
	logger   *slog.Logger
	logs     *LogBuffer
}

// NewManager creates a lifecycle manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		db:       cfg.DB,
		links:    cfg.Links,
		locker:   cfg.Locker,
		logger:   cfg.Logger,
		logs:     cfg.Logs,
	}
	if m.locker == nil {
		m.locker = NewMemoryLocker()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Registry returns the registry the manager keeps current.
func (m *Manager) Registry() *Registry { return m.registry }

// ArchiveSystemName derives the system name from an archive path: the base
// file name up to its first dot. "uploads/Foo.v2.zip" gives "Foo".
func ArchiveSystemName(archivePath string) string {
	base := filepath.Base(archivePath)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// Install installs the extension packaged at archivePath into the plugins
// root and loads it. The archive is removed whatever the outcome. On
// failure nothing created by this call is left behind.
func (m *Manager) Install(ctx context.Context, archivePath string) (desc *Descriptor, err error) {
	start := time.Now()
	name := ArchiveSystemName(archivePath)

	defer func() {
		if rmErr := os.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			m.logger.Warn("failed to remove uploaded archive", "path", archivePath, "error", rmErr)
		}
	}()
	defer func() {
		getMetrics().installDuration.Observe(time.Since(start).Seconds())
		m.record("install", name, err)
	}()

	if !ValidSystemName(name) {
		return nil, NewError("install", name, ErrInvalidName, fmt.Errorf("%q from %s", name, filepath.Base(archivePath)))
	}

	unlock, err := m.locker.Lock(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("install %s: lock: %w", name, err)
	}
	defer unlock()

	root := m.registry.Root()
	target := filepath.Join(root, name)
	if _, statErr := os.Lstat(target); statErr == nil {
		return nil, NewError("install", name, ErrAlreadyInstalled, fmt.Errorf("%s exists", target))
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, NewError("install", name, ErrExtractionFailed, statErr)
	}
	if _, loaded := m.registry.Get(ctx, name); loaded {
		return nil, NewError("install", name, ErrAlreadyInstalled, nil)
	}

	layout, err := packaging.InspectArchive(archivePath, name)
	if err != nil {
		return nil, NewError("install", name, ErrExtractionFailed, err)
	}
	if layout == packaging.InvalidLayout {
		return nil, NewError("install", name, ErrBadArchiveStructure, nil)
	}

	dir, created, err := packaging.Extract(archivePath, layout, root, name)
	if created {
		defer func() {
			if err == nil {
				return
			}
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				m.logger.Error("failed to remove extension directory", "name", name, "path", dir, "error", rmErr)
			}
		}()
	}
	if err != nil {
		return nil, NewError("install", name, ErrExtractionFailed, err)
	}

	ext, err := m.resolver.Resolve(ctx, dir)
	if err != nil {
		return nil, asInstallError(name, err)
	}

	if err = m.runHook(ctx, ext.Install); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, NewError("install", name, ErrAlreadyInstalled, err)
		}
		return nil, NewError("install", name, ErrInstallHookFailed, err)
	}

	m.registry.Add(ctx, ext)
	d := ext.Descriptor()
	return &d, nil
}

// Uninstall runs the extension's uninstall hook and, once it succeeds,
// unloads it, deletes its directory and removes its product associations.
// After a successful hook every step runs; their failures are joined.
func (m *Manager) Uninstall(ctx context.Context, systemName string) (err error) {
	defer func() { m.record("uninstall", systemName, err) }()

	unlock, err := m.locker.Lock(ctx, systemName)
	if err != nil {
		return fmt.Errorf("uninstall %s: lock: %w", systemName, err)
	}
	defer unlock()

	ext, ok := m.registry.Get(ctx, systemName)
	if !ok {
		return NewError("uninstall", systemName, ErrExtensionNotLoaded, nil)
	}
	name := ext.Descriptor().SystemName

	if err := m.runHook(ctx, ext.Uninstall); err != nil {
		return NewError("uninstall", name, ErrUninstallHookFailed, err)
	}

	var errs []error
	m.registry.Remove(ctx, name)

	if rmErr := os.RemoveAll(filepath.Join(m.registry.Root(), name)); rmErr != nil {
		errs = append(errs, fmt.Errorf("remove directory: %w", rmErr))
	}

	if m.links != nil {
		if n, linkErr := m.links.UnlinkAllFor(ctx, name); linkErr != nil {
			errs = append(errs, linkErr)
		} else {
			m.logger.Debug("removed product links", "name", name, "count", n)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("uninstall %s: %w", name, errors.Join(errs...))
	}
	return nil
}

// runHook calls a lifecycle hook, inside a transaction when a database is
// configured.
func (m *Manager) runHook(ctx context.Context, hook func(context.Context) error) error {
	if m.db == nil {
		return safeCall(ctx, hook)
	}
	return database.InTx(ctx, m.db, func(ctx context.Context) error {
		return safeCall(ctx, hook)
	})
}

// safeCall turns a panicking hook into an error.
func safeCall(ctx context.Context, hook func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return hook(ctx)
}

// asInstallError re-labels a resolve error for the install operation.
func asInstallError(name string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return NewError("install", name, e.Kind, e.Err)
	}
	return NewError("install", name, ErrEntryClassMissing, err)
}

func (m *Manager) record(op, name string, err error) {
	result := resultLabel(err)
	switch op {
	case "install":
		getMetrics().installs.WithLabelValues(result).Inc()
	case "uninstall":
		getMetrics().uninstalls.WithLabelValues(result).Inc()
	}

	if err != nil {
		m.logger.Warn(op+" failed", "name", name, "error", err)
		m.logs.Log(name, "error", op+" failed", map[string]any{"error": err.Error(), "result": result})
		return
	}
	m.logger.Info(op+" succeeded", "name", name)
	m.logs.Log(name, "info", op+" succeeded", nil)
}
