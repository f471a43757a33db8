package plugin_test

import (
	"archive/zip"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/plugin"
	"github.com/goatkit/prodmanager/internal/plugin/loader"
	"github.com/goatkit/prodmanager/internal/repository"
	pkgplugin "github.com/goatkit/prodmanager/pkg/plugin"
)

// events records catalog hook calls across extensions.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, s)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

// testExt is a minimal extension backed by pkg/plugin.Base.
type testExt struct {
	pkgplugin.Base
	installErr   error
	uninstallErr error
	hookErr      error
	seen         *events
}

func (e *testExt) Install(ctx context.Context) error {
	if err := e.Base.Install(ctx); err != nil {
		return err
	}
	return e.installErr
}

func (e *testExt) Uninstall(ctx context.Context) error {
	if e.uninstallErr != nil {
		return e.uninstallErr
	}
	return e.Base.Uninstall(ctx)
}

func (e *testExt) hook(name string) error {
	if e.seen != nil {
		e.seen.add(e.SystemName() + ":" + name)
	}
	return e.hookErr
}

func (e *testExt) AddProduct(ctx context.Context, p pkgplugin.Product) error {
	return e.hook("add_product")
}
func (e *testExt) UpdateProduct(ctx context.Context, p pkgplugin.Product) error {
	return e.hook("update_product")
}
func (e *testExt) DeleteProduct(ctx context.Context, id int64) error {
	return e.hook("delete_product")
}
func (e *testExt) AddProductTag(ctx context.Context, t pkgplugin.Tag) error {
	return e.hook("add_tag")
}
func (e *testExt) UpdateProductTag(ctx context.Context, t pkgplugin.Tag) error {
	return e.hook("update_tag")
}
func (e *testExt) DeleteProductTag(ctx context.Context, t pkgplugin.Tag) error {
	return e.hook("delete_tag")
}
func (e *testExt) AddProductCategory(ctx context.Context, c pkgplugin.Category) error {
	return e.hook("add_category")
}
func (e *testExt) UpdateProductCategory(ctx context.Context, c pkgplugin.Category) error {
	return e.hook("update_category")
}
func (e *testExt) DeleteProductCategory(ctx context.Context, c pkgplugin.Category) error {
	return e.hook("delete_category")
}
func (e *testExt) AddProductBrand(ctx context.Context, b pkgplugin.Brand) error {
	return e.hook("add_brand")
}
func (e *testExt) UpdateProductBrand(ctx context.Context, b pkgplugin.Brand) error {
	return e.hook("update_brand")
}
func (e *testExt) DeleteProductBrand(ctx context.Context, b pkgplugin.Brand) error {
	return e.hook("delete_brand")
}

func factory(configure func(*testExt)) plugin.Factory {
	return func(host pkgplugin.HostAPI, m pkgplugin.Manifest) (pkgplugin.Extension, error) {
		ext := &testExt{Base: pkgplugin.NewBase(host, m)}
		if configure != nil {
			configure(ext)
		}
		return ext, nil
	}
}

type env struct {
	root     string
	uploads  string
	db       *sql.DB
	logs     *plugin.LogBuffer
	loader   *loader.Loader
	registry *plugin.Registry
	manager  *plugin.Manager
	links    *repository.ProductPluginRepository
	plugins  *repository.PluginRepository
}

func newEnv(t *testing.T, factories map[string]plugin.Factory) *env {
	t.Helper()
	ctx := context.Background()
	t.Cleanup(func() { database.SetDriver("") })

	db, err := database.Open(ctx, "sqlite3", ":memory:", database.PoolConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	tmp := t.TempDir()
	e := &env{
		root:    filepath.Join(tmp, "plugins"),
		uploads: filepath.Join(tmp, "uploads"),
		db:      db,
		logs:    plugin.NewLogBuffer(100),
		links:   repository.NewProductPluginRepository(db),
		plugins: repository.NewPluginRepository(db),
	}
	require.NoError(t, os.MkdirAll(e.root, 0o755))
	require.NoError(t, os.MkdirAll(e.uploads, 0o755))

	host := plugin.NewProdHostAPI(plugin.WithDB(db), plugin.WithLogBuffer(e.logs))
	lookup := func(name string) (plugin.Factory, bool) {
		f, ok := factories[name]
		return f, ok
	}
	e.loader = loader.NewLoader([]loader.Resolver{
		loader.NewFactoryResolver(lookup,
			loader.WithHost(func(name string) plugin.HostAPI { return host.For(name) }),
			loader.WithHostVersion(semver.MustParse("1.0.0")),
		),
	})
	e.registry = plugin.NewRegistry(e.root, e.loader, nil)
	e.manager = plugin.NewManager(plugin.ManagerConfig{
		Registry: e.registry,
		Resolver: e.loader,
		DB:       db,
		Links:    e.links,
		Logs:     e.logs,
	})
	return e
}

type zipEntry struct {
	name, body string
}

func writeZip(t *testing.T, path string, entries ...zipEntry) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func manifest(name, systemName string) string {
	return "name: " + name + "\nsystem_name: " + systemName + "\nversion: 1.0.0\nauthor: Test Author\n"
}

func requireKind(t *testing.T, err error, kind error) *plugin.Error {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "want %v, got %v", kind, err)
	var pe *plugin.Error
	require.ErrorAs(t, err, &pe)
	return pe
}
