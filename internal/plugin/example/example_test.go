package example_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/models"
	"github.com/goatkit/prodmanager/internal/plugin"
	"github.com/goatkit/prodmanager/internal/plugin/example"
	"github.com/goatkit/prodmanager/internal/plugin/loader"
	"github.com/goatkit/prodmanager/internal/repository"
	pkgplugin "github.com/goatkit/prodmanager/pkg/plugin"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite3", ":memory:", database.PoolConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func TestRegistered(t *testing.T) {
	f, ok := pkgplugin.Lookup(example.SystemName)
	require.True(t, ok)

	ext, err := f(nil, pkgplugin.Manifest{})
	require.NoError(t, err)
	d := ext.Descriptor()
	assert.Equal(t, "ExamplePlugin", d.SystemName)
	assert.Equal(t, "Example Plugin", d.Name)
	assert.Equal(t, "Siyabonga Konile", d.Authors.String())
}

func TestShippedManifestResolves(t *testing.T) {
	root := filepath.Join("..", "..", "..", "plugins")
	l := loader.NewLoader([]loader.Resolver{
		loader.NewFactoryResolver(pkgplugin.Lookup, loader.WithHostVersion(semver.MustParse("1.0.0"))),
	})

	ext, err := l.Resolve(context.Background(), filepath.Join(root, example.SystemName))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", ext.Descriptor().Version)

	fields, err := ext.ConfigFields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "Hello", fields[0].Value)
}

func TestLifecycleAndNotes(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	logs := plugin.NewLogBuffer(20)
	host := plugin.NewProdHostAPI(plugin.WithDB(db), plugin.WithLogBuffer(logs))

	ext, err := example.New(host.For(example.SystemName), pkgplugin.Manifest{
		Settings: map[string]string{"verbose": "true"},
	})
	require.NoError(t, err)

	require.NoError(t, database.InTx(ctx, db, ext.Install))
	installed, err := repository.NewPluginRepository(db).Exists(ctx, example.SystemName)
	require.NoError(t, err)
	assert.True(t, installed)

	require.NoError(t, ext.AddPluginFields(ctx, 7, map[string]string{"example_note": "fragile"}))
	require.NoError(t, ext.UpdatePluginFields(ctx, 7, map[string]string{"example_note": "handle with care"}))
	fields, err := ext.PluginFields(ctx, 7)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "handle with care", fields[0].Value)

	empty, err := ext.PluginFields(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "", empty[0].Value)

	p := &models.Product{ID: 7, Name: "Kettle", Price: 24.5, Quantity: 3}
	require.NoError(t, ext.UpdateProduct(ctx, p.View()))
	entries := logs.Entries(plugin.LogFilter{Plugin: example.SystemName})
	require.NotEmpty(t, entries)
	assert.Equal(t, "product updated", entries[0].Message)
	assert.Equal(t, "Kettle", entries[0].Fields["name"])

	require.NoError(t, ext.DeleteProduct(ctx, 7))
	fields, err = ext.PluginFields(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "", fields[0].Value)

	require.NoError(t, database.InTx(ctx, db, ext.Uninstall))
	installed, err = repository.NewPluginRepository(db).Exists(ctx, example.SystemName)
	require.NoError(t, err)
	assert.False(t, installed)

	_, err = db.ExecContext(ctx, "SELECT 1 FROM example_plugin_notes")
	assert.Error(t, err, "notes table is dropped")
}
