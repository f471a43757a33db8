package plugin

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Tables shared between the host and extensions.
const (
	InstalledTable   = "plugins"
	AssociationTable = "product_plugin"
	ConfigTable      = "plugin_config"
)

// Base provides defaults for every Extension method except the catalog
// hooks. Embed it and implement CatalogHooks:
//
//	type Shop struct{ plugin.Base }
//
//	func New(host plugin.HostAPI, m plugin.Manifest) (plugin.Extension, error) {
//		return &Shop{Base: plugin.NewBase(host, m)}, nil
//	}
type Base struct {
	Host HostAPI

	desc Descriptor

	mu sync.RWMutex
	// Manifest defaults. Without a host, also the only settings store.
	settings map[string]string
}

// NewBase builds a Base from the manifest read by the host.
func NewBase(host HostAPI, m Manifest) Base {
	settings := make(map[string]string, len(m.Settings))
	maps.Copy(settings, m.Settings)
	return Base{
		Host:     host,
		desc:     m.Descriptor,
		settings: settings,
	}
}

// Descriptor implements Extension.
func (b *Base) Descriptor() Descriptor { return b.desc }

func (b *Base) Name() string        { return b.desc.Name }
func (b *Base) SystemName() string  { return b.desc.SystemName }
func (b *Base) Description() string { return b.desc.Description }
func (b *Base) Version() string     { return b.desc.Version }
func (b *Base) Author() string      { return b.desc.Authors.String() }

// Connect succeeds without doing anything.
func (b *Base) Connect(ctx context.Context) error { return nil }

// Install records the extension in the installed-plugins table.
func (b *Base) Install(ctx context.Context) error {
	return b.AddToInstalled(ctx)
}

// Uninstall removes the installed-plugins row, every product association and
// the stored settings.
func (b *Base) Uninstall(ctx context.Context) error {
	if err := b.RemoveFromInstalled(ctx); err != nil {
		return err
	}
	if err := b.RemoveProductLinks(ctx); err != nil {
		return err
	}
	return b.RemoveConfig(ctx)
}

// AddToInstalled inserts the (plugin_name, plugin_sys_name) row.
func (b *Base) AddToInstalled(ctx context.Context) error {
	if b.Host == nil {
		return fmt.Errorf("%s: no host", b.desc.SystemName)
	}
	_, err := b.Host.DBExec(ctx,
		"INSERT INTO "+InstalledTable+" (plugin_name, plugin_sys_name) VALUES (?, ?)",
		b.desc.Name, b.desc.SystemName)
	if err != nil {
		return fmt.Errorf("register %s: %w", b.desc.SystemName, err)
	}
	return nil
}

// RemoveFromInstalled deletes the extension's installed-plugins row.
func (b *Base) RemoveFromInstalled(ctx context.Context) error {
	if b.Host == nil {
		return fmt.Errorf("%s: no host", b.desc.SystemName)
	}
	_, err := b.Host.DBExec(ctx,
		"DELETE FROM "+InstalledTable+" WHERE plugin_sys_name = ?", b.desc.SystemName)
	if err != nil {
		return fmt.Errorf("unregister %s: %w", b.desc.SystemName, err)
	}
	return nil
}

// RemoveProductLinks deletes every product association of the extension.
func (b *Base) RemoveProductLinks(ctx context.Context) error {
	if b.Host == nil {
		return fmt.Errorf("%s: no host", b.desc.SystemName)
	}
	_, err := b.Host.DBExec(ctx,
		"DELETE FROM "+AssociationTable+" WHERE plugin_sys_name = ?", b.desc.SystemName)
	if err != nil {
		return fmt.Errorf("unlink products of %s: %w", b.desc.SystemName, err)
	}
	return nil
}

// RemoveConfig deletes the extension's stored settings.
func (b *Base) RemoveConfig(ctx context.Context) error {
	if b.Host == nil {
		return fmt.Errorf("%s: no host", b.desc.SystemName)
	}
	_, err := b.Host.DBExec(ctx,
		"DELETE FROM "+ConfigTable+" WHERE plugin_sys_name = ?", b.desc.SystemName)
	if err != nil {
		return fmt.Errorf("remove settings of %s: %w", b.desc.SystemName, err)
	}
	return nil
}

// ConfigFields reports no settings form.
func (b *Base) ConfigFields(ctx context.Context) ([]Field, error) { return nil, nil }

// UpdateConfig stores values in the plugin_config table, replacing earlier
// values of the same keys. Without a host the values are kept in memory.
func (b *Base) UpdateConfig(ctx context.Context, values map[string]string) error {
	if b.Host == nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.settings == nil {
			b.settings = make(map[string]string, len(values))
		}
		maps.Copy(b.settings, values)
		return nil
	}

	for _, k := range slices.Sorted(maps.Keys(values)) {
		if _, err := b.Host.DBExec(ctx,
			"DELETE FROM "+ConfigTable+" WHERE plugin_sys_name = ? AND config_key = ?",
			b.desc.SystemName, k); err != nil {
			return fmt.Errorf("update setting %s of %s: %w", k, b.desc.SystemName, err)
		}
		if _, err := b.Host.DBExec(ctx,
			"INSERT INTO "+ConfigTable+" (plugin_sys_name, config_key, config_value) VALUES (?, ?, ?)",
			b.desc.SystemName, k, values[k]); err != nil {
			return fmt.Errorf("update setting %s of %s: %w", k, b.desc.SystemName, err)
		}
	}
	return nil
}

// Config returns the manifest defaults overlaid with the stored settings.
func (b *Base) Config(ctx context.Context) (map[string]string, error) {
	b.mu.RLock()
	cfg := maps.Clone(b.settings)
	b.mu.RUnlock()
	if cfg == nil {
		cfg = make(map[string]string)
	}
	if b.Host == nil {
		return cfg, nil
	}

	rows, err := b.Host.DBQuery(ctx,
		"SELECT config_key, config_value FROM "+ConfigTable+" WHERE plugin_sys_name = ?",
		b.desc.SystemName)
	if err != nil {
		return nil, fmt.Errorf("read settings of %s: %w", b.desc.SystemName, err)
	}
	for _, row := range rows {
		cfg[fmt.Sprint(row["config_key"])] = fmt.Sprint(row["config_value"])
	}
	return cfg, nil
}

func (b *Base) PluginFields(ctx context.Context, productID int64) ([]Field, error) {
	return nil, nil
}

func (b *Base) AddPluginFields(ctx context.Context, productID int64, values map[string]string) error {
	return nil
}

func (b *Base) UpdatePluginFields(ctx context.Context, productID int64, values map[string]string) error {
	return nil
}

func (b *Base) RemovePluginFields(ctx context.Context, productID int64) error {
	return nil
}
