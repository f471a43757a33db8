// Package plugin defines the contract that catalog extensions implement.
//
// An extension is a contributor-supplied package that reacts to product,
// tag, category and brand changes and may keep its own data next to the
// catalog. Extensions are installed from a ZIP archive whose entry file
// is named after the extension:
//
//	plugins/<SystemName>/<SystemName>.yaml   manifest, resolved to a registered Factory
//	plugins/<SystemName>/<SystemName>.so     Go shared object exporting a factory symbol
//
// The host never instantiates anything by a name it has not validated:
// manifests are resolved through the factory registry in this package and
// shared objects are only opened after the archive has passed layout checks.
package plugin

import "context"

// Extension is the full capability set an installed extension must provide.
// Embed Base to inherit defaults for everything except the catalog hooks.
type Extension interface {
	// Descriptor returns the extension metadata. SystemName must equal the
	// directory the extension was installed into.
	Descriptor() Descriptor

	Lifecycle
	CatalogHooks
	Configurable
	FieldProvider
}

// Lifecycle covers connection and install/uninstall hooks.
type Lifecycle interface {
	// Connect opens the client connection to the extension's backing service.
	Connect(ctx context.Context) error

	// Install creates the extension's private storage and records the
	// extension in the installed-plugins table. It runs inside the host's
	// install transaction. Side effects outside HostAPI are not rolled back.
	// On MySQL, DDL such as CREATE TABLE commits the transaction implicitly,
	// so statements before it survive a later failure. Create tables first
	// with IF NOT EXISTS and drop them in Uninstall.
	Install(ctx context.Context) error

	// Uninstall drops the extension's private storage and removes its
	// installed-plugins row.
	Uninstall(ctx context.Context) error
}

// CatalogHooks are invoked around catalog changes.
type CatalogHooks interface {
	AddProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, productID int64) error

	AddProductTag(ctx context.Context, t Tag) error
	UpdateProductTag(ctx context.Context, t Tag) error
	DeleteProductTag(ctx context.Context, t Tag) error

	AddProductCategory(ctx context.Context, c Category) error
	UpdateProductCategory(ctx context.Context, c Category) error
	DeleteProductCategory(ctx context.Context, c Category) error

	AddProductBrand(ctx context.Context, b Brand) error
	UpdateProductBrand(ctx context.Context, b Brand) error
	DeleteProductBrand(ctx context.Context, b Brand) error
}

// Configurable exposes the extension's settings form and stored settings.
type Configurable interface {
	// ConfigFields describes the settings form. A nil slice means the
	// extension has no settings.
	ConfigFields(ctx context.Context) ([]Field, error)
	UpdateConfig(ctx context.Context, values map[string]string) error
	Config(ctx context.Context) (map[string]string, error)
}

// FieldProvider lets an extension attach custom fields to products.
type FieldProvider interface {
	// PluginFields returns the product form fields the extension adds.
	// productID is zero when the product does not exist yet.
	PluginFields(ctx context.Context, productID int64) ([]Field, error)
	AddPluginFields(ctx context.Context, productID int64, values map[string]string) error
	UpdatePluginFields(ctx context.Context, productID int64, values map[string]string) error
	RemovePluginFields(ctx context.Context, productID int64) error
}

// Factory constructs an extension. The host passes its API (database
// handle, logging, configuration, cache) and the manifest read from the
// extension's entry file.
type Factory func(host HostAPI, m Manifest) (Extension, error)

// Field describes one input of a settings or product form.
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text, number, select, checkbox, textarea
	Value    string   `json:"value,omitempty"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// HostAPI is the interface extensions use to reach host services.
// Passed to the Factory; extensions store it for later use.
type HostAPI interface {
	// Database. Queries use ? placeholders; the host converts them for the
	// active driver. During Install and Uninstall both calls run inside the
	// lifecycle transaction.
	DBQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	DBExec(ctx context.Context, query string, args ...any) (int64, error)

	// Cache
	CacheGet(ctx context.Context, key string) ([]byte, bool, error)
	CacheSet(ctx context.Context, key string, value []byte, ttlSeconds int) error
	CacheDelete(ctx context.Context, key string) error

	// Logging
	Log(ctx context.Context, level, message string, fields map[string]any)

	// Config
	ConfigGet(ctx context.Context, key string) (string, error)
}
