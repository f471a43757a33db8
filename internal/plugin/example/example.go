// Package example provides ExamplePlugin, a small extension that shows the
// contract end to end: it keeps a private notes table, adds a product form
// field and logs every catalog event through the host.
package example

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goatkit/prodmanager/pkg/plugin"
)

// SystemName is the identity ExamplePlugin registers under.
const SystemName = "ExamplePlugin"

const notesTable = "example_plugin_notes"

func init() {
	plugin.Register(SystemName, New)
}

// ExamplePlugin stores a free-text note per product.
type ExamplePlugin struct {
	plugin.Base
}

// New is the plugin.Factory for ExamplePlugin.
func New(host plugin.HostAPI, m plugin.Manifest) (plugin.Extension, error) {
	if m.SystemName == "" {
		m.SystemName = SystemName
	}
	if m.Name == "" {
		m.Name = "Example Plugin"
	}
	if len(m.Authors) == 0 {
		m.Authors = plugin.Authors{"Siyabonga Konile"}
	}
	return &ExamplePlugin{Base: plugin.NewBase(host, m)}, nil
}

// Install creates the notes table and records the plugin as installed.
func (p *ExamplePlugin) Install(ctx context.Context) error {
	if p.Host == nil {
		return fmt.Errorf("%s: no host", SystemName)
	}
	if _, err := p.Host.DBExec(ctx,
		"CREATE TABLE IF NOT EXISTS "+notesTable+" (prod_id BIGINT NOT NULL, note TEXT NOT NULL)"); err != nil {
		return fmt.Errorf("create %s: %w", notesTable, err)
	}
	return p.Base.Install(ctx)
}

// Uninstall drops the notes table, then removes the plugin's rows.
func (p *ExamplePlugin) Uninstall(ctx context.Context) error {
	if p.Host == nil {
		return fmt.Errorf("%s: no host", SystemName)
	}
	if _, err := p.Host.DBExec(ctx, "DROP TABLE IF EXISTS "+notesTable); err != nil {
		return fmt.Errorf("drop %s: %w", notesTable, err)
	}
	return p.Base.Uninstall(ctx)
}

// ConfigFields describes the settings form.
func (p *ExamplePlugin) ConfigFields(ctx context.Context) ([]plugin.Field, error) {
	cfg, _ := p.Config(ctx)
	return []plugin.Field{
		{Name: "greeting", Label: "Greeting", Type: "text", Value: cfg["greeting"]},
		{Name: "verbose", Label: "Log product details", Type: "checkbox", Value: cfg["verbose"]},
	}, nil
}

// PluginFields returns the note field, filled in for existing products.
func (p *ExamplePlugin) PluginFields(ctx context.Context, productID int64) ([]plugin.Field, error) {
	field := plugin.Field{Name: "example_note", Label: "Note", Type: "textarea"}
	if productID == 0 || p.Host == nil {
		return []plugin.Field{field}, nil
	}

	rows, err := p.Host.DBQuery(ctx, "SELECT note FROM "+notesTable+" WHERE prod_id = ?", productID)
	if err != nil {
		return nil, fmt.Errorf("read note: %w", err)
	}
	if len(rows) > 0 {
		field.Value, _ = rows[0]["note"].(string)
	}
	return []plugin.Field{field}, nil
}

func (p *ExamplePlugin) AddPluginFields(ctx context.Context, productID int64, values map[string]string) error {
	return p.saveNote(ctx, productID, values["example_note"])
}

func (p *ExamplePlugin) UpdatePluginFields(ctx context.Context, productID int64, values map[string]string) error {
	return p.saveNote(ctx, productID, values["example_note"])
}

func (p *ExamplePlugin) RemovePluginFields(ctx context.Context, productID int64) error {
	return p.deleteNote(ctx, productID)
}

func (p *ExamplePlugin) saveNote(ctx context.Context, productID int64, note string) error {
	if err := p.deleteNote(ctx, productID); err != nil {
		return err
	}
	if note == "" {
		return nil
	}
	if _, err := p.Host.DBExec(ctx,
		"INSERT INTO "+notesTable+" (prod_id, note) VALUES (?, ?)", productID, note); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

func (p *ExamplePlugin) deleteNote(ctx context.Context, productID int64) error {
	if p.Host == nil {
		return fmt.Errorf("%s: no host", SystemName)
	}
	if _, err := p.Host.DBExec(ctx, "DELETE FROM "+notesTable+" WHERE prod_id = ?", productID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (p *ExamplePlugin) log(ctx context.Context, message string, fields map[string]any) {
	if p.Host != nil {
		p.Host.Log(ctx, "info", message, fields)
	}
}

func (p *ExamplePlugin) productFields(prod plugin.Product) map[string]any {
	fields := map[string]any{"product_id": prod.ID()}
	cfg, _ := p.Config(context.Background())
	if v, _ := strconv.ParseBool(cfg["verbose"]); v {
		fields["name"] = prod.Name()
		fields["price"] = prod.Price()
		fields["in_stock"] = prod.InStock()
	}
	return fields
}

func (p *ExamplePlugin) AddProduct(ctx context.Context, prod plugin.Product) error {
	p.log(ctx, "product added", p.productFields(prod))
	return nil
}

func (p *ExamplePlugin) UpdateProduct(ctx context.Context, prod plugin.Product) error {
	p.log(ctx, "product updated", p.productFields(prod))
	return nil
}

func (p *ExamplePlugin) DeleteProduct(ctx context.Context, productID int64) error {
	p.log(ctx, "product deleted", map[string]any{"product_id": productID})
	return p.deleteNote(ctx, productID)
}

func (p *ExamplePlugin) AddProductTag(ctx context.Context, t plugin.Tag) error {
	p.log(ctx, "tag added", map[string]any{"tag": t.Slug()})
	return nil
}

func (p *ExamplePlugin) UpdateProductTag(ctx context.Context, t plugin.Tag) error {
	p.log(ctx, "tag updated", map[string]any{"tag": t.Slug()})
	return nil
}

func (p *ExamplePlugin) DeleteProductTag(ctx context.Context, t plugin.Tag) error {
	p.log(ctx, "tag deleted", map[string]any{"tag": t.Slug()})
	return nil
}

func (p *ExamplePlugin) AddProductCategory(ctx context.Context, c plugin.Category) error {
	p.log(ctx, "category added", map[string]any{"category": c.Slug()})
	return nil
}

func (p *ExamplePlugin) UpdateProductCategory(ctx context.Context, c plugin.Category) error {
	p.log(ctx, "category updated", map[string]any{"category": c.Slug()})
	return nil
}

func (p *ExamplePlugin) DeleteProductCategory(ctx context.Context, c plugin.Category) error {
	p.log(ctx, "category deleted", map[string]any{"category": c.Slug()})
	return nil
}

func (p *ExamplePlugin) AddProductBrand(ctx context.Context, b plugin.Brand) error {
	p.log(ctx, "brand added", map[string]any{"brand": b.Name()})
	return nil
}

func (p *ExamplePlugin) UpdateProductBrand(ctx context.Context, b plugin.Brand) error {
	p.log(ctx, "brand updated", map[string]any{"brand": b.Name()})
	return nil
}

func (p *ExamplePlugin) DeleteProductBrand(ctx context.Context, b plugin.Brand) error {
	p.log(ctx, "brand deleted", map[string]any{"brand": b.Name()})
	return nil
}
