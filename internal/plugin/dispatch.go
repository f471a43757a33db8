package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// LinkReader is the association store as seen by the dispatcher.
type LinkReader interface {
	Link(ctx context.Context, productID int64, systemName string) error
	ListSystemNamesFor(ctx context.Context, productID int64) ([]string, error)
}

// Dispatcher forwards catalog changes to extensions. Product events reach
// the extensions linked to the product; tag, category and brand events reach
// every loaded extension. One extension failing does not stop delivery to
// the others.
type Dispatcher struct {
	registry *Registry
	links    LinkReader
	logger   *slog.Logger
	logs     *LogBuffer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(reg *Registry, links LinkReader, logger *slog.Logger, logs *LogBuffer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: reg, links: links, logger: logger, logs: logs}
}

// ProductAdded links the product to the chosen extensions and calls their
// AddProduct hook. Names that are not loaded are rejected before anything
// is linked.
func (d *Dispatcher) ProductAdded(ctx context.Context, p Product, systemNames []string) error {
	targets := make([]Extension, 0, len(systemNames))
	for _, name := range systemNames {
		ext, ok := d.registry.Get(ctx, name)
		if !ok {
			return NewError("link", name, ErrExtensionNotLoaded, nil)
		}
		targets = append(targets, ext)
	}

	for _, ext := range targets {
		if err := d.links.Link(ctx, p.ID(), ext.Descriptor().SystemName); err != nil {
			return err
		}
	}

	return d.deliver(ctx, "add_product", targets, func(ext Extension) error {
		return ext.AddProduct(ctx, p)
	})
}

// ProductUpdated calls UpdateProduct on the linked extensions.
func (d *Dispatcher) ProductUpdated(ctx context.Context, p Product) error {
	return d.toLinked(ctx, "update_product", p.ID(), func(ext Extension) error {
		return ext.UpdateProduct(ctx, p)
	})
}

// ProductDeleted calls DeleteProduct on the linked extensions.
func (d *Dispatcher) ProductDeleted(ctx context.Context, productID int64) error {
	return d.toLinked(ctx, "delete_product", productID, func(ext Extension) error {
		return ext.DeleteProduct(ctx, productID)
	})
}

// ProductFieldsAdded hands custom field values to the linked extensions.
func (d *Dispatcher) ProductFieldsAdded(ctx context.Context, productID int64, values map[string]string) error {
	return d.toLinked(ctx, "add_fields", productID, func(ext Extension) error {
		return ext.AddPluginFields(ctx, productID, values)
	})
}

// ProductFieldsUpdated hands changed custom field values to the linked extensions.
func (d *Dispatcher) ProductFieldsUpdated(ctx context.Context, productID int64, values map[string]string) error {
	return d.toLinked(ctx, "update_fields", productID, func(ext Extension) error {
		return ext.UpdatePluginFields(ctx, productID, values)
	})
}

// ProductFieldsRemoved asks the linked extensions to drop their custom fields.
func (d *Dispatcher) ProductFieldsRemoved(ctx context.Context, productID int64) error {
	return d.toLinked(ctx, "remove_fields", productID, func(ext Extension) error {
		return ext.RemovePluginFields(ctx, productID)
	})
}

// TagAdded, TagUpdated and TagDeleted notify every loaded extension.
func (d *Dispatcher) TagAdded(ctx context.Context, t Tag) error {
	return d.toAll(ctx, "add_tag", func(ext Extension) error { return ext.AddProductTag(ctx, t) })
}

func (d *Dispatcher) TagUpdated(ctx context.Context, t Tag) error {
	return d.toAll(ctx, "update_tag", func(ext Extension) error { return ext.UpdateProductTag(ctx, t) })
}

func (d *Dispatcher) TagDeleted(ctx context.Context, t Tag) error {
	return d.toAll(ctx, "delete_tag", func(ext Extension) error { return ext.DeleteProductTag(ctx, t) })
}

func (d *Dispatcher) CategoryAdded(ctx context.Context, c Category) error {
	return d.toAll(ctx, "add_category", func(ext Extension) error { return ext.AddProductCategory(ctx, c) })
}

func (d *Dispatcher) CategoryUpdated(ctx context.Context, c Category) error {
	return d.toAll(ctx, "update_category", func(ext Extension) error { return ext.UpdateProductCategory(ctx, c) })
}

func (d *Dispatcher) CategoryDeleted(ctx context.Context, c Category) error {
	return d.toAll(ctx, "delete_category", func(ext Extension) error { return ext.DeleteProductCategory(ctx, c) })
}

func (d *Dispatcher) BrandAdded(ctx context.Context, b Brand) error {
	return d.toAll(ctx, "add_brand", func(ext Extension) error { return ext.AddProductBrand(ctx, b) })
}

func (d *Dispatcher) BrandUpdated(ctx context.Context, b Brand) error {
	return d.toAll(ctx, "update_brand", func(ext Extension) error { return ext.UpdateProductBrand(ctx, b) })
}

func (d *Dispatcher) BrandDeleted(ctx context.Context, b Brand) error {
	return d.toAll(ctx, "delete_brand", func(ext Extension) error { return ext.DeleteProductBrand(ctx, b) })
}

// Linked returns the loaded extensions linked to productID. Links to
// extensions that are no longer loaded are skipped.
func (d *Dispatcher) Linked(ctx context.Context, productID int64) ([]Extension, error) {
	names, err := d.links.ListSystemNamesFor(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := make([]Extension, 0, len(names))
	for _, name := range names {
		ext, ok := d.registry.Get(ctx, name)
		if !ok {
			d.logger.Debug("skipping link to unloaded extension", "name", name, "product_id", productID)
			continue
		}
		out = append(out, ext)
	}
	return out, nil
}

func (d *Dispatcher) toLinked(ctx context.Context, event string, productID int64, call func(Extension) error) error {
	targets, err := d.Linked(ctx, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	return d.deliver(ctx, event, targets, call)
}

func (d *Dispatcher) toAll(ctx context.Context, event string, call func(Extension) error) error {
	return d.deliver(ctx, event, d.registry.All(ctx), call)
}

func (d *Dispatcher) deliver(ctx context.Context, event string, targets []Extension, call func(Extension) error) error {
	var errs []error
	for _, ext := range targets {
		name := ext.Descriptor().SystemName
		err := safeCall(ctx, func(context.Context) error { return call(ext) })
		getMetrics().dispatched.WithLabelValues(event, resultLabel(err)).Inc()
		if err != nil {
			d.logger.Warn("extension hook failed", "name", name, "event", event, "error", err)
			d.logs.Log(name, "error", event+" failed", map[string]any{"error": err.Error()})
			errs = append(errs, fmt.Errorf("%s %s: %w", name, event, err))
		}
	}
	return errors.Join(errs...)
}
