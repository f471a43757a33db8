package models

import (
	"github.com/goatkit/prodmanager/pkg/plugin"
)

// Brand represents a product brand.
type Brand struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Category represents a product category. ParentID is zero for top-level categories.
type Category struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Slug      string `json:"slug" db:"slug"`
	ParentID  int64  `json:"parent_id,omitempty" db:"parent_id"`
	Published bool   `json:"published" db:"published"`
}

// Tag represents a product tag.
type Tag struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Slug      string `json:"slug" db:"slug"`
	Published bool   `json:"published" db:"published"`
}

// Product represents a catalog product.
type Product struct {
	ID          int64       `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Code        string      `json:"code" db:"code"`
	Description string      `json:"description" db:"description"`
	Price       float64     `json:"price" db:"price"`
	Quantity    int         `json:"quantity" db:"quantity"`
	Published   bool        `json:"published" db:"published"`
	Condition   string      `json:"condition,omitempty" db:"condition"`
	Brand       *Brand      `json:"brand,omitempty"`
	Categories  []*Category `json:"categories,omitempty"`
	Tags        []*Tag      `json:"tags,omitempty"`
	Images      []string    `json:"images,omitempty"`
}

// InStock returns true if at least one unit is available
func (p *Product) InStock() bool {
	return p.Quantity > 0
}

// View exposes the product to extensions. Setters write through to p.
func (p *Product) View() plugin.Product { return productView{p} }

// View exposes the tag to extensions.
func (t *Tag) View() plugin.Tag { return tagView{t} }

// View exposes the category to extensions.
func (c *Category) View() plugin.Category { return categoryView{c} }

// View exposes the brand to extensions.
func (b *Brand) View() plugin.Brand { return brandView{b} }

type productView struct{ p *Product }

func (v productView) ID() int64           { return v.p.ID }
func (v productView) Name() string        { return v.p.Name }
func (v productView) Code() string        { return v.p.Code }
func (v productView) Description() string { return v.p.Description }
func (v productView) Price() float64      { return v.p.Price }
func (v productView) Quantity() int       { return v.p.Quantity }
func (v productView) InStock() bool       { return v.p.InStock() }
func (v productView) Published() bool     { return v.p.Published }
func (v productView) Condition() string   { return v.p.Condition }
func (v productView) Images() []string    { return append([]string(nil), v.p.Images...) }

func (v productView) Brand() plugin.Brand {
	if v.p.Brand == nil {
		return nil
	}
	return v.p.Brand.View()
}

func (v productView) Categories() []plugin.Category {
	out := make([]plugin.Category, 0, len(v.p.Categories))
	for _, c := range v.p.Categories {
		out = append(out, c.View())
	}
	return out
}

func (v productView) Tags() []plugin.Tag {
	out := make([]plugin.Tag, 0, len(v.p.Tags))
	for _, t := range v.p.Tags {
		out = append(out, t.View())
	}
	return out
}

func (v productView) SetName(name string)         { v.p.Name = name }
func (v productView) SetPrice(price float64)      { v.p.Price = price }
func (v productView) SetQuantity(quantity int)    { v.p.Quantity = quantity }
func (v productView) SetPublished(published bool) { v.p.Published = published }

type tagView struct{ t *Tag }

func (v tagView) ID() int64       { return v.t.ID }
func (v tagView) Name() string    { return v.t.Name }
func (v tagView) Slug() string    { return v.t.Slug }
func (v tagView) Published() bool { return v.t.Published }

type categoryView struct{ c *Category }

func (v categoryView) ID() int64       { return v.c.ID }
func (v categoryView) Name() string    { return v.c.Name }
func (v categoryView) Slug() string    { return v.c.Slug }
func (v categoryView) ParentID() int64 { return v.c.ParentID }
func (v categoryView) Published() bool { return v.c.Published }

type brandView struct{ b *Brand }

func (v brandView) ID() int64    { return v.b.ID }
func (v brandView) Name() string { return v.b.Name }
