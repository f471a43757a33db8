package plugin

// Product is the view of a catalog product that extensions work with.
// The host's domain models provide it through their View methods.
type Product interface {
	ID() int64
	Name() string
	Code() string
	Description() string
	Price() float64
	Quantity() int
	InStock() bool
	Published() bool
	Condition() string
	Brand() Brand // nil when the product has no brand
	Categories() []Category
	Tags() []Tag
	Images() []string

	SetName(name string)
	SetPrice(price float64)
	SetQuantity(quantity int)
	SetPublished(published bool)
}

// Tag is the view of a product tag.
type Tag interface {
	ID() int64
	Name() string
	Slug() string
	Published() bool
}

// Category is the view of a product category.
type Category interface {
	ID() int64
	Name() string
	Slug() string
	ParentID() int64 // zero for top-level categories
	Published() bool
}

// Brand is the view of a product brand.
type Brand interface {
	ID() int64
	Name() string
}
