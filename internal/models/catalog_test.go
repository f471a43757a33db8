package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductView(t *testing.T) {
	p := &Product{
		ID:       7,
		Name:     "Kettle",
		Price:    19.5,
		Quantity: 0,
		Brand:    &Brand{ID: 3, Name: "Acme"},
		Categories: []*Category{
			{ID: 1, Name: "Kitchen", Slug: "kitchen"},
		},
		Tags:   []*Tag{{ID: 9, Name: "Sale", Slug: "sale", Published: true}},
		Images: []string{"kettle.png"},
	}

	v := p.View()
	assert.Equal(t, int64(7), v.ID())
	assert.False(t, v.InStock())
	assert.Equal(t, "Acme", v.Brand().Name())
	assert.Equal(t, "kitchen", v.Categories()[0].Slug())
	assert.True(t, v.Tags()[0].Published())

	v.SetQuantity(4)
	v.SetName("Steel Kettle")
	v.SetPublished(true)
	assert.Equal(t, 4, p.Quantity)
	assert.Equal(t, "Steel Kettle", p.Name)
	assert.True(t, p.Published)
	assert.True(t, v.InStock())

	imgs := v.Images()
	imgs[0] = "changed.png"
	assert.Equal(t, "kettle.png", p.Images[0])
}

func TestProductViewNoBrand(t *testing.T) {
	v := (&Product{ID: 1}).View()
	assert.Nil(t, v.Brand())
	assert.Empty(t, v.Categories())
	assert.Empty(t, v.Tags())
}
