package memory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
)

// Catalog is a read-only product index, typically loaded from the menu file at startup.
type Catalog struct {
	products map[string]catalog.Product
}

func NewCatalog(products ...catalog.Product) *Catalog {
	c := &Catalog{products: make(map[string]catalog.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	_ = ctx
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	p.Options = append([]catalog.Option(nil), p.Options...)
	groups := make([]catalog.RequiredGroup, len(p.RequiredGroups))
	for i, g := range p.RequiredGroups {
		g.Choices = append([]string(nil), g.Choices...)
		groups[i] = g
	}
	p.RequiredGroups = groups
	return &p, nil
}

func (c *Catalog) Len() int { return len(c.products) }
