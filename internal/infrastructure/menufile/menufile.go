// Package menufile loads the read-only product catalog from a YAML document.
//
//	products:
//	  - id: pizza
//	    name: Margherita
//	    price: "8.00"
//	    options:
//	      - { name: extra cheese, price: "1.50" }
//	    required:
//	      - { name: size, choices: [small, large] }
package menufile

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type document struct {
	Products []productDTO `yaml:"products"`
}

type productDTO struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Category    string        `yaml:"category"`
	Price       string        `yaml:"price"`
	Options     []optionDTO   `yaml:"options"`
	Required    []requiredDTO `yaml:"required"`
}

type optionDTO struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

type requiredDTO struct {
	Name    string   `yaml:"name"`
	Choices []string `yaml:"choices"`
}

// Load reads and validates the menu file at path.
func Load(path string) ([]catalog.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("menufile: open %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a menu document. Prices are decimal strings so no float rounding leaks in.
func Decode(r io.Reader) ([]catalog.Product, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("menufile: decode: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Products))
	out := make([]catalog.Product, 0, len(doc.Products))
	for i, p := range doc.Products {
		product, err := p.toDomain()
		if err != nil {
			return nil, fmt.Errorf("menufile: product %d: %w", i, err)
		}
		if _, dup := seen[product.ID]; dup {
			return nil, fmt.Errorf("menufile: duplicate product id %q", product.ID)
		}
		seen[product.ID] = struct{}{}
		out = append(out, product)
	}
	return out, nil
}

func (p productDTO) toDomain() (catalog.Product, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return catalog.Product{}, fmt.Errorf("id is required")
	}
	price, err := parsePrice(p.Price)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("%s: price: %w", id, err)
	}

	product := catalog.Product{
		ID:          id,
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		Category:    p.Category,
		Price:       price,
	}
	if product.Name == "" {
		product.Name = id
	}
	for _, o := range p.Options {
		op, err := parsePrice(o.Price)
		if err != nil {
			return catalog.Product{}, fmt.Errorf("%s: option %q: %w", id, o.Name, err)
		}
		product.Options = append(product.Options, catalog.Option{Name: o.Name, Price: op})
	}
	for _, g := range p.Required {
		if g.Name == "" || len(g.Choices) == 0 {
			return catalog.Product{}, fmt.Errorf("%s: required group needs a name and choices", id)
		}
		product.RequiredGroups = append(product.RequiredGroups, catalog.RequiredGroup{
			Name:    g.Name,
			Choices: append([]string(nil), g.Choices...),
		})
	}
	return product, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must be zero or greater, got %s", raw)
	}
	if !d.Equal(d.Round(catalog.PriceScale)) {
		return decimal.Zero, fmt.Errorf("%w, got %s", catalog.ErrPricePrecision, raw)
	}
	return d, nil
}
