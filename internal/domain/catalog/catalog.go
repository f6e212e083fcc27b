package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("catalog: product not found")
	ErrUnknownOption     = errors.New("catalog: option not offered for product")
	ErrMissingSelection  = errors.New("catalog: required selection missing")
	ErrInvalidSelection  = errors.New("catalog: selection is not one of the group's choices")
	ErrUnknownGroup      = errors.New("catalog: selection for unknown group")
	ErrNegativeUnitPrice = errors.New("catalog: unit price must be zero or greater")
	ErrPricePrecision    = errors.New("catalog: price has more than two decimal places")
)

// PriceScale is the number of decimal places a price may carry.
const PriceScale = 2

// Option is an add-on with a surcharge, e.g. "extra cheese" for 1.50.
type Option struct {
	Name  string
	Price decimal.Decimal
}

// RequiredGroup is a variant choice the customer must make, e.g. size: small|large.
type RequiredGroup struct {
	Name    string
	Choices []string
}

type Product struct {
	ID             string
	Name           string
	Description    string
	Category       string
	Price          decimal.Decimal
	Options        []Option
	RequiredGroups []RequiredGroup
}

// Catalog resolves menu products by id.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}

func (p *Product) option(name string) (Option, bool) {
	for _, o := range p.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// ValidateOptions reports an error wrapping ErrUnknownOption for the first option the product does not offer.
func (p *Product) ValidateOptions(options []string) error {
	for _, name := range options {
		if _, ok := p.option(name); !ok {
			return fmt.Errorf("%w: %q on %s", ErrUnknownOption, name, p.ID)
		}
	}
	return nil
}

// ValidateSelections checks that every required group has exactly one valid choice
// and that no selection names a group the product does not define.
func (p *Product) ValidateSelections(selections map[string]string) error {
	groups := make(map[string]RequiredGroup, len(p.RequiredGroups))
	for _, g := range p.RequiredGroups {
		groups[g.Name] = g
	}
	for name := range selections {
		if _, ok := groups[name]; !ok {
			return fmt.Errorf("%w: %q on %s", ErrUnknownGroup, name, p.ID)
		}
	}
	for _, g := range p.RequiredGroups {
		choice, ok := selections[g.Name]
		if !ok || choice == "" {
			return fmt.Errorf("%w: %q on %s", ErrMissingSelection, g.Name, p.ID)
		}
		valid := false
		for _, c := range g.Choices {
			if c == choice {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("%w: %s=%q on %s", ErrInvalidSelection, g.Name, choice, p.ID)
		}
	}
	return nil
}

// UnitPrice is the base price plus the surcharge of every selected option.
func (p *Product) UnitPrice(options []string) (decimal.Decimal, error) {
	price := p.Price
	for _, name := range options {
		o, ok := p.option(name)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %q on %s", ErrUnknownOption, name, p.ID)
		}
		price = price.Add(o.Price)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativeUnitPrice, p.ID)
	}
	if !price.Equal(price.Round(PriceScale)) {
		return decimal.Zero, fmt.Errorf("%w: %s costs %s", ErrPricePrecision, p.ID, price)
	}
	return price, nil
}

// GroupNames returns the required group names in lexical order.
func (p *Product) GroupNames() []string {
	names := make([]string, 0, len(p.RequiredGroups))
	for _, g := range p.RequiredGroups {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}
