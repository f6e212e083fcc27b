package cart

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be at least one")
	ErrInvalidEntry    = errors.New("cart: customer and product ids are required")
)

// Key identifies a product variant inside a cart. Two selections of the same
// product with the same option set, in any order, share a key.
type Key string

const (
	productSeparator = "-"
	optionSeparator  = ","
)

// BuildKey returns productID + "-" + the options sorted and joined by ",".
// The options slice is not modified.
func BuildKey(productID string, options []string) Key {
	sorted := append([]string(nil), options...)
	sort.Strings(sorted)
	return Key(productID + productSeparator + strings.Join(sorted, optionSeparator))
}

type Entry struct {
	Key       Key
	ProductID string
	Options   []string
	Quantity  int
}

// NewEntry builds an entry for productID with the given options and derives its key.
func NewEntry(productID string, options []string, quantity int) Entry {
	opts := append([]string(nil), options...)
	sort.Strings(opts)
	return Entry{
		Key:       BuildKey(productID, opts),
		ProductID: productID,
		Options:   opts,
		Quantity:  quantity,
	}
}

type Cart struct {
	CustomerID string
	Entries    map[Key]Entry
}

func New(customerID string) *Cart {
	return &Cart{CustomerID: customerID, Entries: make(map[Key]Entry)}
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Entries) == 0
}

// Keys returns the entry keys in lexical order so callers iterate deterministically.
func (c *Cart) Keys() []Key {
	if c == nil {
		return nil
	}
	keys := make([]Key, 0, len(c.Entries))
	for k := range c.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Quantity returns the accumulated quantity for key, or 0 if absent.
func (c *Cart) Quantity(key Key) int {
	if c == nil {
		return 0
	}
	return c.Entries[key].Quantity
}

// Quantities returns a key to quantity snapshot of the cart.
func (c *Cart) Quantities() map[Key]int {
	if c == nil {
		return nil
	}
	out := make(map[Key]int, len(c.Entries))
	for k, e := range c.Entries {
		out[k] = e.Quantity
	}
	return out
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := &Cart{CustomerID: c.CustomerID, Entries: make(map[Key]Entry, len(c.Entries))}
	for k, e := range c.Entries {
		e.Options = append([]string(nil), e.Options...)
		cp.Entries[k] = e
	}
	return cp
}

// Store persists carts. Increment and Decrement are atomic per (customerID, key).
type Store interface {
	// Increment adds delta to the entry, creating it when absent, and returns the updated entry.
	Increment(ctx context.Context, customerID string, entry Entry, delta int) (Entry, error)
	// Decrement subtracts delta and deletes the entry when it reaches zero.
	// It returns the remaining quantity; an absent entry yields 0 and no error.
	Decrement(ctx context.Context, customerID string, key Key, delta int) (int, error)
	// Get returns the cart, which is empty (never nil) when the customer has none.
	Get(ctx context.Context, customerID string) (*Cart, error)
	// Deduct subtracts each quantity in lines from its entry in one atomic step,
	// deleting entries that reach zero. Entries not named in lines, or added
	// after lines was taken, keep their quantity.
	Deduct(ctx context.Context, customerID string, lines map[Key]int) error
	Clear(ctx context.Context, customerID string) error
}
