package order

import (
	"context"

	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
)

type IDGenerator interface {
	NewID() string
}

// CartPort is the slice of the cart store placement needs: a snapshot, and
// removal of exactly the quantities that were ordered.
type CartPort interface {
	Get(ctx context.Context, customerID string) (*domcart.Cart, error)
	Deduct(ctx context.Context, customerID string, lines map[domcart.Key]int) error
}

// StoreGate reports whether the storefront currently accepts orders.
type StoreGate interface {
	IsOpen() bool
}
