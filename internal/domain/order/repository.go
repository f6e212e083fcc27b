package order

import "context"

// Repository persists orders. Status only changes through CompareAndSwapStatus and Cancel.
type Repository interface {
	// Insert stores a new order. An existing id, or an existing (customer, idempotency key)
	// pair, yields ErrConflict.
	Insert(ctx context.Context, o *Order) error
	// Get returns ErrNotFound for unknown and cancelled ids.
	Get(ctx context.Context, id string) (*Order, error)
	// CompareAndSwapStatus moves the order from one status to another and reports
	// whether the swap happened. An unknown id yields ErrNotFound.
	CompareAndSwapStatus(ctx context.Context, id string, from, to Status, paymentConfirmed bool) (bool, error)
	// Cancel deletes the order if it is still in expected and records a tombstone.
	Cancel(ctx context.Context, id string, expected Status) (bool, error)
	// FindByIdempotency returns the live order placed by customerID under key.
	FindByIdempotency(ctx context.Context, customerID, key string) (*Order, error)
	// IsCancelled reports whether id has a tombstone.
	IsCancelled(ctx context.Context, id string) (bool, error)
	// ListByCustomer and List return orders newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	List(ctx context.Context) ([]*Order, error)
}
