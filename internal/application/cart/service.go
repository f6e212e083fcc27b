package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService     = "cart-service"
	useCaseAddItem  = "cart.add_item"
	useCaseRemove   = "cart.remove_item"
	useCaseGetCart  = "cart.get"
	useCaseClear    = "cart.clear"
	defaultDecrease = 1
)

// Service aggregates cart entries per customer on top of an atomic Store.
type Service struct {
	store   domain.Store
	catalog catalog.Catalog
	ins     *application.Instruments
}

func NewService(store domain.Store, cat catalog.Catalog, obs observability.Observability) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		ins:     application.NewInstruments(obs, cartService),
	}
}

type AddItemInput struct {
	CustomerID string
	ProductID  string
	Options    []string
	Quantity   int
}

// AddItem increments the entry for (product, option set) by Quantity, creating it when absent.
func (s *Service) AddItem(ctx context.Context, in AddItemInput) (_ domain.Entry, err error) {
	ctx, run := s.ins.Start(ctx, useCaseAddItem, "AddItem",
		attribute.String("cart.customer_id", in.CustomerID),
		attribute.String("cart.product_id", in.ProductID),
		attribute.Int("cart.quantity", in.Quantity),
	)
	defer func() { run.End(err) }()

	if in.CustomerID == "" || in.ProductID == "" {
		return domain.Entry{}, run.Fail("ID_REQUIRED", application.Invalid(domain.ErrInvalidEntry))
	}
	if in.Quantity < 1 {
		return domain.Entry{}, run.Fail("QUANTITY_INVALID", application.Invalid(domain.ErrInvalidQuantity))
	}

	product, err := s.catalog.GetProduct(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return domain.Entry{}, run.Fail("PRODUCT_NOT_FOUND", application.Invalid(err))
		}
		return domain.Entry{}, run.Fail("CATALOG_LOOKUP_FAILED", wrapStoreError(err))
	}
	if err := product.ValidateOptions(in.Options); err != nil {
		return domain.Entry{}, run.Fail("OPTION_INVALID", application.Invalid(err))
	}

	entry := domain.NewEntry(in.ProductID, in.Options, in.Quantity)
	updated, err := s.store.Increment(ctx, in.CustomerID, entry, in.Quantity)
	if err != nil {
		return domain.Entry{}, run.Fail("STORE_INCREMENT_FAILED", wrapStoreError(err))
	}

	run.Span().SetAttributes(attribute.String("cart.key", string(updated.Key)))
	run.With(
		observability.F("cart_key", string(updated.Key)),
		observability.F("quantity", updated.Quantity),
	)
	return updated, nil
}

type RemoveItemInput struct {
	CustomerID string
	// Key addresses the entry directly; when empty it is built from ProductID and Options.
	Key         domain.Key
	ProductID   string
	Options     []string
	DecrementBy int
}

// RemoveItem lowers an entry's quantity and deletes it once it reaches zero.
// Removing an absent entry succeeds with a remaining quantity of zero.
func (s *Service) RemoveItem(ctx context.Context, in RemoveItemInput) (_ int, err error) {
	key := in.Key
	if key == "" && in.ProductID != "" {
		key = domain.BuildKey(in.ProductID, in.Options)
	}

	ctx, run := s.ins.Start(ctx, useCaseRemove, "RemoveItem",
		attribute.String("cart.customer_id", in.CustomerID),
		attribute.String("cart.key", string(key)),
	)
	defer func() { run.End(err) }()

	if in.CustomerID == "" || key == "" {
		return 0, run.Fail("ID_REQUIRED", application.NewValidation("customer id and item key are required"))
	}
	if in.DecrementBy < defaultDecrease {
		return 0, run.Fail("DECREMENT_INVALID", application.Invalid(domain.ErrInvalidQuantity))
	}

	remaining, err := s.store.Decrement(ctx, in.CustomerID, key, in.DecrementBy)
	if err != nil {
		return 0, run.Fail("STORE_DECREMENT_FAILED", wrapStoreError(err))
	}
	if remaining == 0 {
		run.Note("ENTRY_REMOVED")
	}
	run.With(observability.F("remaining", remaining))
	return remaining, nil
}

// GetCart returns the customer's cart, empty when nothing was added.
func (s *Service) GetCart(ctx context.Context, customerID string) (_ *domain.Cart, err error) {
	ctx, run := s.ins.Start(ctx, useCaseGetCart, "GetCart",
		attribute.String("cart.customer_id", customerID),
	)
	defer func() { run.End(err) }()

	if customerID == "" {
		return nil, run.Fail("CUSTOMER_ID_REQUIRED", application.NewValidation("customer id is required"))
	}
	c, err := s.store.Get(ctx, customerID)
	if err != nil {
		return nil, run.Fail("STORE_GET_FAILED", wrapStoreError(err))
	}
	run.With(observability.F("entries", len(c.Entries)))
	return c, nil
}

// Clear empties the cart. It is reserved for order placement and its retry worker.
func (s *Service) Clear(ctx context.Context, customerID string) (err error) {
	ctx, run := s.ins.Start(ctx, useCaseClear, "ClearCart",
		attribute.String("cart.customer_id", customerID),
	)
	defer func() { run.End(err) }()

	if customerID == "" {
		return run.Fail("CUSTOMER_ID_REQUIRED", application.NewValidation("customer id is required"))
	}
	if err := s.store.Clear(ctx, customerID); err != nil {
		return run.Fail("STORE_CLEAR_FAILED", wrapStoreError(err))
	}
	return nil
}

func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", application.ErrPersistence, err)
}
