package order

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService          = "order-service"
	useCaseOrderPlace     = "order.place"
	providerPeer          = "payment_provider"
	checkoutOperation     = "create_checkout_session"
	publishTimeout        = 300 * time.Millisecond
	defaultCheckoutWindow = 10 * time.Second
	deliveryLineName      = "Delivery Charges"
)

// CheckoutConfig controls how checkout sessions are requested.
type CheckoutConfig struct {
	Currency string
	// FrontendURL is the storefront origin the provider redirects back to.
	FrontendURL string
	Timeout     time.Duration
}

// PlaceOrderUseCase turns a customer's cart into a persisted order and starts checkout.
type PlaceOrderUseCase struct {
	carts       CartPort
	catalog     catalog.Catalog
	repo        domain.Repository
	provider    payment.Provider
	publisher   domoutbox.Publisher
	gate        StoreGate
	idGenerator IDGenerator
	cfg         CheckoutConfig
	now         func() time.Time

	ins *application.Instruments
}

var _ application.UseCase[PlaceOrderInput, *PlaceOrderResult] = (*PlaceOrderUseCase)(nil)

func NewPlaceOrderUseCase(
	carts CartPort,
	cat catalog.Catalog,
	repo domain.Repository,
	provider payment.Provider,
	publisher domoutbox.Publisher,
	gate StoreGate,
	idGen IDGenerator,
	cfg CheckoutConfig,
	obs observability.Observability,
) *PlaceOrderUseCase {
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCheckoutWindow
	}
	return &PlaceOrderUseCase{
		carts:       carts,
		catalog:     cat,
		repo:        repo,
		provider:    provider,
		publisher:   publisher,
		gate:        gate,
		idGenerator: idGen,
		cfg:         cfg,
		now:         time.Now,
		ins:         application.NewInstruments(obs, orderService),
	}
}

type PlaceOrderInput struct {
	IdempotencyKey string
	CustomerID     string
	Address        domain.Address
	DeliveryFee    decimal.Decimal
	// Selections holds the required variant choices per cart entry: key -> group -> choice.
	Selections map[domcart.Key]map[string]string
	// ExpectedAmount, when set, must equal the computed total or placement is rejected.
	ExpectedAmount *decimal.Decimal
}

type PlaceOrderResult struct {
	OrderID     string
	Status      domain.Status
	Amount      decimal.Decimal
	RedirectURL string
	Replayed    bool
}

// Execute runs placement. A provider failure returns both a result carrying the
// persisted order id and an error wrapping application.ErrProvider.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	ctx, run := uc.ins.Start(ctx, useCaseOrderPlace, "PlaceOrder",
		attribute.String("order.customer_id", cmd.CustomerID),
	)
	defer func() { run.End(err) }()
	span := run.Span()

	if uc.gate != nil && !uc.gate.IsOpen() {
		return nil, run.Fail("STORE_CLOSED", application.ErrStoreClosed)
	}
	if cmd.CustomerID == "" {
		return nil, run.Fail("CUSTOMER_ID_REQUIRED", application.Invalid(domain.ErrMissingCustomer))
	}
	if cmd.DeliveryFee.IsNegative() {
		return nil, run.Fail("DELIVERY_FEE_INVALID", application.Invalid(domain.ErrInvalidDeliveryFee))
	}
	if err := ctx.Err(); err != nil {
		return nil, run.Fail("CONTEXT_CANCELED", err)
	}

	if cmd.IdempotencyKey != "" {
		existing, repoErr := uc.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey)
		switch {
		case repoErr == nil:
			run.Note("IDEMPOTENT_REPLAY")
			run.With(observability.F("order_id", existing.ID))
			span.AddEvent("order.idempotent_replay",
				trace.WithAttributes(attribute.String("order.id", existing.ID)),
			)
			return uc.replay(ctx, run, existing)
		case errors.Is(repoErr, domain.ErrNotFound):
			// continue
		default:
			return nil, run.Fail("IDEMPOTENCY_LOOKUP_FAILED", wrapRepositoryError(repoErr))
		}
	}

	snapshot, err := uc.carts.Get(ctx, cmd.CustomerID)
	if err != nil {
		return nil, run.Fail("CART_LOAD_FAILED", fmt.Errorf("%w: %w", application.ErrPersistence, err))
	}
	if snapshot.IsEmpty() {
		return nil, run.Fail("CART_EMPTY", application.Invalid(domain.ErrEmptyOrder))
	}

	items, err := uc.priceLines(ctx, snapshot, cmd.Selections)
	if err != nil {
		return nil, run.Fail("LINE_ITEM_INVALID", err)
	}

	orderID := uc.idGenerator.NewID()
	entity, derr := domain.New(orderID, cmd.CustomerID, items, cmd.DeliveryFee, cmd.Address, uc.now())
	if derr != nil {
		return nil, run.Fail("DOMAIN_CONSTRUCTION_FAILED", application.Invalid(derr))
	}
	entity.IdempotencyKey = cmd.IdempotencyKey
	if cmd.ExpectedAmount != nil && !cmd.ExpectedAmount.Equal(entity.Amount) {
		return nil, run.Fail("AMOUNT_MISMATCH", application.NewValidation(
			fmt.Sprintf("expected amount %s does not match computed %s", cmd.ExpectedAmount.StringFixed(2), entity.Amount.StringFixed(2)),
		))
	}
	if err := ctx.Err(); err != nil {
		return nil, run.Fail("CONTEXT_CANCELED", err)
	}

	if err := uc.repo.Insert(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) && cmd.IdempotencyKey != "" {
			if existing, lookupErr := uc.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey); lookupErr == nil {
				run.Note("IDEMPOTENT_REPLAY")
				run.With(observability.F("order_id", existing.ID))
				return uc.replay(ctx, run, existing)
			}
		}
		return nil, run.Fail("REPO_INSERT_FAILED", wrapRepositoryError(err))
	}
	run.With(
		observability.F("order_id", entity.ID),
		observability.F("amount", entity.Amount.StringFixed(2)),
		observability.F("line_items", len(entity.Items)),
	)
	span.SetAttributes(
		attribute.String("order.id", entity.ID),
		attribute.String("order.amount", entity.Amount.StringFixed(2)),
	)

	uc.removeOrderedLines(ctx, run, entity)

	result := &PlaceOrderResult{
		OrderID: entity.ID,
		Status:  entity.Status,
		Amount:  entity.Amount,
	}

	session, providerErr := uc.startCheckout(ctx, entity)
	if providerErr == nil {
		result.RedirectURL = session.RedirectURL
		span.AddEvent("checkout.session_created",
			trace.WithAttributes(attribute.String("checkout.session_id", session.ID)),
		)
	}

	uc.publish(ctx, run, domain.NewPlacedEvent(entity, uc.now()))

	if providerErr != nil {
		return result, run.Fail("CHECKOUT_SESSION_FAILED", fmt.Errorf("%w: %w", application.ErrProvider, providerErr))
	}
	return result, nil
}

// priceLines resolves every cart entry against the catalog and freezes its price.
func (uc *PlaceOrderUseCase) priceLines(ctx context.Context, c *domcart.Cart, selections map[domcart.Key]map[string]string) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(c.Entries))
	for _, key := range c.Keys() {
		entry := c.Entries[key]
		product, err := uc.catalog.GetProduct(ctx, entry.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, application.Invalid(fmt.Errorf("%w: %s: %w", domain.ErrInvalidLineItem, key, err))
			}
			return nil, fmt.Errorf("%w: catalog: %w", application.ErrPersistence, err)
		}
		chosen := selections[key]
		if err := product.ValidateSelections(chosen); err != nil {
			return nil, application.Invalid(fmt.Errorf("%w: %s: %w", domain.ErrInvalidLineItem, key, err))
		}
		unit, err := product.UnitPrice(entry.Options)
		if err != nil {
			return nil, application.Invalid(fmt.Errorf("%w: %s: %w", domain.ErrInvalidLineItem, key, err))
		}

		var required map[string]string
		if len(chosen) > 0 {
			required = make(map[string]string, len(chosen))
			for g, v := range chosen {
				required[g] = v
			}
		}
		items = append(items, domain.LineItem{
			Key:                string(key),
			ProductID:          entry.ProductID,
			DisplayName:        product.Name,
			Options:            append([]string(nil), entry.Options...),
			RequiredSelections: required,
			Quantity:           entry.Quantity,
			UnitPrice:          unit,
		})
	}
	return items, nil
}

// removeOrderedLines takes the ordered quantities out of the cart. Entries added
// after the snapshot stay in the cart.
func (uc *PlaceOrderUseCase) removeOrderedLines(ctx context.Context, run *application.Run, o *domain.Order) {
	lines := orderedLines(o)
	err := uc.carts.Deduct(ctx, o.CustomerID, lines)
	if err == nil {
		return
	}
	uc.ins.SideEffectFailed("cart_clear")
	run.Note("CART_CLEAR_FAILED")
	run.Span().RecordError(err)
	run.Logger().Warn("cart_clear_failed",
		observability.F("order_id", o.ID),
		observability.Err(err),
	)
	uc.publish(ctx, run, domcart.ClearFailedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Lines:      lines,
		Reason:     err.Error(),
		Attempt:    1,
		OccurredAt: uc.now().UTC(),
	})
}

func orderedLines(o *domain.Order) map[domcart.Key]int {
	lines := make(map[domcart.Key]int, len(o.Items))
	for _, li := range o.Items {
		lines[domcart.Key(li.Key)] += li.Quantity
	}
	return lines
}

func (uc *PlaceOrderUseCase) startCheckout(ctx context.Context, o *domain.Order) (*payment.Session, error) {
	if uc.provider == nil {
		return nil, payment.ErrProviderUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	start := time.Now()
	session, err := uc.provider.CreateCheckoutSession(ctx, uc.checkoutRequest(o))
	uc.ins.External(providerPeer, checkoutOperation, start, err)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (uc *PlaceOrderUseCase) checkoutRequest(o *domain.Order) payment.CheckoutRequest {
	lines := make([]payment.LineItem, 0, len(o.Items)+1)
	for _, li := range o.Items {
		lines = append(lines, payment.LineItem{
			Name:       li.CheckoutName(),
			UnitAmount: payment.MinorUnits(li.UnitPrice),
			Quantity:   int64(li.Quantity),
		})
	}
	if o.DeliveryFee.IsPositive() {
		lines = append(lines, payment.LineItem{
			Name:       deliveryLineName,
			UnitAmount: payment.MinorUnits(o.DeliveryFee),
			Quantity:   1,
		})
	}
	return payment.CheckoutRequest{
		OrderID:       o.ID,
		Currency:      uc.cfg.Currency,
		Items:         lines,
		SuccessURL:    verifyURL(uc.cfg.FrontendURL, true, o.ID),
		CancelURL:     verifyURL(uc.cfg.FrontendURL, false, o.ID),
		CustomerEmail: o.Address.Email,
	}
}

func verifyURL(frontend string, success bool, orderID string) string {
	return fmt.Sprintf("%s/verify?success=%t&orderId=%s", strings.TrimRight(frontend, "/"), success, url.QueryEscape(orderID))
}

func (uc *PlaceOrderUseCase) publish(ctx context.Context, run *application.Run, evt domoutbox.Event) {
	if uc.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := uc.publisher.Publish(pubCtx, evt); err != nil {
		uc.ins.SideEffectFailed("event_publish")
		run.Span().RecordError(err)
		run.Logger().Warn("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.Err(err),
		)
	}
}

// replay answers a repeated placement with the stored order. An order still
// awaiting payment gets a fresh checkout session so the caller can pay, including
// after the first attempt failed at the provider.
func (uc *PlaceOrderUseCase) replay(ctx context.Context, run *application.Run, o *domain.Order) (*PlaceOrderResult, error) {
	result := &PlaceOrderResult{
		OrderID:  o.ID,
		Status:   o.Status,
		Amount:   o.Amount,
		Replayed: true,
	}
	if o.Status != domain.StatusProcessing {
		return result, nil
	}

	session, err := uc.startCheckout(ctx, o)
	if err != nil {
		return result, run.Fail("CHECKOUT_SESSION_FAILED", fmt.Errorf("%w: %w", application.ErrProvider, err))
	}
	result.RedirectURL = session.RedirectURL
	run.Span().AddEvent("checkout.session_created",
		trace.WithAttributes(attribute.String("checkout.session_id", session.ID)),
	)
	return result, nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%w: %w", application.ErrNotFound, err)
	case errors.Is(err, domain.ErrConflict):
		return fmt.Errorf("%w: %w", application.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", application.ErrPersistence, err)
	}
}
