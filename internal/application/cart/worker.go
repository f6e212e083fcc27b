package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	cartWorker          = "cart-worker"
	useCaseClearRetry   = "cart.worker.clear_retry"
	defaultRetryAttempt = 3
	defaultRetryBackoff = 200 * time.Millisecond
)

// Worker retries removing ordered lines from a cart when that failed during order placement.
type Worker struct {
	store      domain.Store
	subscriber domoutbox.Subscriber
	ins        *application.Instruments

	attempts int
	backoff  time.Duration
}

type WorkerOption func(*Worker)

// WithRetry overrides the number of attempts and the linear backoff step.
func WithRetry(attempts int, backoff time.Duration) WorkerOption {
	return func(w *Worker) {
		if attempts > 0 {
			w.attempts = attempts
		}
		if backoff >= 0 {
			w.backoff = backoff
		}
	}
}

func NewWorker(store domain.Store, subscriber domoutbox.Subscriber, obs observability.Observability, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:      store,
		subscriber: subscriber,
		ins:        application.NewInstruments(obs, cartWorker),
		attempts:   defaultRetryAttempt,
		backoff:    defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.store == nil {
		return
	}
	w.subscriber.Subscribe(domain.ClearFailedEvent{}.EventName(), w.handleClearFailed)
}

func (w *Worker) handleClearFailed(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domain.ClearFailedEvent)
	if !ok {
		return nil
	}

	ctx, run := w.ins.Start(ctx, useCaseClearRetry, "RetryCartClear",
		attribute.String("event", e.EventName()),
		attribute.String("order.id", evt.OrderID),
		attribute.String("cart.customer_id", evt.CustomerID),
	)
	defer func() { run.End(err) }()
	run.With(
		observability.F("order_id", evt.OrderID),
		observability.F("customer_id", evt.CustomerID),
		observability.F("lines", len(evt.Lines)),
	)

	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err = w.store.Deduct(ctx, evt.CustomerID, evt.Lines); err == nil {
			run.With(observability.F("attempts", attempt))
			return nil
		}
		run.Logger().Warn("cart_clear_retry_failed",
			observability.F("attempt", attempt),
			observability.Err(err),
		)
		if attempt == w.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return run.Fail("CONTEXT_CANCELED", ctx.Err())
		case <-time.After(w.backoff * time.Duration(attempt)):
		}
	}

	w.ins.SideEffectFailed("cart_clear_retry")
	return run.Fail("CART_CLEAR_EXHAUSTED", fmt.Errorf("cart: clear after %d attempts: %w", w.attempts, err))
}
