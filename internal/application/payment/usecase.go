package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService       = "payment-service"
	useCasePaymentVerify = "payment.verify"
	maxCASAttempts       = 3
	publishTimeout       = 300 * time.Millisecond
)

type VerifyPaymentInput struct {
	OrderID string
	// CustomerID, when set, restricts the call to that customer's orders. Other
	// orders, and cancelled ones whose owner is no longer known, read as not found.
	CustomerID string
	Outcome    dompayment.Outcome
	// Source names the callback channel, e.g. "redirect" or "webhook".
	Source string
	// Trusted marks an outcome the provider vouched for, such as a signed webhook.
	// An untrusted success never marks the order paid; it reports the current status.
	Trusted bool
}

type VerifyPaymentResult struct {
	OrderID string
	Status  domorder.Status
	// Changed is false when the outcome had already been applied.
	Changed bool
}

// VerifyPaymentUseCase finalizes an order once the provider reports an outcome.
// Repeated callbacks with the same outcome are no-ops. Only trusted callbacks can
// mark an order paid; any callback may cancel a Processing order.
type VerifyPaymentUseCase struct {
	repo      domorder.Repository
	publisher domoutbox.Publisher
	now       func() time.Time

	ins *application.Instruments
}

var _ application.UseCase[VerifyPaymentInput, *VerifyPaymentResult] = (*VerifyPaymentUseCase)(nil)

func NewVerifyPaymentUseCase(repo domorder.Repository, publisher domoutbox.Publisher, obs observability.Observability) *VerifyPaymentUseCase {
	return &VerifyPaymentUseCase{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		ins:       application.NewInstruments(obs, paymentService),
	}
}

func (uc *VerifyPaymentUseCase) Execute(ctx context.Context, cmd VerifyPaymentInput) (_ *VerifyPaymentResult, err error) {
	ctx, run := uc.ins.Start(ctx, useCasePaymentVerify, "VerifyPayment",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.outcome", string(cmd.Outcome)),
		attribute.String("payment.source", cmd.Source),
		attribute.Bool("payment.trusted", cmd.Trusted),
	)
	defer func() { run.End(err) }()
	run.With(
		observability.F("order_id", cmd.OrderID),
		observability.F("payment_outcome", string(cmd.Outcome)),
		observability.F("source", cmd.Source),
	)

	if cmd.OrderID == "" {
		return nil, run.Fail("ORDER_ID_REQUIRED", application.NewValidation("order id is required"))
	}
	if !cmd.Outcome.Valid() {
		return nil, run.Fail("OUTCOME_INVALID", application.NewValidation(fmt.Sprintf("unknown outcome %q", cmd.Outcome)))
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, run.Fail("CONTEXT_CANCELED", err)
		}

		current, err := uc.load(ctx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, application.ErrNotFound) {
				return nil, run.Fail("ORDER_NOT_FOUND", err)
			}
			return nil, run.Fail("ORDER_LOAD_FAILED", err)
		}

		if cmd.CustomerID != "" && current.CustomerID != cmd.CustomerID {
			return nil, run.Fail("ORDER_NOT_FOUND",
				fmt.Errorf("%w: order %s: %w", application.ErrNotFound, cmd.OrderID, domorder.ErrNotFound))
		}

		from := current.Status
		var transition domorder.Transition
		if cmd.Outcome == dompayment.OutcomeSuccess {
			transition, err = current.PaymentSucceeded(uc.now())
		} else {
			transition, err = current.PaymentFailed(uc.now())
		}
		if err != nil {
			run.With(observability.F("order_status", string(from)))
			return nil, run.Fail("STATE_TRANSITION_INVALID",
				fmt.Errorf("%w: %s on %s order: %w", application.ErrConflict, cmd.Outcome, from, err))
		}

		var applied bool
		switch transition {
		case domorder.TransitionNone:
			run.Note("ALREADY_APPLIED")
			return &VerifyPaymentResult{OrderID: cmd.OrderID, Status: from}, nil
		case domorder.TransitionMarkPaid:
			if !cmd.Trusted {
				run.Note("SUCCESS_AWAITS_CONFIRMATION")
				return &VerifyPaymentResult{OrderID: cmd.OrderID, Status: from}, nil
			}
			applied, err = uc.repo.CompareAndSwapStatus(ctx, cmd.OrderID, from, domorder.StatusPaid, true)
		case domorder.TransitionCancel:
			applied, err = uc.repo.Cancel(ctx, cmd.OrderID, from)
		}
		if err != nil && !errors.Is(err, domorder.ErrNotFound) {
			return nil, run.Fail("REPO_TRANSITION_FAILED", fmt.Errorf("%w: %w", application.ErrPersistence, err))
		}
		if !applied {
			run.Span().AddEvent("payment.cas_retry",
				trace.WithAttributes(attribute.Int("attempt", attempt)),
			)
			continue
		}

		run.Span().SetAttributes(attribute.String("order.status", string(current.Status)))
		run.With(
			observability.F("transition", transition.String()),
			observability.F("attempts", attempt),
		)
		uc.publishTransition(ctx, run, transition, current)
		return &VerifyPaymentResult{OrderID: cmd.OrderID, Status: current.Status, Changed: true}, nil
	}

	return nil, run.Fail("CAS_RETRIES_EXHAUSTED",
		fmt.Errorf("%w: order %s changed concurrently %d times", application.ErrConflict, cmd.OrderID, maxCASAttempts))
}

// load returns the live order, or a Cancelled stand-in when only its tombstone remains.
func (uc *VerifyPaymentUseCase) load(ctx context.Context, id string) (*domorder.Order, error) {
	o, err := uc.repo.Get(ctx, id)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, domorder.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", application.ErrPersistence, err)
	}
	cancelled, cerr := uc.repo.IsCancelled(ctx, id)
	if cerr != nil {
		return nil, fmt.Errorf("%w: %w", application.ErrPersistence, cerr)
	}
	if !cancelled {
		return nil, fmt.Errorf("%w: %w", application.ErrNotFound, err)
	}
	return &domorder.Order{ID: id, Status: domorder.StatusCancelled}, nil
}

func (uc *VerifyPaymentUseCase) publishTransition(ctx context.Context, run *application.Run, t domorder.Transition, o *domorder.Order) {
	if uc.publisher == nil {
		return
	}
	var evt domoutbox.Event
	switch t {
	case domorder.TransitionMarkPaid:
		evt = domorder.NewPaidEvent(o, uc.now())
	case domorder.TransitionCancel:
		evt = domorder.NewCancelledEvent(o, uc.now())
	default:
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
