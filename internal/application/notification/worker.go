package notification

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domnotification "github.com/Zhima-Mochi/minishop-storefront/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	notificationWorker = "notification-worker"
	useCaseNotify      = "notification.order_placed"
	defaultSendTimeout = 10 * time.Second
)

// Worker sends an order confirmation for every order.placed event.
// Dispatch failures are logged and counted; they never reach the customer.
type Worker struct {
	subscriber domoutbox.Subscriber
	dispatcher domnotification.Dispatcher
	timeout    time.Duration

	ins *application.Instruments
}

func NewWorker(subscriber domoutbox.Subscriber, dispatcher domnotification.Dispatcher, obs observability.Observability) *Worker {
	return &Worker{
		subscriber: subscriber,
		dispatcher: dispatcher,
		timeout:    defaultSendTimeout,
		ins:        application.NewInstruments(obs, notificationWorker),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.dispatcher == nil {
		return
	}
	w.subscriber.Subscribe(domorder.PlacedEvent{}.EventName(), w.handleOrderPlaced)
}

func (w *Worker) handleOrderPlaced(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domorder.PlacedEvent)
	if !ok {
		return nil
	}

	ctx, run := w.ins.Start(ctx, useCaseNotify, "NotifyOrderPlaced",
		attribute.String("event", e.EventName()),
		attribute.String("order.id", evt.OrderID),
	)
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", evt.OrderID))

	if evt.Recipient == "" || evt.Order == nil {
		run.Note("NO_RECIPIENT")
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	sendErr := w.dispatcher.Send(sendCtx, evt.Recipient, evt.Order)
	w.ins.External("notifier", "send_order_confirmation", start, sendErr)
	if sendErr != nil {
		w.ins.SideEffectFailed("notification")
		run.Note("NOTIFICATION_FAILED")
		run.Span().RecordError(sendErr)
		run.Logger().Warn("notification_failed",
			observability.F("order_id", evt.OrderID),
			observability.Err(sendErr),
		)
	}
	return nil
}
