package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

// Notifier records order confirmations instead of mailing them. It is the
// dispatcher used when no mail provider is configured.
type Notifier struct {
	mu   sync.Mutex
	sent []SentNotification
	log  observability.Logger
}

type SentNotification struct {
	Recipient string
	OrderID   string
}

func NewNotifier(log observability.Logger) *Notifier {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Notifier{log: log.With(observability.F("component", "notifier"))}
}

func (n *Notifier) Send(ctx context.Context, recipient string, snapshot *order.Order) error {
	n.mu.Lock()
	n.sent = append(n.sent, SentNotification{Recipient: recipient, OrderID: snapshot.ID})
	n.mu.Unlock()

	logctx.FromOr(ctx, n.log).Info("order_confirmation_recorded",
		observability.F("order_id", snapshot.ID),
		observability.F("amount", snapshot.Amount.StringFixed(2)),
	)
	return nil
}

func (n *Notifier) Sent() []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentNotification(nil), n.sent...)
}
