package notification

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
)

// Dispatcher delivers an order confirmation. Callers treat its errors as non-fatal.
type Dispatcher interface {
	Send(ctx context.Context, recipient string, snapshot *order.Order) error
}
