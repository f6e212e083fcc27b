package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/google/uuid"
)

// PaymentProvider simulates a hosted checkout by redirecting straight to the
// success URL. It lets the storefront run end to end without provider keys.
type PaymentProvider struct{}

func NewPaymentProvider() PaymentProvider { return PaymentProvider{} }

func (PaymentProvider) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, errors.New("payment: checkout needs at least one line item")
	}
	return &payment.Session{
		ID:          fmt.Sprintf("cs_sim_%s", uuid.NewString()),
		RedirectURL: req.SuccessURL,
	}, nil
}
