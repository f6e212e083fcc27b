package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrProviderUnavailable = errors.New("payment: provider unavailable")
	// ErrUnverifiedCallback marks a notification whose signature does not check out.
	ErrUnverifiedCallback = errors.New("payment: callback signature invalid")
	// ErrIgnoredCallback marks a verified notification that settles no payment.
	ErrIgnoredCallback = errors.New("payment: callback ignored")
)

// Outcome is what the provider reports for a checkout session.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// OutcomeFromFlag maps the redirect callback's success flag.
func OutcomeFromFlag(success bool) Outcome {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// LineItem is one checkout line priced in minor units.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	OrderID       string
	Currency      string
	Items         []LineItem
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

type Session struct {
	ID          string
	RedirectURL string
}

// Provider starts hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
}

// Callback is a verified provider notification resolved to an order outcome.
type Callback struct {
	EventID string
	Type    string
	OrderID string
	Outcome Outcome
}

// CallbackParser verifies and decodes provider notifications.
type CallbackParser interface {
	Parse(payload []byte, signature string) (Callback, error)
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts an amount to the provider's smallest currency unit, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
