// Package stripe adapts Stripe Checkout to the payment port.
package stripe

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

const orderIDMetadataKey = "order_id"

type Config struct {
	SecretKey string
	// BaseURL overrides the API endpoint; tests point it at a local server.
	BaseURL string
}

// Provider creates hosted checkout sessions. Network retries are disabled:
// the caller bounds the call with a deadline and a retried session could
// double-charge if the first attempt reached Stripe.
type Provider struct {
	sessions session.Client
}

func NewProvider(cfg Config) *Provider {
	backendCfg := &stripego.BackendConfig{
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripego.String(cfg.BaseURL)
	}
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg)
	return &Provider{sessions: session.Client{B: backend, Key: cfg.SecretKey}}
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error) {
	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.OrderID),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(req.CustomerEmail)
	}
	for _, li := range req.Items {
		params.LineItems = append(params.LineItems, &stripego.CheckoutSessionLineItemParams{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency: stripego.String(req.Currency),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(li.Name),
				},
				UnitAmount: stripego.Int64(li.UnitAmount),
			},
			Quantity: stripego.Int64(li.Quantity),
		})
	}
	params.AddMetadata(orderIDMetadataKey, req.OrderID)
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe checkout session: %w", payment.ErrProviderUnavailable, err)
	}
	return &payment.Session{ID: s.ID, RedirectURL: s.URL}, nil
}
