package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookParser verifies Stripe-Signature headers and resolves checkout events
// to order outcomes.
type WebhookParser struct {
	secret string
}

func NewWebhookParser(secret string) *WebhookParser {
	return &WebhookParser{secret: secret}
}

// Parse returns payment.ErrUnverifiedCallback for unverifiable payloads and
// payment.ErrIgnoredCallback for events that do not settle a payment.
func (p *WebhookParser) Parse(payload []byte, signatureHeader string) (payment.Callback, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return payment.Callback{}, fmt.Errorf("%w: %w", payment.ErrUnverifiedCallback, err)
	}

	cb := payment.Callback{EventID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return cb, fmt.Errorf("%w: %s", payment.ErrIgnoredCallback, event.Type)
	}
	var cs stripego.CheckoutSession
	switch event.Type {
	case stripego.EventTypeCheckoutSessionCompleted,
		stripego.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripego.EventTypeCheckoutSessionExpired,
		stripego.EventTypeCheckoutSessionAsyncPaymentFailed:
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return cb, fmt.Errorf("stripe webhook: decode checkout session: %w", err)
		}
	default:
		return cb, fmt.Errorf("%w: %s", payment.ErrIgnoredCallback, event.Type)
	}

	switch event.Type {
	case stripego.EventTypeCheckoutSessionCompleted:
		// Delayed payment methods complete unpaid and settle with an async event later.
		if cs.PaymentStatus != stripego.CheckoutSessionPaymentStatusPaid {
			return cb, fmt.Errorf("%w: %s", payment.ErrIgnoredCallback, event.Type)
		}
		cb.Outcome = payment.OutcomeSuccess
	case stripego.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		cb.Outcome = payment.OutcomeSuccess
	default:
		cb.Outcome = payment.OutcomeFailure
	}

	cb.OrderID = cs.ClientReferenceID
	if cb.OrderID == "" {
		cb.OrderID = cs.Metadata[orderIDMetadataKey]
	}
	if cb.OrderID == "" {
		return cb, fmt.Errorf("stripe webhook: session %s has no order reference", cs.ID)
	}
	return cb, nil
}
