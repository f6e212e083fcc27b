package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderCreatesSession(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1"}`)
	}))
	defer srv.Close()

	p := NewProvider(Config{SecretKey: "sk_test_123", BaseURL: srv.URL})
	s, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
		OrderID:  "o-1",
		Currency: "eur",
		Items: []payment.LineItem{
			{Name: "Margherita (extra cheese) [size: large]", UnitAmount: 950, Quantity: 2},
			{Name: "Delivery Charges", UnitAmount: 200, Quantity: 1},
		},
		SuccessURL: "https://shop.example/verify?success=true&orderId=o-1",
		CancelURL:  "https://shop.example/verify?success=false&orderId=o-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "https://checkout.example/cs_test_1", s.RedirectURL)

	assert.Equal(t, []string{"payment"}, form["mode"])
	assert.Equal(t, []string{"o-1"}, form["client_reference_id"])
	assert.Equal(t, []string{"o-1"}, form["metadata[order_id]"])
	assert.Equal(t, []string{"950"}, form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, []string{"2"}, form["line_items[0][quantity]"])
	assert.Equal(t, []string{"Delivery Charges"}, form["line_items[1][price_data][product_data][name]"])
}

func TestProviderDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, `{"error":{"type":"api_error","message":"down"}}`)
	}))
	defer srv.Close()

	p := NewProvider(Config{SecretKey: "sk_test_123", BaseURL: srv.URL})
	_, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
		OrderID:  "o-1",
		Currency: "eur",
		Items:    []payment.LineItem{{Name: "Cola", UnitAmount: 250, Quantity: 1}},
	})
	require.ErrorIs(t, err, payment.ErrProviderUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

const testSecret = "whsec_test"

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, eventType, object))
}

func TestWebhookParser(t *testing.T) {
	p := NewWebhookParser(testSecret)
	paid := `{"id":"cs_1","object":"checkout.session","client_reference_id":"o-1","payment_status":"paid"}`
	unpaid := `{"id":"cs_1","object":"checkout.session","client_reference_id":"o-1","payment_status":"unpaid"}`
	metaOnly := `{"id":"cs_1","object":"checkout.session","metadata":{"order_id":"o-2"}}`

	tests := []struct {
		name      string
		eventType string
		object    string
		orderID   string
		outcome   payment.Outcome
		wantErr   error
	}{
		{"completed and paid", "checkout.session.completed", paid, "o-1", payment.OutcomeSuccess, nil},
		{"completed but unpaid", "checkout.session.completed", unpaid, "", "", payment.ErrIgnoredCallback},
		{"async succeeded", "checkout.session.async_payment_succeeded", paid, "o-1", payment.OutcomeSuccess, nil},
		{"expired", "checkout.session.expired", metaOnly, "o-2", payment.OutcomeFailure, nil},
		{"async failed", "checkout.session.async_payment_failed", paid, "o-1", payment.OutcomeFailure, nil},
		{"unrelated", "customer.created", `{"id":"cus_1","object":"customer"}`, "", "", payment.ErrIgnoredCallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := eventPayload(tt.eventType, tt.object)
			cb, err := p.Parse(body, sign(body, testSecret, time.Now()))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "evt_1", cb.EventID)
			assert.Equal(t, tt.orderID, cb.OrderID)
			assert.Equal(t, tt.outcome, cb.Outcome)
		})
	}
}

func TestWebhookParserRejectsBadSignature(t *testing.T) {
	p := NewWebhookParser(testSecret)
	body := eventPayload("checkout.session.completed", `{"id":"cs_1","object":"checkout.session"}`)

	_, err := p.Parse(body, sign(body, "whsec_other", time.Now()))
	require.ErrorIs(t, err, payment.ErrUnverifiedCallback)

	_, err = p.Parse(body, sign(body, testSecret, time.Now().Add(-time.Hour)))
	require.ErrorIs(t, err, payment.ErrUnverifiedCallback)

	_, err = p.Parse(body, "")
	require.ErrorIs(t, err, payment.ErrUnverifiedCallback)
}
