// Package sendgrid sends order confirmations through the SendGrid v3 mail API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

const defaultBaseURL = "https://api.sendgrid.com"

type Config struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	// TemplateID selects a dynamic template; without one a plain-text summary is sent.
	TemplateID string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
	log        observability.Logger
}

func New(cfg Config, log observability.Logger) (*Dispatcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid: missing api key")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("sendgrid: missing from email")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if log == nil {
		log = observability.NopLogger()
	}
	return &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With(observability.F("client", "sendgrid")),
	}, nil
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To                  []address      `json:"to"`
	DynamicTemplateData map[string]any `json:"dynamic_template_data,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject,omitempty"`
	Content          []content         `json:"content,omitempty"`
	TemplateID       string            `json:"template_id,omitempty"`
	CustomArgs       map[string]string `json:"custom_args,omitempty"`
}

// Send mails the order confirmation to recipient.
func (d *Dispatcher) Send(ctx context.Context, recipient string, snapshot *order.Order) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return fmt.Errorf("sendgrid: recipient required")
	}
	if snapshot == nil {
		return fmt.Errorf("sendgrid: order snapshot required")
	}
	return d.do(ctx, d.buildRequest(recipient, snapshot))
}

func (d *Dispatcher) buildRequest(recipient string, o *order.Order) mailSendRequest {
	to := address{Email: recipient, Name: strings.TrimSpace(o.Address.FirstName + " " + o.Address.LastName)}
	req := mailSendRequest{
		From:       address{Email: d.cfg.FromEmail, Name: d.cfg.FromName},
		CustomArgs: map[string]string{"order_id": o.ID},
	}
	if d.cfg.TemplateID != "" {
		req.TemplateID = d.cfg.TemplateID
		req.Personalizations = []personalization{{To: []address{to}, DynamicTemplateData: templateData(o)}}
		return req
	}
	req.Personalizations = []personalization{{To: []address{to}}}
	req.Subject = "Order " + o.ID + " received"
	req.Content = []content{{Type: "text/plain", Value: summary(o)}}
	return req
}

func templateData(o *order.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, li := range o.Items {
		items = append(items, map[string]any{
			"name":       li.CheckoutName(),
			"quantity":   li.Quantity,
			"unit_price": li.UnitPrice.StringFixed(2),
			"subtotal":   li.Subtotal().StringFixed(2),
		})
	}
	return map[string]any{
		"order_id":     o.ID,
		"first_name":   o.Address.FirstName,
		"items":        items,
		"delivery_fee": o.DeliveryFee.StringFixed(2),
		"amount":       o.Amount.StringFixed(2),
	}
}

func summary(o *order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your order %s.\n\n", o.ID)
	for _, li := range o.Items {
		fmt.Fprintf(&b, "%d x %s  %s\n", li.Quantity, li.CheckoutName(), li.Subtotal().StringFixed(2))
	}
	if o.DeliveryFee.IsPositive() {
		fmt.Fprintf(&b, "Delivery  %s\n", o.DeliveryFee.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal  %s\n", o.Amount.StringFixed(2))
	return b.String()
}

type errorItem struct {
	Message string `json:"message"`
	Field   any    `json:"field,omitempty"`
}

type errorResponse struct {
	Errors []errorItem `json:"errors"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	Errors     []errorItem
}

func (e *HTTPError) Error() string {
	if len(e.Errors) > 0 && strings.TrimSpace(e.Errors[0].Message) != "" {
		return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Errors[0].Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 1000 {
		msg = msg[:1000] + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, msg)
}

func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func (d *Dispatcher) do(ctx context.Context, body mailSendRequest) error {
	backoff := d.cfg.Backoff
	for attempt := 0; ; attempt++ {
		err := d.doOnce(ctx, body)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= d.cfg.MaxRetries {
			return err
		}

		logctx.FromOr(ctx, d.log).Warn("sendgrid_request_retrying",
			observability.F("attempt", attempt+1),
			observability.F("max_retries", d.cfg.MaxRetries),
			observability.F("sleep", backoff.String()),
			observability.Err(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (d *Dispatcher) doOnce(ctx context.Context, body mailSendRequest) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/v3/mail/send", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 {
			he.Errors = er.Errors
		}
		return he
	}
	return nil
}
