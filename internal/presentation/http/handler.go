package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/storefront"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	componentHTTPHandler = "http_server"
	headerIdempotencyKey = "Idempotency-Key"
	headerStripeSig      = "Stripe-Signature"
	maxBodyBytes         = 1 << 20
	sourceRedirect       = "redirect"
	sourceWebhook        = "webhook"
)

// Deps are the services the HTTP surface drives. Webhooks and Metrics are optional.
type Deps struct {
	Carts      *appcart.Service
	PlaceOrder *apporder.PlaceOrderUseCase
	Orders     *apporder.QueryService
	Verify     *apppayment.VerifyPaymentUseCase
	Storefront *storefront.Status
	Webhooks   dompayment.CallbackParser
	Auth       *Authenticator
	Metrics    http.Handler
	Obs        observability.Observability
}

type Handler struct {
	deps      Deps
	log       observability.Logger
	requests  observability.Counter
	durations observability.Histogram
}

func NewHandler(deps Deps) *Handler {
	obs := observability.Or(deps.Obs)
	return &Handler{
		deps:      deps,
		log:       obs.Logger().With(observability.F("component", componentHTTPHandler)),
		requests:  obs.Metrics().Counter(observability.MHTTPRequests),
		durations: obs.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	customer := h.deps.Auth.RequireCustomer
	admin := h.deps.Auth.RequireAdmin

	h.handle(r, http.MethodPost, "/api/cart/add", customer(http.HandlerFunc(h.handleAddToCart)))
	h.handle(r, http.MethodPost, "/api/cart/remove", customer(http.HandlerFunc(h.handleRemoveFromCart)))
	h.handle(r, http.MethodGet, "/api/cart", customer(http.HandlerFunc(h.handleGetCart)))
	h.handle(r, http.MethodPost, "/api/order/place", customer(http.HandlerFunc(h.handlePlaceOrder)))
	h.handle(r, http.MethodGet, "/api/order/mine", customer(http.HandlerFunc(h.handleMyOrders)))
	h.handle(r, http.MethodPost, "/api/order/verify", customer(http.HandlerFunc(h.handleVerifyPayment)))
	if h.deps.Webhooks != nil {
		h.handle(r, http.MethodPost, "/webhooks/stripe", http.HandlerFunc(h.handleStripeWebhook))
	}
	h.handle(r, http.MethodGet, "/api/store-status", http.HandlerFunc(h.handleStoreStatus))
	h.handle(r, http.MethodPost, "/api/admin/store-status", admin(http.HandlerFunc(h.handleSetStoreStatus)))
	h.handle(r, http.MethodGet, "/api/admin/orders", admin(http.HandlerFunc(h.handleListOrders)))
	h.handle(r, http.MethodGet, "/health", http.HandlerFunc(h.handleHealth))
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics)
	}
	return r
}

func (h *Handler) handle(r chi.Router, method, route string, handler http.Handler) {
	r.Method(method, route, h.instrument(method, route, handler))
}

type addToCartRequest struct {
	ProductID string   `json:"product_id"`
	Options   []string `json:"options"`
	Quantity  int      `json:"quantity"`
}

type cartEntryResponse struct {
	Key       string   `json:"key"`
	ProductID string   `json:"product_id"`
	Options   []string `json:"options"`
	Quantity  int      `json:"quantity"`
}

func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	entry, err := h.deps.Carts.AddItem(r.Context(), appcart.AddItemInput{
		CustomerID: p.CustomerID,
		ProductID:  req.ProductID,
		Options:    req.Options,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartEntry(entry))
}

type removeFromCartRequest struct {
	Key         string   `json:"key"`
	ProductID   string   `json:"product_id"`
	Options     []string `json:"options"`
	DecrementBy int      `json:"decrement_by"`
}

type removeFromCartResponse struct {
	Key       string `json:"key"`
	Remaining int    `json:"remaining"`
}

func (h *Handler) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req removeFromCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DecrementBy == 0 {
		req.DecrementBy = 1
	}
	key := domcart.Key(req.Key)
	if key == "" && req.ProductID != "" {
		key = domcart.BuildKey(req.ProductID, req.Options)
	}

	remaining, err := h.deps.Carts.RemoveItem(r.Context(), appcart.RemoveItemInput{
		CustomerID:  p.CustomerID,
		Key:         key,
		DecrementBy: req.DecrementBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removeFromCartResponse{Key: string(key), Remaining: remaining})
}

type cartResponse struct {
	CustomerID string              `json:"customer_id"`
	Entries    []cartEntryResponse `json:"entries"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	c, err := h.deps.Carts.GetCart(r.Context(), p.CustomerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := cartResponse{CustomerID: c.CustomerID, Entries: make([]cartEntryResponse, 0, len(c.Entries))}
	for _, k := range c.Keys() {
		resp.Entries = append(resp.Entries, toCartEntry(c.Entries[k]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toCartEntry(e domcart.Entry) cartEntryResponse {
	opts := e.Options
	if opts == nil {
		opts = []string{}
	}
	return cartEntryResponse{Key: string(e.Key), ProductID: e.ProductID, Options: opts, Quantity: e.Quantity}
}

type placeOrderRequest struct {
	Address        domorder.Address             `json:"address"`
	DeliveryFee    decimal.Decimal              `json:"delivery_fee"`
	Selections     map[string]map[string]string `json:"selections"`
	ExpectedAmount *decimal.Decimal             `json:"expected_amount"`
}

type placeOrderResponse struct {
	OrderID     string          `json:"order_id"`
	Status      domorder.Status `json:"status"`
	Amount      string          `json:"amount"`
	RedirectURL string          `json:"redirect_url"`
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	selections := make(map[domcart.Key]map[string]string, len(req.Selections))
	for k, v := range req.Selections {
		selections[domcart.Key(k)] = v
	}

	result, err := h.deps.PlaceOrder.Execute(r.Context(), apporder.PlaceOrderInput{
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		CustomerID:     p.CustomerID,
		Address:        req.Address,
		DeliveryFee:    req.DeliveryFee,
		Selections:     selections,
		ExpectedAmount: req.ExpectedAmount,
	})
	if err != nil {
		if errors.Is(err, application.ErrProvider) && result != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":    err.Error(),
				"order_id": result.OrderID,
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, placeOrderResponse{
		OrderID:     result.OrderID,
		Status:      result.Status,
		Amount:      result.Amount.StringFixed(2),
		RedirectURL: result.RedirectURL,
	})
}

func (h *Handler) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	orders, err := h.deps.Orders.ListCustomerOrders(r.Context(), p.CustomerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Orders.ListOrders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

type verifyPaymentRequest struct {
	OrderID string `json:"order_id"`
	Success *bool  `json:"success"`
}

type verifyPaymentResponse struct {
	OrderID string          `json:"order_id"`
	Status  domorder.Status `json:"status"`
	Changed bool            `json:"changed"`
}

// handleVerifyPayment records the outcome the shopper's browser brought back from
// checkout. The redirect is unsigned, so once a webhook parser is wired a success
// here is only acknowledged with 202 and the webhook marks the order paid.
func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req verifyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Success == nil {
		writeError(w, http.StatusBadRequest, errors.New("success is required"))
		return
	}

	outcome := dompayment.OutcomeFromFlag(*req.Success)
	result, err := h.deps.Verify.Execute(r.Context(), apppayment.VerifyPaymentInput{
		OrderID:    req.OrderID,
		CustomerID: p.CustomerID,
		Outcome:    outcome,
		Source:     sourceRedirect,
		Trusted:    h.deps.Webhooks == nil,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if outcome == dompayment.OutcomeSuccess && result.Status == domorder.StatusProcessing {
		status = http.StatusAccepted
	}
	writeJSON(w, status, verifyPaymentResponse{
		OrderID: result.OrderID,
		Status:  result.Status,
		Changed: result.Changed,
	})
}

// handleStripeWebhook acknowledges every verified event the service cannot act
// on so the provider stops redelivering it. Only storage failures ask for a retry.
func (h *Handler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	logger := logctx.FromOr(r.Context(), h.log)
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cb, err := h.deps.Webhooks.Parse(payload, r.Header.Get(headerStripeSig))
	switch {
	case errors.Is(err, dompayment.ErrIgnoredCallback):
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	case err != nil:
		logger.Warn("webhook_rejected", observability.Err(err))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger = logger.With(
		observability.F("webhook_event_id", cb.EventID),
		observability.F("webhook_type", cb.Type),
		observability.F("order_id", cb.OrderID),
	)
	_, err = h.deps.Verify.Execute(r.Context(), apppayment.VerifyPaymentInput{
		OrderID: cb.OrderID,
		Outcome: cb.Outcome,
		Source:  sourceWebhook,
		Trusted: true,
	})
	switch {
	case err == nil:
	case errors.Is(err, application.ErrNotFound),
		errors.Is(err, application.ErrConflict),
		errors.Is(err, application.ErrInvalidInput):
		logger.Warn("webhook_not_applied", observability.Err(err))
	default:
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type storeStatusBody struct {
	Open *bool `json:"open"`
}

func (h *Handler) handleStoreStatus(w http.ResponseWriter, _ *http.Request) {
	open := h.deps.Storefront.IsOpen()
	writeJSON(w, http.StatusOK, storeStatusBody{Open: &open})
}

func (h *Handler) handleSetStoreStatus(w http.ResponseWriter, r *http.Request) {
	var req storeStatusBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Open == nil {
		writeError(w, http.StatusBadRequest, errors.New("open is required"))
		return
	}
	if err := h.deps.Storefront.SetOpen(r.Context(), *req.Open); err != nil {
		writeDomainError(w, err)
		return
	}
	h.handleStoreStatus(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type lineItemResponse struct {
	Key                string            `json:"key"`
	ProductID          string            `json:"product_id"`
	Name               string            `json:"name"`
	Options            []string          `json:"options,omitempty"`
	RequiredSelections map[string]string `json:"required_selections,omitempty"`
	Quantity           int               `json:"quantity"`
	UnitPrice          string            `json:"unit_price"`
	Subtotal           string            `json:"subtotal"`
}

type orderResponse struct {
	ID               string             `json:"id"`
	CustomerID       string             `json:"customer_id"`
	Status           domorder.Status    `json:"status"`
	PaymentConfirmed bool               `json:"payment_confirmed"`
	Items            []lineItemResponse `json:"items"`
	DeliveryFee      string             `json:"delivery_fee"`
	Amount           string             `json:"amount"`
	Address          domorder.Address   `json:"address"`
	CreatedAt        time.Time          `json:"created_at"`
}

func toOrderList(orders []*domorder.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		items := make([]lineItemResponse, 0, len(o.Items))
		for _, li := range o.Items {
			items = append(items, lineItemResponse{
				Key:                li.Key,
				ProductID:          li.ProductID,
				Name:               li.DisplayName,
				Options:            li.Options,
				RequiredSelections: li.RequiredSelections,
				Quantity:           li.Quantity,
				UnitPrice:          li.UnitPrice.StringFixed(2),
				Subtotal:           li.Subtotal().StringFixed(2),
			})
		}
		out = append(out, orderResponse{
			ID:               o.ID,
			CustomerID:       o.CustomerID,
			Status:           o.Status,
			PaymentConfirmed: o.PaymentConfirmed,
			Items:            items,
			DeliveryFee:      o.DeliveryFee.StringFixed(2),
			Amount:           o.Amount.StringFixed(2),
			Address:          o.Address,
			CreatedAt:        o.CreatedAt,
		})
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, application.ErrProvider):
		writeError(w, http.StatusBadGateway, err)
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, application.ErrConflict),
		errors.Is(err, application.ErrStoreClosed):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
