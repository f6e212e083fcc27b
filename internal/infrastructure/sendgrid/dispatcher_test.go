package sendgrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order/ordertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, url string, cfg Config) *Dispatcher {
	t.Helper()
	cfg.APIKey = "SG.test"
	cfg.FromEmail = "kitchen@example.com"
	cfg.BaseURL = url
	cfg.Backoff = time.Millisecond
	d, err := New(cfg, nil)
	require.NoError(t, err)
	return d
}

func TestSendPlainTextSummary(t *testing.T) {
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL, Config{})
	o := ordertest.NewOrder(t, "o-1", "c-1", time.Now())
	require.NoError(t, d.Send(context.Background(), "ada@example.com", o))

	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "ada@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "Ada Lovelace", got.Personalizations[0].To[0].Name)
	assert.Equal(t, "Order o-1 received", got.Subject)
	require.Len(t, got.Content, 1)
	assert.Contains(t, got.Content[0].Value, "2 x Margherita (extra cheese) [size: large]  19.00")
	assert.Contains(t, got.Content[0].Value, "Total  21.00")
	assert.Equal(t, "o-1", got.CustomArgs["order_id"])
}

func TestSendWithTemplate(t *testing.T) {
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL, Config{TemplateID: "d-123"})
	require.NoError(t, d.Send(context.Background(), "ada@example.com", ordertest.NewOrder(t, "o-1", "c-1", time.Now())))

	assert.Equal(t, "d-123", got.TemplateID)
	assert.Empty(t, got.Content)
	assert.Equal(t, "21.00", got.Personalizations[0].DynamicTemplateData["amount"])
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL, Config{MaxRetries: 3})
	require.NoError(t, d.Send(context.Background(), "ada@example.com", ordertest.NewOrder(t, "o-1", "c-1", time.Now())))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from"}]}`))
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL, Config{MaxRetries: 3})
	err := d.Send(context.Background(), "ada@example.com", ordertest.NewOrder(t, "o-1", "c-1", time.Now()))

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode)
	assert.Contains(t, err.Error(), "invalid from")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{FromEmail: "a@b.c"}, nil)
	require.Error(t, err)
	_, err = New(Config{APIKey: "k"}, nil)
	require.Error(t, err)
}
