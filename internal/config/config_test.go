package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, CartStoreMemory, cfg.Stores.Cart)
	assert.Equal(t, OrderStoreMemory, cfg.Stores.Orders)
	assert.Equal(t, "eur", cfg.Checkout.Currency)
	assert.True(t, cfg.Storefront.Open)
	assert.Equal(t, devJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  env: prod
auth:
  jwt_secret: from-file
checkout:
  currency: usd
  timeout: 3s
stores:
  orders: sqlite
  sqlite_path: /tmp/orders.db
storefront:
  open: false
`), 0o600))

	t.Setenv("CHECKOUT_CURRENCY", "GBP")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Service.Env)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "gbp", cfg.Checkout.Currency)
	assert.Equal(t, 3*time.Second, cfg.Checkout.Timeout)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, OrderStoreSQLite, cfg.Stores.Orders)
	assert.False(t, cfg.Storefront.Open)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing secret outside dev": {"ENV": "prod"},
		"redis without address":      {"CART_STORE": "redis"},
		"unknown order store":        {"ORDER_STORE": "mongo"},
		"postgres without dsn":       {"ORDER_STORE": "postgres"},
		"stripe without webhook":     {"STRIPE_SECRET_KEY": "sk_test"},
		"bad bool":                   {"STORE_OPEN": "maybe"},
		"bad duration":               {"CHECKOUT_TIMEOUT": "soon"},
		"bad ratio":                  {"OTEL_TRACES_SAMPLER_RATIO": "2"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
