// Package config loads service settings from an optional YAML file and the environment.
// Environment variables win over the file; the file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CartStoreMemory = "memory"
	CartStoreRedis  = "redis"

	OrderStoreMemory   = "memory"
	OrderStoreSQLite   = "sqlite"
	OrderStorePostgres = "postgres"

	devJWTSecret = "dev-secret"
)

type Config struct {
	Service    Service    `yaml:"service"`
	Log        Log        `yaml:"log"`
	HTTP       HTTP       `yaml:"http"`
	Auth       Auth       `yaml:"auth"`
	Storefront Storefront `yaml:"storefront"`
	Checkout   Checkout   `yaml:"checkout"`
	Catalog    Catalog    `yaml:"catalog"`
	Stores     Stores     `yaml:"stores"`
	Redis      Redis      `yaml:"redis"`
	Stripe     Stripe     `yaml:"stripe"`
	SendGrid   SendGrid   `yaml:"sendgrid"`
	Kafka      Kafka      `yaml:"kafka"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Bus        Bus        `yaml:"bus"`
}

type Service struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

type Log struct {
	Level string `yaml:"level"`
	// File, when set, receives a copy of every log line.
	File string `yaml:"file"`
}

type HTTP struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type Storefront struct {
	// Open is the flag's value at startup when nothing is persisted.
	Open bool `yaml:"open"`
}

type Checkout struct {
	Currency    string        `yaml:"currency"`
	FrontendURL string        `yaml:"frontend_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Catalog struct {
	MenuFile string `yaml:"menu_file"`
}

type Stores struct {
	Cart        string `yaml:"cart"`
	Orders      string `yaml:"orders"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// PersistStoreStatus keeps the storefront flag in Redis across restarts.
	PersistStoreStatus bool `yaml:"persist_store_status"`
}

type Stripe struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

type SendGrid struct {
	APIKey     string `yaml:"api_key"`
	FromEmail  string `yaml:"from_email"`
	FromName   string `yaml:"from_name"`
	TemplateID string `yaml:"template_id"`
	MaxRetries int    `yaml:"max_retries"`
}

type Kafka struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

type Telemetry struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

type Bus struct {
	QueueSize   int `yaml:"queue_size"`
	Concurrency int `yaml:"concurrency"`
}

// Default returns a configuration that runs with in-memory stores and no
// external providers.
func Default() Config {
	return Config{
		Service: Service{Name: "minishop-storefront", Env: "dev"},
		Log:     Log{Level: "info"},
		HTTP: HTTP{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Storefront: Storefront{Open: true},
		Checkout: Checkout{
			Currency:    "eur",
			FrontendURL: "http://localhost:5173",
			Timeout:     10 * time.Second,
		},
		Stores: Stores{
			Cart:       CartStoreMemory,
			Orders:     OrderStoreMemory,
			SQLitePath: "./data/orders.db",
		},
		SendGrid:  SendGrid{MaxRetries: 3},
		Kafka:     Kafka{Topic: "storefront.events"},
		Telemetry: Telemetry{Insecure: true, SampleRatio: 1},
		Bus:       Bus{QueueSize: 256, Concurrency: 8},
	}
}

// Load reads CONFIG_FILE when set, applies environment overrides and validates.
func Load() (Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit file path; an empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Auth.JWTSecret == "" && cfg.IsDev() {
		cfg.Auth.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsDev() bool {
	return c.Service.Env == "dev" || c.Service.Env == "test"
}

func (c Config) Validate() error {
	var errs []error
	switch c.Stores.Cart {
	case CartStoreMemory:
	case CartStoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis cart store needs REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cart store %q", c.Stores.Cart))
	}
	switch c.Stores.Orders {
	case OrderStoreMemory:
	case OrderStoreSQLite:
		if c.Stores.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite order store needs SQLITE_PATH"))
		}
	case OrderStorePostgres:
		if c.Stores.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres order store needs POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown order store %q", c.Stores.Orders))
	}
	if c.Redis.PersistStoreStatus && c.Redis.Addr == "" {
		errs = append(errs, errors.New("persisting store status needs REDIS_ADDR"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required outside dev"))
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required with STRIPE_SECRET_KEY"))
	}
	if c.Checkout.Timeout <= 0 {
		errs = append(errs, errors.New("checkout timeout must be positive"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("sample ratio %v outside [0, 1]", c.Telemetry.SampleRatio))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) applyEnv() error {
	env := envReader{}

	c.Service.Name = getenvDefault("SERVICE_NAME", c.Service.Name)
	c.Service.Env = getenvDefault("ENV", c.Service.Env)

	c.Log.Level = getenvDefault("LOG_LEVEL", c.Log.Level)
	c.Log.File = getenvDefault("LOG_FILE", c.Log.File)

	c.HTTP.Addr = getenvDefault("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.ShutdownTimeout = env.durationVar("HTTP_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)

	c.Auth.JWTSecret = getenvDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Storefront.Open = env.boolVar("STORE_OPEN", c.Storefront.Open)

	c.Checkout.Currency = strings.ToLower(getenvDefault("CHECKOUT_CURRENCY", c.Checkout.Currency))
	c.Checkout.FrontendURL = strings.TrimRight(getenvDefault("FRONTEND_URL", c.Checkout.FrontendURL), "/")
	c.Checkout.Timeout = env.durationVar("CHECKOUT_TIMEOUT", c.Checkout.Timeout)

	c.Catalog.MenuFile = getenvDefault("MENU_FILE", c.Catalog.MenuFile)

	c.Stores.Cart = getenvDefault("CART_STORE", c.Stores.Cart)
	c.Stores.Orders = getenvDefault("ORDER_STORE", c.Stores.Orders)
	c.Stores.SQLitePath = getenvDefault("SQLITE_PATH", c.Stores.SQLitePath)
	c.Stores.PostgresDSN = getenvDefault("POSTGRES_DSN", c.Stores.PostgresDSN)

	c.Redis.Addr = getenvDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenvDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = env.intVar("REDIS_DB", c.Redis.DB)
	c.Redis.PersistStoreStatus = env.boolVar("REDIS_PERSIST_STORE_STATUS", c.Redis.PersistStoreStatus)

	c.Stripe.SecretKey = getenvDefault("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = getenvDefault("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	c.Stripe.BaseURL = getenvDefault("STRIPE_BASE_URL", c.Stripe.BaseURL)

	c.SendGrid.APIKey = getenvDefault("SENDGRID_API_KEY", c.SendGrid.APIKey)
	c.SendGrid.FromEmail = getenvDefault("SENDGRID_FROM_EMAIL", c.SendGrid.FromEmail)
	c.SendGrid.FromName = getenvDefault("SENDGRID_FROM_NAME", c.SendGrid.FromName)
	c.SendGrid.TemplateID = getenvDefault("SENDGRID_TEMPLATE_ID", c.SendGrid.TemplateID)
	c.SendGrid.MaxRetries = env.intVar("SENDGRID_MAX_RETRIES", c.SendGrid.MaxRetries)

	c.Kafka.Brokers = getenvDefault("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getenvDefault("KAFKA_TOPIC", c.Kafka.Topic)

	c.Telemetry.OTLPEndpoint = getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.Insecure = env.boolVar("OTEL_EXPORTER_OTLP_INSECURE", c.Telemetry.Insecure)
	c.Telemetry.SampleRatio = env.floatVar("OTEL_TRACES_SAMPLER_RATIO", c.Telemetry.SampleRatio)

	c.Bus.QueueSize = env.intVar("BUS_QUEUE_SIZE", c.Bus.QueueSize)
	c.Bus.Concurrency = env.intVar("BUS_CONCURRENCY", c.Bus.Concurrency)

	if len(env.errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(env.errs...))
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envReader parses typed variables and collects parse errors instead of
// silently falling back to the default.
type envReader struct {
	errs []error
}

func (r *envReader) boolVar(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *envReader) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return i
}

func (r *envReader) floatVar(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (r *envReader) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
