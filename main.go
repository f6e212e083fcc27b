package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appnotification "github.com/Zhima-Mochi/minishop-storefront/internal/application/notification"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/storefront"
	"github.com/Zhima-Mochi/minishop-storefront/internal/config"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	domnotification "github.com/Zhima-Mochi/minishop-storefront/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/menufile"
	infraobs "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sendgrid"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlite"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/stripe"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "minishop-storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service:     cfg.Service.Name,
		Env:         cfg.Service.Env,
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Development: cfg.Service.Env == "dev",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	if err := run(cfg, baseLogger, systemLogger); err != nil {
		systemLogger.Error("service_failed", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, baseLogger, systemLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.Config{
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			systemLogger.Warn("tracer_shutdown_error", zap.Error(err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	instruments := prometrics.Standard(prometrics.New(promRegistry, "", ""))
	obs := infraobs.New(oteltrace.New(tracerName), zaplogger.New(baseLogger), instruments)

	st, err := openStores(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	defer st.close(systemLogger)

	menu, err := loadCatalog(cfg, systemLogger)
	if err != nil {
		return err
	}

	provider, webhooks, err := paymentAdapters(cfg, systemLogger)
	if err != nil {
		return err
	}
	notifier, err := notificationDispatcher(cfg, obs.Logger(), systemLogger)
	if err != nil {
		return err
	}

	// In-process event bus: order events fan out to the workers and the relay.
	bus := outbox.NewBus(obs,
		outbox.WithQueueSize(cfg.Bus.QueueSize),
		outbox.WithConcurrency(cfg.Bus.Concurrency),
	)
	appcart.NewWorker(st.carts, bus, obs).Start()
	appnotification.NewWorker(bus, notifier, obs).Start()
	if brokers := strings.TrimSpace(cfg.Kafka.Brokers); brokers != "" {
		relayed := domoutbox.Names(domorder.PlacedEvent{}, domorder.PaidEvent{}, domorder.CancelledEvent{})
		relay := kafka.NewRelay(kafka.NewWriter(brokers, cfg.Kafka.Topic), bus, obs, relayed...)
		relay.Start()
		defer func() {
			if err := relay.Close(); err != nil {
				systemLogger.Warn("kafka_relay_close_error", zap.Error(err))
			}
		}()
		systemLogger.Info("kafka_relay_enabled", zap.String("topic", cfg.Kafka.Topic))
	}
	bus.Start(ctx)

	status, err := storefront.NewStatus(ctx, cfg.Storefront.Open, st.status, obs)
	if err != nil {
		return err
	}

	placeOrder := apporder.NewPlaceOrderUseCase(st.carts, menu, st.orders, provider, bus, status,
		id.NewUUIDGenerator(),
		apporder.CheckoutConfig{
			Currency:    cfg.Checkout.Currency,
			FrontendURL: cfg.Checkout.FrontendURL,
			Timeout:     cfg.Checkout.Timeout,
		},
		obs,
	)
	handler := httppresentation.NewHandler(httppresentation.Deps{
		Carts:      appcart.NewService(st.carts, menu, obs),
		PlaceOrder: placeOrder,
		Orders:     apporder.NewQueryService(st.orders, obs),
		Verify:     apppayment.NewVerifyPaymentUseCase(st.orders, bus, obs),
		Storefront: status,
		Webhooks:   webhooks,
		Auth:       httppresentation.NewAuthenticator(cfg.Auth.JWTSecret),
		Metrics:    promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		Obs:        obs,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.Bool("store_open", status.IsOpen()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			systemLogger.Error("http_server_shutdown_error", zap.Error(err))
		} else {
			systemLogger.Info("http_server_stopped")
		}
		// Drain queued events after the last request so no publisher races the close.
		bus.Stop(shutdownCtx)
		return nil
	})
	return g.Wait()
}

type stores struct {
	carts   domcart.Store
	orders  domorder.Repository
	status  storefront.Persister
	closers []func() error
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *stores, err error) {
	st := &stores{}
	defer func() {
		if err != nil {
			st.close(log)
		}
	}()

	var rdb *goredis.Client
	if cfg.Stores.Cart == config.CartStoreRedis || cfg.Redis.PersistStoreStatus {
		rdb, err = redis.Connect(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, rdb.Close)
	}

	switch cfg.Stores.Cart {
	case config.CartStoreRedis:
		st.carts = redis.NewCartStore(rdb)
	default:
		st.carts = memory.NewCartStore()
	}
	if cfg.Redis.PersistStoreStatus {
		st.status = redis.NewStatusStore(rdb, redis.DefaultStatusKey)
	}

	switch cfg.Stores.Orders {
	case config.OrderStoreSQLite:
		repo, err := sqlite.Open(cfg.Stores.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.orders = repo
		st.closers = append(st.closers, repo.Close)
	case config.OrderStorePostgres:
		repo, err := postgres.Open(cfg.Stores.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st.orders = repo
		st.closers = append(st.closers, repo.Close)
	default:
		st.orders = memory.NewOrderRepository()
	}

	log.Info("stores_ready",
		zap.String("cart_store", cfg.Stores.Cart),
		zap.String("order_store", cfg.Stores.Orders),
		zap.Bool("store_status_persisted", st.status != nil),
	)
	return st, nil
}

func (s *stores) close(log *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn("store_close_error", zap.Error(err))
		}
	}
	s.closers = nil
}

func loadCatalog(cfg config.Config, log *zap.Logger) (*memory.Catalog, error) {
	if cfg.Catalog.MenuFile == "" {
		log.Warn("catalog_empty", zap.String("hint", "set MENU_FILE to load products"))
		return memory.NewCatalog(), nil
	}
	products, err := menufile.Load(cfg.Catalog.MenuFile)
	if err != nil {
		return nil, err
	}
	cat := memory.NewCatalog(products...)
	log.Info("catalog_loaded",
		zap.String("file", cfg.Catalog.MenuFile),
		zap.Int("products", cat.Len()),
	)
	return cat, nil
}

// paymentAdapters returns Stripe when a secret key is configured. Dev runs fall
// back to a simulated provider that redirects straight to the success page.
func paymentAdapters(cfg config.Config, log *zap.Logger) (dompayment.Provider, dompayment.CallbackParser, error) {
	if cfg.Stripe.SecretKey != "" {
		provider := stripe.NewProvider(stripe.Config{
			SecretKey: cfg.Stripe.SecretKey,
			BaseURL:   cfg.Stripe.BaseURL,
		})
		return provider, stripe.NewWebhookParser(cfg.Stripe.WebhookSecret), nil
	}
	if !cfg.IsDev() {
		return nil, nil, errors.New("STRIPE_SECRET_KEY is required outside dev")
	}
	log.Warn("payment_provider_simulated")
	return memory.NewPaymentProvider(), nil, nil
}

func notificationDispatcher(cfg config.Config, appLog observability.Logger, log *zap.Logger) (domnotification.Dispatcher, error) {
	if cfg.SendGrid.APIKey == "" {
		log.Warn("notifications_log_only")
		return memory.NewNotifier(appLog), nil
	}
	return sendgrid.New(sendgrid.Config{
		APIKey:     cfg.SendGrid.APIKey,
		FromEmail:  cfg.SendGrid.FromEmail,
		FromName:   cfg.SendGrid.FromName,
		TemplateID: cfg.SendGrid.TemplateID,
		MaxRetries: cfg.SendGrid.MaxRetries,
	}, appLog)
}
