package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
	"github.com/xenking/kart-storefront/internal/handler"
	"github.com/xenking/kart-storefront/internal/notify"
	"github.com/xenking/kart-storefront/internal/payment/paypal"
	"github.com/xenking/kart-storefront/internal/payment/stripe"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
	"github.com/xenking/kart-storefront/internal/storage/redis"
	"github.com/xenking/kart-storefront/internal/token"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the API server.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := order.ParseSettlementPolicy(cfg.Orders.SettlementPolicy)
	if err != nil {
		return errors.Wrap(err, "orders config")
	}
	tokens, err := token.NewManager(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return errors.Wrap(err, "auth config")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories. Product detail reads go through Redis when configured.
	productRepo := postgres.NewProductRepository(pool)
	var (
		products product.Repository = productRepo
		cache    product.CacheInvalidator
	)
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		c := redis.NewProductCache(productRepo, client, cfg.Redis.CacheTTL)
		products, cache = c, c
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		lg.Info("Product cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Receipts go to Kafka for the notifier, or only to the log.
	orderOpts := []order.Option{
		order.WithSettlementPolicy(policy),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
		order.WithNotifier(notify.Log{}),
	}
	if cache != nil {
		orderOpts = append(orderOpts, order.WithProductCache(cache))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := notify.NewProducer(notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer func() {
			if err := producer.Close(); err != nil {
				lg.Warn("Close receipts producer", zap.Error(err))
			}
		}()
		orderOpts = append(orderOpts, order.WithNotifier(producer))
		healthSvc.AddReadinessCheck("kafka", 2*time.Second, health.DialCheck(cfg.Kafka.Brokers...))
	}

	if cfg.PayPal.ClientID != "" {
		wallet, err := paypal.New(paypal.Config{
			ClientID: cfg.PayPal.ClientID,
			Secret:   cfg.PayPal.Secret,
			APIBase:  cfg.PayPal.APIBase,
		})
		if err != nil {
			return errors.Wrap(err, "paypal")
		}
		orderOpts = append(orderOpts, order.WithWallet(wallet))
	}
	if cfg.Stripe.SecretKey != "" {
		orderOpts = append(orderOpts, order.WithCard(stripe.NewCard(cfg.Stripe.SecretKey, nil)))
	}
	var webhook handler.WebhookParser
	if cfg.Stripe.WebhookSecret != "" {
		webhook = stripe.NewWebhook(cfg.Stripe.WebhookSecret)
	}

	// Domain services.
	cartSvc, err := cart.NewService(postgres.NewCartRepository(pool), cache,
		cart.WithTracerProvider(m.TracerProvider()),
		cart.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "cart service")
	}
	orderSvc, err := order.NewService(postgres.NewOrderRepository(pool), orderOpts...)
	if err != nil {
		return errors.Wrap(err, "order service")
	}

	h := handler.NewHandler(
		handler.Config{
			SessionCookie: cfg.Session.Cookie,
			SessionTTL:    cfg.Session.TTL,
			SecureCookies: cfg.Session.SecureCookies,
		},
		handler.Deps{
			Products: products,
			Catalog:  product.NewService(productRepo, cache),
			Carts:    cartSvc,
			Orders:   orderSvc,
			Users:    user.NewService(postgres.NewUserRepository(pool)),
			Tokens:   tokens,
			Webhook:  webhook,
		},
	)

	// Router: health endpoints + API on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes())
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "Stripe-Signature"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("kart-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Receipts dispatched by the last requests still need the producer.
		orderSvc.Wait()
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
