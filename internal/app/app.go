package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/ordercode"
	"github.com/xenking/matcha-bar/internal/domain/payment"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
	"github.com/xenking/matcha-bar/internal/handler"
	"github.com/xenking/matcha-bar/internal/kitchen"
	"github.com/xenking/matcha-bar/internal/paystack"
	"github.com/xenking/matcha-bar/internal/session"
	"github.com/xenking/matcha-bar/internal/storage/postgres"
	redisstore "github.com/xenking/matcha-bar/internal/storage/redis"
	"github.com/xenking/matcha-bar/pkg/health"
	"github.com/xenking/matcha-bar/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is usually
// the *app.Telemetry handed out by the SDK.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

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
	healthSvc.Register(health.Check{
		Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second, Func: health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name: "goroutines", Kind: health.Liveness, Func: health.GoroutineCheck(10000),
	})

	orderRepo := postgres.NewOrderRepository(pool)
	menuRepo := postgres.NewMenuRepository(pool)

	// Redis backs the lookup cache, webhook dedup and shared rate limits.
	// Without it each replica limits on its own and lookups hit the database.
	var (
		cache      order.Cache
		deliveries handler.Deliveries
		limiter    httpmiddleware.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb, err := redisstore.NewClient(cfg.RedisAddr)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		cache = redisstore.NewOrderCache(rdb, cfg.Cache.OrderTTL)
		deliveries = redisstore.NewDeliveryLog(rdb, cfg.Cache.WebhookTTL)
		limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		healthSvc.Register(health.Check{
			Name: "redis", Kind: health.Readiness, Timeout: 2 * time.Second,
			Func: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		lg.Warn("Redis not configured, using in-process rate limits and no order cache")
		mem := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		go mem.Run(ctx)
		limiter = mem
	}

	var publisher order.Publisher = kitchen.NewLogPublisher(lg.Named("kitchen"))
	if cfg.RabbitURL != "" {
		conn, err := kitchen.Dial(cfg.RabbitURL)
		if err != nil {
			return errors.Wrap(err, "connect kitchen broker")
		}
		defer func() { _ = conn.Close() }()

		p, err := kitchen.NewPublisher(conn.Channel())
		if err != nil {
			return errors.Wrap(err, "create kitchen publisher")
		}
		publisher = p
		healthSvc.Register(health.Check{
			Name: "rabbitmq", Kind: health.Readiness, Func: health.PingCheck(conn),
		})
	}

	orders := order.NewService(orderRepo, publisher, cache, lg.Named("order"))
	registry := ordercode.NewRegistry(ordercode.NewGenerator(), orderRepo)

	// Warm the code filter and load the price table concurrently.
	var prices *pricing.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := registry.Warm(gctx)
		if err != nil {
			return errors.Wrap(err, "warm order codes")
		}
		lg.Info("Order codes loaded", zap.Int("count", n))
		return nil
	})
	g.Go(func() error {
		mn, err := menuRepo.Menu(gctx)
		if err != nil {
			return errors.Wrap(err, "load menu")
		}
		prices = mn.PricingTable()
		lg.Info("Menu loaded", zap.Int("drinks", len(mn.Drinks)), zap.Int("add_ons", len(mn.AddOns)))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	gateway := paystack.NewGateway(
		paystack.NewClient(paystack.Config{
			SecretKey:   cfg.Paystack.SecretKey,
			BaseURL:     cfg.Paystack.BaseURL,
			CallbackURL: cfg.Paystack.CallbackURL,
			CancelURL:   cfg.Paystack.CancelURL,
			Timeout:     cfg.Paystack.Timeout,
		}, m.TracerProvider(), m.MeterProvider()),
		payment.NewHub(),
		lg.Named("paystack"),
	)
	if cfg.Paystack.SecretKey == "" {
		lg.Warn("Paystack secret key not set, only cash checkout is available")
	}

	checkoutSvc, err := checkout.NewService(
		checkout.Config{CashDelay: cfg.Checkout.CashDelay, Currency: cfg.Checkout.Currency},
		registry, gateway, gateway, orders,
		lg.Named("checkout"), m.TracerProvider(), m.MeterProvider(),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	sessions := session.NewManager(ctx, session.Config{
		TTL:            cfg.Checkout.SessionTTL,
		PaymentTimeout: cfg.Checkout.PaymentTimeout,
	}, checkoutSvc, prices, lg.Named("session"))
	sessionsDone := make(chan struct{})
	go func() {
		defer close(sessionsDone)
		_ = sessions.Run(ctx)
	}()

	h := handler.New(handler.Config{
		PickupLocation: cfg.Pickup.Location,
		PickupEstimate: cfg.Pickup.Estimate,
		WebhookSecret:  cfg.Paystack.SecretKey,
		ReturnURL:      cfg.Paystack.ReturnURL,
	}, sessions, orders, menuRepo, gateway, checkoutSvc, deliveries)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveHandler)
	r.Get("/readyz", healthSvc.ReadyHandler)
	h.Routes(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Routes(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Headers:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				Expose:      []string{httpmiddleware.RequestIDHeader},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{Limiter: limiter}),
			httpmiddleware.Instrument("matcha-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	<-sessionsDone
	return nil
}
