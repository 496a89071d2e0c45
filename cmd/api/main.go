package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/analytics"
	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/customer"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/engine"
	"github.com/noah-isme/backend-kasir/internal/health"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
	"github.com/noah-isme/backend-kasir/internal/transaction"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := "json"
	if cfg.AppEnv == "development" {
		logFormat = "console"
	}
	logger := obs.NewLogger(logFormat, "info").With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics("kasir", nil)

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			Enabled:     true,
			Endpoint:    cfg.TracingEndpoint,
			ServiceName: "kasir-api",
			SampleRatio: cfg.TracingSample,
			Insecure:    cfg.TracingInsecure,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Str("dir", cfg.MigrationsDir).Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "kasir-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	eng := engine.New(engine.Config{
		TaxRate:         cfg.TaxRate,
		TaxInclusive:    cfg.TaxInclusive,
		PointsPerAmount: cfg.PointsPerAmount,
		PointValue:      cfg.PointValue,
		MaxDiscountPct:  cfg.MaxDiscountPct,
		MinMarginPct:    cfg.MinMarginPct,
	})

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Repo:  catalog.NewRepo(pool),
		Cache: catalog.NewCache(redisClient, 5*time.Minute),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	customerService, err := customer.NewService(customer.ServiceConfig{
		Repo: customer.NewRepo(pool),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise customer service")
	}
	customerHandler := customer.NewHandler(customer.HandlerConfig{Service: customerService})

	discountService, err := discount.NewService(discount.ServiceConfig{
		Repo: discount.NewRepo(pool),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise discount service")
	}
	discountHandler := discount.NewHandler(discount.HandlerConfig{Service: discountService})

	cartService, err := cart.NewService(cart.ServiceConfig{
		Store:     cart.NewStore(redisClient, cfg.CartTTL),
		Engine:    eng,
		Products:  catalogService,
		Customers: customerService,
		Discounts: discountService,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise cart service")
	}
	cartHandler := cart.NewHandler(cart.HandlerConfig{Service: cartService})

	transactionService, err := transaction.NewService(transaction.ServiceConfig{
		Repo:      transaction.NewRepo(pool),
		Carts:     cartService,
		Discounts: discountService,
		Customers: customerService,
		Locks:     &lock.Guard{R: redisClient, TTL: 30 * time.Second},
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise transaction service")
	}
	transactionHandler := transaction.NewHandler(transaction.HandlerConfig{Service: transactionService})

	analyticsService, err := analytics.NewService(analytics.ServiceConfig{
		Repo:  analytics.NewRepo(pool),
		Cache: redisClient,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise analytics service")
	}
	analyticsHandler := analytics.NewHandler(analytics.HandlerConfig{Service: analyticsService})

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	httpMetrics := obs.NewHTTPMetrics("kasir", obs.ParseBucketsCSV(cfg.MetricsBucketsCSV), nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitEnabled {
		limit, err := ratelimit.Middleware(redisClient, ratelimit.Config{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rate limiter")
		}
		r.Use(limit)
	}

	r.Handle("/metrics", promhttp.Handler())
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", newPprofMux())
	}

	healthHandler := health.Handler{
		Checker: health.DepsChecker{Pool: pool, Redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/products", func(p chi.Router) {
			p.Get("/", catalogHandler.List)
			p.Post("/", catalogHandler.Create)
			p.Get("/{id}", catalogHandler.Get)
			p.Put("/{id}", catalogHandler.Update)
			p.Delete("/{id}", catalogHandler.Delete)
			p.Post("/{id}/stock", catalogHandler.AdjustStock)
		})
		v.Get("/categories", catalogHandler.Categories)

		v.Route("/customers", func(c chi.Router) {
			c.Get("/", customerHandler.List)
			c.Post("/", customerHandler.Create)
			c.Get("/lookup", customerHandler.Lookup)
			c.Get("/{id}", customerHandler.Get)
			c.Put("/{id}", customerHandler.Update)
		})

		v.Route("/discounts", func(d chi.Router) {
			d.Get("/", discountHandler.List)
			d.Post("/", discountHandler.Create)
			d.Post("/validate", discountHandler.Validate)
			d.Get("/{id}", discountHandler.Get)
			d.Put("/{id}", discountHandler.Update)
			d.Delete("/{id}", discountHandler.Delete)
		})

		v.Route("/carts", func(c chi.Router) {
			c.Get("/{id}", cartHandler.Get)
			c.Get("/{id}/breakdown", cartHandler.Breakdown)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Delete("/{id}", cartHandler.Delete)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Put("/{id}/items/{productId}", cartHandler.UpdateItem)
				g.Delete("/{id}/items/{productId}", cartHandler.RemoveItem)
				g.Put("/{id}/customer", cartHandler.AttachCustomer)
				g.Put("/{id}/discount", cartHandler.ApplyDiscount)
				g.Put("/{id}/loyalty", cartHandler.ApplyLoyalty)
			})
		})

		v.Route("/transactions", func(t chi.Router) {
			t.With(idem.Middleware).Post("/", transactionHandler.Finalize)
			t.Get("/", transactionHandler.List)
			t.Get("/{id}", transactionHandler.Get)
			t.Post("/{id}/pay", transactionHandler.MarkPaid)
		})

		v.Get("/exports/coretax", transactionHandler.ExportCoretax)

		v.Route("/analytics", func(a chi.Router) {
			a.Get("/daily-sales", analyticsHandler.DailySales)
			a.Get("/top-products", analyticsHandler.TopProducts)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}
