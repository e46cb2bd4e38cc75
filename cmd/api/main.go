package main

import (
	"context"
	"crypto/subtle"
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

	"github.com/bonafide55/shop-api/internal/app"
	"github.com/bonafide55/shop-api/internal/cart"
	"github.com/bonafide55/shop-api/internal/catalog"
	"github.com/bonafide55/shop-api/internal/checkout"
	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/config"
	"github.com/bonafide55/shop-api/internal/health"
	"github.com/bonafide55/shop-api/internal/lock"
	"github.com/bonafide55/shop-api/internal/notify"
	"github.com/bonafide55/shop-api/internal/obs"
	"github.com/bonafide55/shop-api/internal/order"
	"github.com/bonafide55/shop-api/internal/pricing"
	"github.com/bonafide55/shop-api/internal/ratelimit"
	"github.com/bonafide55/shop-api/internal/security"
	"github.com/bonafide55/shop-api/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	if cfg.Debug {
		logger.Warn().Msg("debug mode enabled: requests without credentials act as the test telegram user")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, logger, "shop-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()
	pool, rdb := deps.DB, deps.Redis

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store:        catalog.NewPGStore(pool),
		Cache:        catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Logger:       logger,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	pricingService := &pricing.Service{
		Rules:  pricing.NewPGRuleStore(pool),
		Engine: pricing.NewEngine(),
		Logger: logger,
	}

	resolver := session.Resolver{
		Validator: session.InitDataValidator{BotToken: cfg.TelegramBotToken, MaxAge: cfg.SessionInitDataMaxAge},
		Debug:     cfg.Debug,
		Logger:    logger,
	}

	cartHandler := &cart.Handler{Svc: &cart.Service{
		Store:    cart.NewPGStore(pool),
		Products: catalogService,
		Pricing:  pricingService,
		Logger:   logger,
	}}

	enqueuer := &notify.Enqueuer{Client: deps.TaskClient, Logger: logger}
	checkoutHandler := &checkout.Handler{Svc: &checkout.Service{
		Tx:       checkout.PGTransactor{DB: pool},
		Products: catalogService,
		Pricing:  pricingService,
		Lock:     lock.Locker{R: rdb, Wait: 5 * time.Second},
		LockTTL:  cfg.CheckoutLockTTL,
		Notifier: enqueuer,
		Validate: deps.Validator,
		Logger:   logger,
	}}
	orderHandler := &order.Handler{Store: order.NewPGStore(pool)}
	idem := common.Idem{R: rdb, TTL: cfg.IdempotencyTTL}

	bans := ratelimit.BanStore{Client: rdb, Prefix: "ban:"}
	autoban := &ratelimit.AutoBan{
		Violations: ratelimit.ViolationLog{Client: rdb, Prefix: "violations:", Window: cfg.AutobanWindow},
		Bans:       bans,
		Threshold:  cfg.AutobanThreshold,
		Duration:   cfg.AutobanDuration,
		OnBan: func(ctx context.Context, s ratelimit.Subject, reason string, ttl time.Duration) {
			enqueuer.Banned(ctx, s.Kind, s.Value, reason, ttl)
		},
		Logger: logger,
	}
	blacklist := ratelimit.Blacklist{Bans: bans, Identify: resolver.Peek, Logger: logger}
	throttle := ratelimit.Throttle{Identify: resolver.Peek, Logger: logger}
	if cfg.ThrottleEnabled {
		if throttle.User, err = ratelimit.NewLimiter(deps.LimiterStore, cfg.ThrottleUserRate); err != nil {
			logger.Fatal().Err(err).Str("rate", cfg.ThrottleUserRate).Msg("parse user throttle rate")
		}
		if throttle.Anon, err = ratelimit.NewLimiter(deps.LimiterStore, cfg.ThrottleAnonRate); err != nil {
			logger.Fatal().Err(err).Str("rate", cfg.ThrottleAnonRate).Msg("parse anon throttle rate")
		}
		if cfg.AutobanEnabled {
			throttle.OnReject = autoban.Handle
		}
	}
	honeypot := security.Honeypot{Bans: autoban, Logger: logger}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: !cfg.Debug, HSTSIncludeSubdomains: true, HSTSPreload: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: len(cfg.CORSAllowedOrigins) > 0,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}
	healthHandler := health.Handler{
		Checker:      health.Probes{DB: pool, Redis: rdb},
		DBTimeout:    cfg.HealthDBTimeout,
		RedisTimeout: cfg.HealthRedisTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(blacklist.Middleware)
		v.Handle("/admin-secret-debug", honeypot)
		v.Handle("/admin-secret-debug/*", honeypot)

		v.Group(func(api chi.Router) {
			api.Use(throttle.Middleware)
			api.Get("/categories", catalogHandler.Categories)
			api.Get("/products", catalogHandler.Products)
			api.Get("/products/{slug}", catalogHandler.ProductDetail)
			api.Get("/deal-of-the-day", catalogHandler.DealOfTheDay)

			api.Group(func(s chi.Router) {
				s.Use(resolver.Middleware)
				s.Get("/cart", cartHandler.Get)
				s.Post("/cart", cartHandler.Set)
				s.Delete("/cart", cartHandler.Remove)
				s.Post("/calculate-selection", cartHandler.CalculateSelection)
				s.With(idem.Middleware).Post("/orders", checkoutHandler.Create)
				s.Get("/orders", orderHandler.List)
				s.Get("/orders/{id}", orderHandler.Get)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("server draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
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
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
