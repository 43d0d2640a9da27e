package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/ratelimit"
	"github.com/noah-isme/toko-checkout/internal/security"
)

type routerDeps struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Redis     *redis.Client
	Registry  *prometheus.Registry
	Readiness *health.Readiness
	Tracing   bool
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.Config

	var (
		httpMetrics     *obs.HTTPMetrics
		checkoutMetrics *obs.CheckoutMetrics
	)
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets)
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, d.Registry)
		checkoutMetrics = obs.NewCheckoutMetrics(cfg.Obs.MetricsNamespace, d.Registry)
	}

	checkoutSvc := &checkout.Service{
		Logger:      d.Logger.With().Str("component", "checkout").Logger(),
		Metrics:     checkoutMetrics,
		DefaultTier: cfg.CheckoutDefaultTier,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	healthHandler := health.Handler{Readiness: d.Readiness}
	if d.Redis != nil {
		client := d.Redis
		healthHandler.Probes = map[string]health.Probe{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}
	}

	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: d.Redis, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("checkout"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
		FailClosed: cfg.RateLimitFailClosed,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger, Quiet: []string{"/metrics", "/health", "/health/live", "/health/ready"}}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.EnableHSTS, NoStore: true}.Middleware)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/health", healthHandler.Status)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.With(
		security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware,
		limiter.Middleware,
		idem.Middleware,
	).Post("/checkout", checkoutHandler.Checkout)

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
