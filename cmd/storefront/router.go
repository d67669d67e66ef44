package main

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/auth"
	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/security"
)

type routerDeps struct {
	cfg         *config.Config
	logger      zerolog.Logger
	redis       *redis.Client
	checkout    *checkout.Service
	verifier    *auth.Verifier
	readiness   health.Checker
	httpMetrics *obs.HTTPMetrics
	tracing     bool
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.cfg

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.tracing {
		r.Use(obs.Tracing("storefront.http"))
	}
	if d.httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.httpMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug", protectPprof(middleware.Profiler(), cfg.PprofBasicUser, cfg.PprofBasicPass))
	}

	healthHandler := health.Handler{Checker: d.readiness}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	authMiddleware := auth.Middleware{Verifier: d.verifier, AccessCookie: cfg.AccessCookie}
	idem := common.Idem{R: d.redis, TTL: cfg.IdempotencyTTL, Prefix: cache.Prefix(cache.AreaIdempotency)}
	checkoutHandler := &checkout.Handler{Svc: d.checkout}

	r.Route("/api/v1/checkout", func(c chi.Router) {
		c.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		c.Use(authMiddleware.RequireAuth)
		var limiter ratelimit.Allower = ratelimit.NewMemoryLimiter(cache.Prefix(cache.AreaRateLimit))
		if d.redis != nil {
			limiter = ratelimit.Limiter{Client: d.redis, Prefix: cache.Prefix(cache.AreaRateLimit)}
		}
		c.Use(ratelimit.Handler{
			Limiter: limiter,
			Config:  ratelimit.Config{Key: ratelimit.ShopperKey, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		}.Middleware)
		if cfg.CSRFEnabled {
			c.Use(security.CSRF{}.Middleware)
		}

		c.Get("/vouchers", checkoutHandler.Vouchers)
		c.Post("/vouchers/toggle", checkoutHandler.Toggle)
		c.Post("/vouchers/apply", checkoutHandler.Apply)
		c.Post("/vouchers/remove", checkoutHandler.Remove)
		c.Post("/preview", checkoutHandler.Preview)
		c.With(idem.Middleware).Post("/orders", checkoutHandler.SubmitOrder)
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorised", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
