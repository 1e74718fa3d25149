package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/smartpay-gateway/internal/auth"
	"github.com/noah-isme/smartpay-gateway/internal/config"
	"github.com/noah-isme/smartpay-gateway/internal/health"
	"github.com/noah-isme/smartpay-gateway/internal/notify"
	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/payment"
	"github.com/noah-isme/smartpay-gateway/internal/ratelimit"
	"github.com/noah-isme/smartpay-gateway/internal/security"
)

type routerDeps struct {
	cfg            *config.Config
	logger         zerolog.Logger
	tracing        bool
	payments       *payment.Handler
	notify         notify.Handler
	health         health.Handler
	authMiddleware auth.Middleware
	gatewayLimit   ratelimit.Handler
	notifyLimit    ratelimit.Handler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(d.cfg.Obs.MetricsBuckets)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(d.cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(security.Headers{
		EnableHSTS:            d.cfg.Security.EnableHSTS,
		HSTSMaxAge:            d.cfg.Security.HSTSMaxAge,
		HSTSIncludeSubdomains: d.cfg.Security.HSTSIncludeSubdomains,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(d.cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if d.cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if d.cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), d.cfg.Obs.PprofUser, d.cfg.Obs.PprofPass))
	}

	r.Get("/health/live", d.health.Live)
	r.Get("/health/ready", d.health.Ready)

	r.With(d.notifyLimit.Middleware).Post("/webhooks/smartpay", d.notify.Handle)

	r.Route("/api/v1/payments", func(p chi.Router) {
		p.Use(d.authMiddleware.RequireService)
		p.Use(d.gatewayLimit.Middleware)
		d.payments.Routes(p)
	})
	return r
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
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
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
