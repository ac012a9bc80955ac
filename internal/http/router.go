package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/planner/internal/api"
	"github.com/jw6ventures/planner/internal/auth"
	"github.com/jw6ventures/planner/internal/calendar"
	"github.com/jw6ventures/planner/internal/config"
	"github.com/jw6ventures/planner/internal/http/csrf"
	"github.com/jw6ventures/planner/internal/http/ratelimit"
	"github.com/jw6ventures/planner/internal/logging"
	"github.com/jw6ventures/planner/internal/metrics"
	"github.com/jw6ventures/planner/internal/store"
)

// Router is the application handler. Close stops background work owned by
// its middleware.
type Router struct {
	http.Handler
	limiter *ratelimit.Limiter
}

func (r *Router) Close() {
	r.limiter.Stop()
}

// NewRouter wires all HTTP routes.
func NewRouter(cfg *config.Config, store *store.Store, authService *auth.Service, calendarService *calendar.Service, logger *zap.Logger) *Router {
	r := chi.NewRouter()

	clients, invalid := ratelimit.NewResolver(cfg.TrustedProxies)
	for _, entry := range invalid {
		logger.Warn("ignoring invalid trusted proxy", zap.String("entry", entry))
	}
	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.New(rate.Limit(5), 10, 5*time.Minute, clients)

	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	h := api.NewHandler(calendarService, authService)

	r.Route("/auth", func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		h.AuthRoutes(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authService.RequireSession)
		r.Use(csrf.Middleware(cfg))
		h.Routes(r)
	})

	return &Router{Handler: r, limiter: authRateLimiter}
}
