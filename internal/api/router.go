package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/credauth/internal/api/apierr"
	"github.com/mcoot/credauth/internal/api/handler"
	"github.com/mcoot/credauth/internal/api/middleware"
	"github.com/mcoot/credauth/internal/api/response"
)

// DefaultRequestTimeout bounds each request when RouterConfig leaves it unset
const DefaultRequestTimeout = 10 * time.Second

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Controller handler.AuthController
	Sessions   middleware.SessionManager
	Cookies    middleware.CookieConfig

	// Gatherer is served on /metrics when set
	Gatherer prometheus.Gatherer
	// HealthCheck reports backend readiness; nil means always healthy
	HealthCheck func(ctx context.Context) error

	RequestTimeout time.Duration
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewNotFoundError())
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewMethodNotAllowedError())
	})

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.Controller, cfg.Cookies)

	// Create middleware
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)
	timeoutMiddleware := middleware.Timeout(timeout)
	sessionMiddleware := middleware.Session(cfg.Sessions, cfg.Cookies, cfg.Logger)
	ensureSession := middleware.EnsureSession(cfg.Sessions, cfg.Cookies, cfg.Logger)

	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)

	// Auth routes. /auth accepts every method so the controller can answer 405.
	authRoutes := r.PathPrefix("/auth").Subrouter()
	authRoutes.Use(timeoutMiddleware)
	authRoutes.Use(sessionMiddleware)
	authRoutes.Handle("", ensureSession(http.HandlerFunc(authHandler.Auth)))
	authRoutes.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	authRoutes.HandleFunc("/me", authHandler.Me).Methods(http.MethodGet)

	// Health check endpoint (no auth)
	r.HandleFunc("/health", healthHandler(cfg.HealthCheck, timeout)).Methods(http.MethodGet)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(check func(ctx context.Context) error, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			if err := check(ctx); err != nil {
				response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "unavailable"})
				return
			}
		}
		response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
	}
}
