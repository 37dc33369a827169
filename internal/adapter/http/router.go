package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/loanledger/internal/adapter/http/handler"
	"github.com/iho/loanledger/internal/adapter/http/middleware"
	"github.com/iho/loanledger/internal/infrastructure/metrics"
	"github.com/iho/loanledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	HealthHandler  *handler.HealthHandler
	AuthHandler    *handler.AuthHandler
	ListingHandler *handler.ListingHandler
	LoanHandler    *handler.LoanHandler
	CreditHandler  *handler.CreditHandler
	QuoteHandler   *handler.QuoteHandler

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// MetricsHandler serves /metrics; defaults to the global Prometheus registry.
	MetricsHandler http.Handler
	// TokenVerifier enables bearer auth. When nil the X-Wallet-Address header is trusted.
	TokenVerifier    middleware.IdentityVerifier
	RateLimiter      *middleware.RateLimiter
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.TokenVerifier != nil {
		r.Use(middleware.OptionalAuth(cfg.TokenVerifier))
	} else {
		r.Use(middleware.WalletHeaderAuth)
	}
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL)
			r.Use(idempotencyMiddleware.Wrap)
		}

		// Auth
		if cfg.AuthHandler != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Get("/challenge", cfg.AuthHandler.Challenge)
				r.Post("/token", cfg.AuthHandler.Token)
				if cfg.TokenVerifier != nil {
					r.With(middleware.AuthMiddleware(cfg.TokenVerifier)).Get("/me", cfg.AuthHandler.Me)
				} else {
					r.Get("/me", cfg.AuthHandler.Me)
				}
			})
		}

		// Listings
		r.Route("/listings", func(r chi.Router) {
			r.Post("/", cfg.ListingHandler.Create)
			r.Get("/", cfg.ListingHandler.List)
			r.Get("/{id}", cfg.ListingHandler.Get)
			r.Post("/{id}/withdraw", cfg.ListingHandler.Withdraw)
			r.Post("/{id}/fund", cfg.LoanHandler.Fund)
			r.Get("/{id}/funding", cfg.LoanHandler.PendingFunding)
		})

		// Loans
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", cfg.LoanHandler.List)
			r.Get("/{id}", cfg.LoanHandler.Get)
			r.Post("/{id}/confirm-funding", cfg.LoanHandler.ConfirmFunding)
			r.Delete("/{id}/funding", cfg.LoanHandler.CancelFunding)
			r.Post("/{id}/repay", cfg.LoanHandler.Repay)
			r.Post("/{id}/confirm-repayment", cfg.LoanHandler.ConfirmRepayment)
		})

		r.Get("/credit/{address}", cfg.CreditHandler.Get)
		r.Post("/quotes/repayment", cfg.QuoteHandler.Repayment)
	})

	return r
}
