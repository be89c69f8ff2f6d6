package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"edu-checkout/internal/usecase"
)

// TokenRefresher is satisfied by *usecase.TokenCache.
type TokenRefresher interface {
	RefreshInBackground(ctx context.Context)
}

// HealthCheck checks one dependency for /health.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Payments    usecase.PaymentUseCase
	Callbacks   usecase.CallbackUseCase
	Fulfillment usecase.FulfillmentUseCase
	Coupons     usecase.CouponUseCase
	Tokens      TokenRefresher
	Auth        *AuthManager

	AdminAPIKey    string
	CronSecret     string
	FrontendURL    string // payer lands here after the callback; empty answers with JSON
	RequestTimeout time.Duration
	Health         map[string]HealthCheck
}

// Server exposes checkout, the gateway callback and the admin API.
type Server struct {
	d   Deps
	log *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{d: d, log: &l}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.d.RequestTimeout))

		r.Route("/api/payment/bkash", func(r chi.Router) {
			r.Post("/create", s.handleCreatePayment)
			r.Get("/callback", s.handleCallback)
			r.Post("/callback", s.handleCallback)
			r.Post("/token/refresh", s.handleTokenRefresh)
		})
		r.Post("/api/coupons/validate", s.handleValidateCoupon)

		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/session", s.handleAdminSession)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/payments/lookup", s.handleLookup)
				r.Post("/payments/{orderID}/fulfill", s.handleFulfill)
				r.Post("/payments/{orderID}/refund", s.handleRefund)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.d.Health))
	status := http.StatusOK
	for name, check := range s.d.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeData(w, status, map[string]interface{}{"checks": checks})
}
