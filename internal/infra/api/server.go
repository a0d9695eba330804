package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"linkhub-membership/internal/config"
	"linkhub-membership/internal/usecase"
)

// Server exposes the membership API, the gateway webhooks and the operator
// endpoints on one chi router.
type Server struct {
	plans      usecase.PlanUseCase
	pricing    usecase.PricingUseCase
	checkout   usecase.CheckoutUseCase
	membership usecase.MembershipUseCase
	webhooks   usecase.WebhookUseCase

	auth *AuthManager
	cfg  Options
	log  *zerolog.Logger
}

// Options are the HTTP-level knobs taken from config.
type Options struct {
	Dev             bool
	AdminAPIKey     string
	TrustedHeaders  []string
	DefaultCountry  string
	RequestTimeout  time.Duration
	MaxWebhookBytes int64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dev:             cfg.Runtime.Dev,
		AdminAPIKey:     cfg.Auth.AdminAPIKey,
		TrustedHeaders:  cfg.Geo.TrustedHeaders,
		DefaultCountry:  cfg.Geo.DefaultCountry,
		RequestTimeout:  cfg.Server.RequestTimeout,
		MaxWebhookBytes: cfg.Server.MaxWebhookBytes,
	}
}

func NewServer(
	plans usecase.PlanUseCase,
	pricing usecase.PricingUseCase,
	checkout usecase.CheckoutUseCase,
	membership usecase.MembershipUseCase,
	webhooks usecase.WebhookUseCase,
	auth *AuthManager,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxWebhookBytes <= 0 {
		opts.MaxWebhookBytes = 1 << 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		plans:      plans,
		pricing:    pricing,
		checkout:   checkout,
		membership: membership,
		webhooks:   webhooks,
		auth:       auth,
		cfg:        opts,
		log:        logger,
	}
}

// Routes builds the router. Webhook routes read the raw body themselves and
// sit outside the JSON API group.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))
		r.Post("/{provider}", s.handleWebhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout), Geo(s.cfg.TrustedHeaders, s.cfg.DefaultCountry, s.cfg.Dev))

		r.Route("/membership", func(r chi.Router) {
			r.Get("/plans", s.handleListPlans)
			r.With(OptionalUser(s.auth)).Post("/quote", s.handleQuote)

			r.Group(func(r chi.Router) {
				r.Use(RequireUser(s.auth))
				r.Post("/checkout/start", s.handleCheckoutStart)
				r.Get("/me", s.handleMe)
				r.Get("/purchases", s.handleListPurchases)
				r.Get("/purchases/{id}", s.handleGetPurchase)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdminKey(s.cfg.AdminAPIKey))
			r.Post("/purchases/{id}/mark-paid", s.handleMarkPaid)
		})
	})
	return r
}

// NewHTTPServer wraps the handler with the configured socket timeouts.
func NewHTTPServer(cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, s.cfg.Dev, s.log)
}
