package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/dmitrymomot/printforge/pkg/entitlement"
	"github.com/dmitrymomot/printforge/pkg/firebase"
	"github.com/dmitrymomot/printforge/pkg/httpserver"
	"github.com/dmitrymomot/printforge/pkg/importjob"
	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/ratelimiter"
	"github.com/dmitrymomot/printforge/pkg/requestid"
)

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Verify(ctx context.Context, token string) (firebase.Identity, error)
}

// Entitlements is the subset of *entitlement.Service the API calls.
type Entitlements interface {
	GetEntitlement(ctx context.Context, userID string) (entitlement.View, error)
	StartTrial(ctx context.Context, userID, email string) (entitlement.Entitlement, error)
	DecrementGenerationQuota(ctx context.Context, userID string) (entitlement.Usage, error)
	RecordDownload(ctx context.Context, userID string) (entitlement.Usage, error)
	CreateCheckout(ctx context.Context, userID, email string, plan entitlement.Plan, successURL, cancelURL string) (entitlement.CheckoutSession, error)
	ConfirmCheckout(ctx context.Context, userID, sessionID string) (entitlement.View, error)
	Sync(ctx context.Context, userID string) (entitlement.View, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Jobs is the subset of *importjob.Tracker the API calls.
type Jobs interface {
	CreateImport(ctx context.Context, sourceURL, fileName string, metadata map[string]any) (string, error)
	CreateUpload(ctx context.Context, data []byte, fileName string, metadata map[string]any) (string, error)
	Get(ctx context.Context, id string) (importjob.Job, error)
	Subscribe(ctx context.Context, id string) (*importjob.Subscription, error)
}

type Server struct {
	cfg          Config
	entitlements Entitlements
	jobs         Jobs
	auth         Authenticator
	logger       *slog.Logger
	checks       map[string]httpserver.Check
	keepAlive    time.Duration
	jobLimiter   *ratelimiter.Bucket
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHealthChecks adds readiness checks to GET /healthz.
func WithHealthChecks(checks map[string]httpserver.Check) Option {
	return func(s *Server) {
		for name, check := range checks {
			s.checks[name] = check
		}
	}
}

// WithKeepAlive sets the comment interval on idle event streams.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithJobLimiter limits POST /v1/imports and /v1/uploads per user.
func WithJobLimiter(b *ratelimiter.Bucket) Option {
	return func(s *Server) {
		s.jobLimiter = b
	}
}

func NewServer(cfg Config, ents Entitlements, jobs Jobs, auth Authenticator, opts ...Option) *Server {
	if ents == nil || jobs == nil || auth == nil {
		panic("api: entitlements, jobs and auth are required")
	}
	s := &Server{
		cfg:          cfg,
		entitlements: ents,
		jobs:         jobs,
		auth:         auth,
		logger:       logger.Discard(),
		checks:       make(map[string]httpserver.Check),
		keepAlive:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("api"))
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestid.Header},
		ExposedHeaders: []string{requestid.Header},
		MaxAge:         600,
	}).Handler)

	r.Get("/healthz", httpserver.HealthHandler(s.logger, 0, s.checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", s.stripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/entitlement", s.getEntitlement)
			r.Post("/trial", s.startTrial)
			r.Post("/usage/generate", s.recordGeneration)
			r.Post("/usage/download", s.recordDownload)
			r.Post("/checkout", s.createCheckout)
			r.Post("/checkout/confirm", s.confirmCheckout)
			r.Post("/subscription/sync", s.syncSubscription)

			r.With(s.limitJobs).Post("/imports", s.createImport)
			r.With(s.limitJobs).Post("/uploads", s.createUpload)
			r.Get("/jobs/{id}", s.getJob)
			r.Get("/jobs/{id}/events", s.streamJobEvents)
		})
	})

	return r
}
