package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/booking"
	"github.com/hallbook/hallbook/internal/integration"
	"github.com/hallbook/hallbook/internal/observability"
	"github.com/hallbook/hallbook/internal/platform/health"
	"github.com/hallbook/hallbook/internal/platform/httpx"
	"github.com/hallbook/hallbook/internal/tenant"
	"github.com/hallbook/hallbook/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Resolver           tenant.Resolver
	BookingHandler     *booking.Handler
	BillingHandler     *billing.Handler
	IntegrationHandler *integration.Handler
	JobHandler         *jobs.Handler
	Health             *health.Checker
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, r, httpx.NewError(httpx.ErrNotFound, "resource not found"))
	})

	if params.Health != nil {
		r.Get("/healthz", params.Health.Handler())
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]bool{"healthy": true})
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.BookingHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(PublicRateLimit(params.Config))
			params.BookingHandler.MountPublicRoutes(r)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(params.Resolver))
		if params.BookingHandler != nil {
			params.BookingHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.IntegrationHandler != nil {
			params.IntegrationHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(r)
		}
	})

	return r
}
