package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mpk-pharma/kanha/internal/auth"
	"github.com/mpk-pharma/kanha/internal/invoices"
	"github.com/mpk-pharma/kanha/internal/items"
	"github.com/mpk-pharma/kanha/internal/observability"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/jobs"
	"github.com/mpk-pharma/kanha/report"
)

// HealthCheck reports whether a dependency answers.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthService     *auth.Service
	AuthHandler     *auth.Handler
	ItemsHandler    *items.Handler
	InvoicesHandler *invoices.Handler
	JobHandler      *jobs.Handler
	ReportHandler   *report.Handler
	Metrics         *observability.Metrics
	HealthChecks    []HealthCheck
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.HealthChecks, logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	basePath := "/api/v1"
	if params.Config != nil && params.Config.AppBasePath != "" {
		basePath = params.Config.AppBasePath
	}
	r.Route(basePath, func(r chi.Router) {
		if params.AuthHandler != nil {
			if params.ItemsHandler != nil {
				params.AuthHandler.AddUserListings(auth.UserListing{Path: "items", Handler: params.ItemsHandler.ListAllByUser})
			}
			if params.InvoicesHandler != nil {
				params.AuthHandler.AddUserListings(auth.UserListing{Path: "invoices", Handler: params.InvoicesHandler.ListByUser})
			}
			r.Route("/users", params.AuthHandler.MountRoutes)
		}
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(params.AuthService, logger))
			if params.ItemsHandler != nil {
				r.Route("/items", params.ItemsHandler.MountRoutes)
			}
			if params.InvoicesHandler != nil {
				r.Route("/invoices", params.InvoicesHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
			if params.ReportHandler != nil {
				r.Route("/reports", params.ReportHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// healthHandler runs every check with a short deadline. Any failure turns the
// response into 503 and names the failing dependency.
func healthHandler(checks []HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			if err := c.Check(ctx); err != nil {
				logger.Warn("health check failed", slog.String("dependency", c.Name), slog.Any("error", err))
				status[c.Name] = "unavailable"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[c.Name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
