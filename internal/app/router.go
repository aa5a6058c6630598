package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-crm/internal/crm"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/reconcile"
	"github.com/odyssey-erp/odyssey-crm/internal/reporting"
	"github.com/odyssey-erp/odyssey-crm/internal/salesdate"
	"github.com/odyssey-erp/odyssey-crm/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CRMHandler       *crm.Handler
	SalesDateHandler *salesdate.Handler
	ReconcileHandler *reconcile.Handler
	ReportingHandler *reporting.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	// Ready reports whether backing services are reachable. Optional.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r.Context()); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("readiness check", slog.Any("error", err))
				}
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if params.CRMHandler != nil {
		params.CRMHandler.MountRoutes(r)
	}
	if params.SalesDateHandler != nil {
		params.SalesDateHandler.MountRoutes(r)
	}
	if params.ReconcileHandler != nil {
		params.ReconcileHandler.MountRoutes(r)
	}
	if params.ReportingHandler != nil {
		params.ReportingHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
