// Package httptransport assembles the process router: shared middleware,
// health and metrics endpoints, and the audit surfaces.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "audittrail/internal/audit/handler"
	"audittrail/internal/audit/ingest"
	"audittrail/internal/platform/metrics"
	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/platform/middleware/admin"
	"audittrail/pkg/platform/middleware/metadata"
	"audittrail/pkg/platform/middleware/request"
	"audittrail/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the pieces NewRouter mounts.
type Deps struct {
	Logger         *slog.Logger
	AdminJWTSecret string
	Admin          *audithandler.Handler
	Ingest         *ingest.Handler
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Health         map[string]HealthCheck
}

// NewRouter wires all endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", healthHandler(d.Logger, d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	if d.Admin != nil {
		r.Route("/admin/audit", func(r chi.Router) {
			r.Use(admin.RequireSuperAdmin(d.AdminJWTSecret, d.Logger))
			d.Admin.Register(r)
		})
	}
	if d.Ingest != nil {
		r.Route("/internal/audit", func(r chi.Router) {
			r.Use(admin.RequireRole(d.AdminJWTSecret, d.Logger, admin.RoleAuditWriter))
			d.Ingest.Register(r)
		})
	}
	return r
}

func healthHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				status[name] = "unavailable"
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "dependency unavailable"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "dependencies": status})
	}
}
