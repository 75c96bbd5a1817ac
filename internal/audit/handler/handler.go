// Package handler exposes the audit trail read surface to super admins.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/query"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/requestcontext"
)

const (
	msgFetchFailed  = "failed to fetch audit logs"
	msgExportFailed = "failed to export audit logs"

	// DefaultExportRateLimit is the number of exports allowed per client IP
	// per minute.
	DefaultExportRateLimit = 10
)

// Service is the read side the handler depends on.
type Service interface {
	List(ctx context.Context, f query.Filter, p query.Page) (*query.ListResult, error)
	Get(ctx context.Context, id int64) (*query.View, error)
	Actions() []audit.Action
	Stats(ctx context.Context) (*query.Stats, error)
	ExportCSV(ctx context.Context, f query.Filter) (string, error)
}

// Handler serves /admin/audit endpoints.
type Handler struct {
	service     Service
	logger      *slog.Logger
	exportLimit int
}

// New constructs the handler. exportLimit <= 0 selects DefaultExportRateLimit.
func New(service Service, logger *slog.Logger, exportLimit int) *Handler {
	if exportLimit <= 0 {
		exportLimit = DefaultExportRateLimit
	}
	return &Handler{
		service:     service,
		logger:      logger,
		exportLimit: exportLimit,
	}
}

// Register mounts the endpoints. Callers wrap r with the admin guard.
func (h *Handler) Register(r chi.Router) {
	r.Get("/logs", h.HandleList)
	r.Get("/logs/{id}", h.HandleGet)
	r.Get("/actions", h.HandleActions)
	r.Get("/stats", h.HandleStats)
	r.With(httprate.Limit(
		h.exportLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many export requests"))
		}),
	)).Get("/export", h.HandleExport)
}

// HandleList handles GET /admin/audit/logs.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	result, err := h.service.List(ctx, query.ParseFilter(q), query.ParsePage(q))
	if err != nil {
		h.fail(ctx, w, "list", err, msgFetchFailed)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{
		Data: result.Records,
		Meta: ListMeta{Pagination: Pagination{
			Page:      result.Page,
			PageSize:  result.PageSize,
			PageCount: result.PageCount,
			Total:     result.Total,
		}},
	})
}

// HandleGet handles GET /admin/audit/logs/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid id"))
		return
	}

	view, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get", err, msgFetchFailed)
		return
	}
	if view == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit log not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DataResponse{Data: view})
}

// HandleActions handles GET /admin/audit/actions.
func (h *Handler) HandleActions(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, DataResponse{Data: h.service.Actions()})
}

// HandleStats handles GET /admin/audit/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.fail(ctx, w, "stats", err, msgFetchFailed)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DataResponse{Data: stats})
}

// HandleExport handles GET /admin/audit/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	csv, err := h.service.ExportCSV(ctx, query.ParseFilter(r.URL.Query()))
	if err != nil {
		h.fail(ctx, w, "export", err, msgExportFailed)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename(requestcontext.Now(ctx))+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(csv))
}

// ExportFilename names the export after the UTC date it was produced.
func ExportFilename(now time.Time) string {
	return "audit-logs-" + now.UTC().Format("2006-01-02") + ".csv"
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error, msg string) {
	h.logger.ErrorContext(ctx, "audit admin request failed",
		"operation", op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
		"admin", requestcontext.AdminSubject(ctx),
	)
	httputil.WriteMessage(w, http.StatusInternalServerError, dErrors.CodeInternal, msg)
}
