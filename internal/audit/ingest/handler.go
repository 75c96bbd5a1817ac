// Package ingest accepts audit events from collaborating services over HTTP.
// The caller's request id, forwarded client address and user agent become the
// event's request context.
package ingest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/platform/middleware/metadata"
	"audittrail/pkg/requestcontext"
)

// EventWriter persists a single event.
type EventWriter interface {
	Write(ctx context.Context, ev audit.Event) (bool, error)
}

// LoginFailureRecorder buckets and records a failed login.
type LoginFailureRecorder interface {
	LoginFail(ctx context.Context, req audit.RequestContext, identifier, reasonCode string) error
}

// Handler serves /internal/audit endpoints.
type Handler struct {
	writer     EventWriter
	recorder   LoginFailureRecorder
	anonymizer *anonymize.Anonymizer
	logger     *slog.Logger
}

func New(writer EventWriter, recorder LoginFailureRecorder, anonymizer *anonymize.Anonymizer, logger *slog.Logger) *Handler {
	return &Handler{
		writer:     writer,
		recorder:   recorder,
		anonymizer: anonymizer,
		logger:     logger,
	}
}

// Register mounts the endpoints. Callers wrap r with the writer role guard.
func (h *Handler) Register(r chi.Router) {
	r.Post("/events", h.HandleEvent)
	r.Post("/login-failures", h.HandleLoginFailure)
}

// HandleEvent handles POST /internal/audit/events.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	written, err := h.writer.Write(ctx, req.Event(metadata.AuditContext(r, h.anonymizer)))
	if err != nil {
		h.unavailable(ctx, w, req.Action, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, WriteResponse{Written: written})
}

// HandleLoginFailure handles POST /internal/audit/login-failures.
func (h *Handler) HandleLoginFailure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginFailureRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.recorder.LoginFail(ctx, metadata.AuditContext(r, h.anonymizer), req.Identifier, req.ReasonCode); err != nil {
		h.unavailable(ctx, w, string(audit.ActionLoginFailBucketed), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// unavailable reports a fail-closed write failure without leaking its cause.
func (h *Handler) unavailable(ctx context.Context, w http.ResponseWriter, action string, err error) {
	h.logger.ErrorContext(ctx, "audit ingest failed",
		"action", action,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "audit write failed"))
}
