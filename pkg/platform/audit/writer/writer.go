// Package writer is the single write path for audit records.
//
// Write assigns the timestamp, resolves request values, sanitizes metadata, signs
// the core fields and appends one row. Persistence failures follow the configured
// policy: fail-open logs and reports false, fail-closed also returns the error.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
	"audittrail/pkg/platform/audit/sanitize"
	"audittrail/pkg/platform/audit/signing"
)

// ErrInvalidEvent is returned (wrapped) when an event carries a value outside its
// closed enumeration.
var ErrInvalidEvent = errors.New("invalid audit event")

// Writer persists audit events.
type Writer struct {
	store    audit.RecordStore
	signer   *signing.Signer
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	clock    func() time.Time
	failOpen bool
	timeout  time.Duration
}

// Option configures the Writer.
type Option func(*Writer)

// WithLogger sets a logger for failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(w *Writer) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// WithFailOpen sets the failure policy. The default is fail-open.
func WithFailOpen(failOpen bool) Option {
	return func(w *Writer) {
		w.failOpen = failOpen
	}
}

// WithTimeout bounds each append. Zero leaves the caller's deadline in charge.
func WithTimeout(d time.Duration) Option {
	return func(w *Writer) {
		w.timeout = d
	}
}

// New creates a Writer.
func New(store audit.RecordStore, signer *signing.Signer, opts ...Option) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	w := &Writer{
		store:    store,
		signer:   signer,
		logger:   slog.Default(),
		tracer:   otel.Tracer("audittrail/audit/writer"),
		clock:    time.Now,
		failOpen: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// FailOpen reports the configured failure policy.
func (w *Writer) FailOpen() bool {
	return w.failOpen
}

// Write persists ev. It returns true when a row was appended. A non-nil error is
// only returned under the fail-closed policy.
func (w *Writer) Write(ctx context.Context, ev audit.Event) (bool, error) {
	failOpen := w.failOpen

	ctx, span := w.tracer.Start(ctx, "audit.write", trace.WithAttributes(
		attribute.String("audit.action", string(ev.Action)),
		attribute.String("audit.result", string(ev.Result)),
	))
	defer span.End()

	rec, err := w.Build(ev)
	if err != nil {
		return w.fail(ctx, span, ev, failOpen, err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	id, err := w.store.Append(ctx, rec)
	if err != nil {
		return w.fail(ctx, span, ev, failOpen, fmt.Errorf("append audit record: %w", err))
	}

	span.SetAttributes(attribute.Int64("audit.id", id))
	if w.metrics != nil {
		w.metrics.ObserveWriteDuration(time.Since(start).Seconds())
		w.metrics.IncWritten()
	}
	return true, nil
}

// Build turns ev into a signed record without persisting it.
func (w *Writer) Build(ev audit.Event) (*audit.Record, error) {
	if !ev.ActorType.Valid() {
		return nil, fmt.Errorf("%w: actor type %q", ErrInvalidEvent, ev.ActorType)
	}
	if !ev.Action.Valid() {
		return nil, fmt.Errorf("%w: action %q", ErrInvalidEvent, ev.Action)
	}
	if !ev.Result.Valid() {
		return nil, fmt.Errorf("%w: result %q", ErrInvalidEvent, ev.Result)
	}

	rec := &audit.Record{
		Timestamp:  w.clock().UTC().Truncate(time.Millisecond),
		ActorType:  ev.ActorType,
		ActorID:    ev.ActorID,
		Action:     ev.Action,
		Result:     ev.Result,
		ReasonCode: audit.Truncate(ev.ReasonCode, audit.MaxReasonCodeLength),
		TargetType: audit.Truncate(ev.TargetType, audit.MaxTargetTypeLength),
		TargetID:   ev.TargetID,
		RequestID:  validRequestID(firstString(ev.RequestID, ev.Request.RequestID)),
		IPHash:     firstHash(ev.IPHash, ev.Request.IPHash),
		UserAgent:  anonymize.TruncateUserAgent(firstString(ev.UserAgent, ev.Request.UserAgent)),
		Meta:       sanitize.Sanitize(ev.Meta),
	}
	rec.Signature = w.signer.Sign(signing.FieldsOf(rec))
	return rec, nil
}

func (w *Writer) fail(ctx context.Context, span trace.Span, ev audit.Event, failOpen bool, err error) (bool, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "audit write failed")
	if w.metrics != nil {
		w.metrics.IncFailed(failOpen)
	}

	requestID := firstString(ev.RequestID, ev.Request.RequestID)
	if failOpen {
		w.logger.ErrorContext(ctx, "audit write failed",
			"action", ev.Action,
			"result", ev.Result,
			"request_id", requestID,
			"error", err,
		)
		return false, nil
	}

	w.logger.ErrorContext(ctx, "CRITICAL: audit write failed",
		"action", ev.Action,
		"result", ev.Result,
		"request_id", requestID,
		"error", err,
	)
	return false, fmt.Errorf("audit write: %w", err)
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstHash(values ...[]byte) []byte {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

// validRequestID returns id when it is a 36-character UUID, else "".
func validRequestID(id string) string {
	if len(id) != 36 {
		return ""
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}
