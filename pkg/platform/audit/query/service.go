// Package query is the read side of the audit trail: filtered, paginated and
// time-bounded listings, single-record lookup, aggregate stats and CSV export.
// Every record leaves through Project, so IP hashes and signatures are never
// exposed.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
)

const (
	// StatsWindow is the trailing window covered by Stats.
	StatsWindow = 7 * 24 * time.Hour
	// StatsPeriod labels StatsWindow for readers.
	StatsPeriod = "7 days"
	// TopActions bounds the per-action breakdown in Stats.
	TopActions = 10
)

// ListResult is one page of records plus pagination totals.
type ListResult struct {
	Records   []View
	Page      int
	PageSize  int
	PageCount int
	Total     int64
}

// ActionCount is one row of the per-action breakdown.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// ResultCount is one row of the per-result breakdown.
type ResultCount struct {
	Result string `json:"result"`
	Count  int64  `json:"count"`
}

// Stats summarizes recent activity.
type Stats struct {
	Total    int64         `json:"total"`
	ByAction []ActionCount `json:"byAction"`
	ByResult []ResultCount `json:"byResult"`
	Period   string        `json:"period"`
}

// Service answers audit read requests.
type Service struct {
	store   audit.RecordStore
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	clock   func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source used to resolve default ranges.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a query Service.
func New(store audit.RecordStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("audittrail/audit/query"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// List returns one page of records matching f, most recent first. Total comes
// from an independent count under the same criteria.
func (s *Service) List(ctx context.Context, f Filter, p Page) (result *ListResult, err error) {
	ctx, done := s.observe(ctx, "list")
	defer func() { done(err) }()

	p = NewPage(p.Number, p.Size)
	c := f.Criteria(s.clock(), ListCeiling)

	total, err := s.store.Count(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("count audit records: %w", err)
	}

	result = &ListResult{
		Page:      p.Number,
		PageSize:  p.Size,
		PageCount: int((total + int64(p.Size) - 1) / int64(p.Size)),
		Total:     total,
	}
	if p.Number > result.PageCount {
		result.Records = []View{}
		return result, nil
	}

	c.Limit = p.Size
	c.Offset = p.Offset()
	recs, err := s.store.Find(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("find audit records: %w", err)
	}
	result.Records = ProjectAll(recs)
	return result, nil
}

// Get returns the projected record or (nil, nil) when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (view *View, err error) {
	ctx, done := s.observe(ctx, "get")
	defer func() { done(err) }()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	v := Project(*rec)
	return &v, nil
}

// Record returns the stored record including its signature, for verification
// tooling. It is not exposed over HTTP.
func (s *Service) Record(ctx context.Context, id int64) (*audit.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return rec, nil
}

// Actions returns the closed action enumeration in display order.
func (s *Service) Actions() []audit.Action {
	return audit.Actions()
}

// Stats computes totals over the trailing StatsWindow. The three aggregates are
// independent and run concurrently.
func (s *Service) Stats(ctx context.Context) (stats *Stats, err error) {
	ctx, done := s.observe(ctx, "stats")
	defer func() { done(err) }()

	since := s.clock().UTC().Add(-StatsWindow)
	out := &Stats{Period: StatsPeriod, ByAction: []ActionCount{}, ByResult: []ResultCount{}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	g.Go(func() error {
		n, err := s.store.CountSince(gctx, since)
		if err != nil {
			return fmt.Errorf("count recent audit records: %w", err)
		}
		out.Total = n
		return nil
	})
	g.Go(func() error {
		counts, err := s.store.CountByAction(gctx, since, TopActions)
		if err != nil {
			return fmt.Errorf("count audit records by action: %w", err)
		}
		for _, c := range counts {
			out.ByAction = append(out.ByAction, ActionCount{Action: c.Key, Count: c.Count})
		}
		return nil
	})
	g.Go(func() error {
		counts, err := s.store.CountByResult(gctx, since)
		if err != nil {
			return fmt.Errorf("count audit records by result: %w", err)
		}
		for _, c := range counts {
			out.ByResult = append(out.ByResult, ResultCount{Result: c.Key, Count: c.Count})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportCSV renders up to ExportRowLimit records matching f, with the range
// bounded by ExportCeiling.
func (s *Service) ExportCSV(ctx context.Context, f Filter) (csv string, err error) {
	ctx, done := s.observe(ctx, "export")
	defer func() { done(err) }()

	c := f.Criteria(s.clock(), ExportCeiling)
	c.Limit = ExportRowLimit
	recs, err := s.store.Find(ctx, c)
	if err != nil {
		return "", fmt.Errorf("find audit records for export: %w", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("audit.rows", len(recs)))
	return EncodeCSV(recs), nil
}

// observe starts a span and returns a completion func that records latency and
// failures for op.
func (s *Service) observe(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "audit.query."+op)
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
			s.logger.ErrorContext(ctx, "audit query failed", "operation", op, "error", err)
			if s.metrics != nil {
				s.metrics.IncErrors(op)
			}
		} else if s.metrics != nil {
			s.metrics.ObserveDuration(op, time.Since(start).Seconds())
		}
		span.End()
	}
}
