// Package bucket aggregates repeated login failures into fixed time windows.
//
// Each failure bumps one counter keyed by (window start, action, ip hash,
// identifier hash). Counters are consumed by an external rate-limiting policy and
// never read back here. Recording is best-effort: errors are logged, not returned.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
)

// DefaultWindow is the width of a failure window.
const DefaultWindow = 5 * time.Minute

// Bucketer records failures into windowed counters.
type Bucketer struct {
	store      audit.BucketStore
	anonymizer *anonymize.Anonymizer
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     *slog.Logger
	metrics    *Metrics
	clock      func() time.Time
	window     time.Duration
}

// BreakerSettings tunes the circuit breaker around the bucket store.
type BreakerSettings struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

type options struct {
	logger   *slog.Logger
	metrics  *Metrics
	clock    func() time.Time
	window   time.Duration
	settings BreakerSettings
}

// Option configures the Bucketer.
type Option func(*options)

// WithLogger sets a logger for failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides the time source used to pick the window.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithBreaker overrides the circuit breaker thresholds.
func WithBreaker(s BreakerSettings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// New creates a Bucketer.
func New(store audit.BucketStore, anonymizer *anonymize.Anonymizer, opts ...Option) (*Bucketer, error) {
	if store == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	if anonymizer == nil {
		return nil, fmt.Errorf("anonymizer is required")
	}
	o := options{
		logger: slog.Default(),
		clock:  time.Now,
		window: DefaultWindow,
		settings: BreakerSettings{
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	b := &Bucketer{
		store:      store,
		anonymizer: anonymizer,
		logger:     o.logger,
		metrics:    o.metrics,
		clock:      o.clock,
		window:     o.window,
	}
	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "audit-bucket-store",
		MaxRequests: 1,
		Timeout:     o.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("bucket store circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if b.metrics != nil {
				b.metrics.SetCircuitBreakerState(float64(to))
			}
		},
	})
	return b, nil
}

// WindowStart floors t to the start of its window, in UTC.
func (b *Bucketer) WindowStart(t time.Time) time.Time {
	return WindowStart(t, b.window)
}

// WindowStart floors t to a multiple of width since the Unix epoch, in UTC.
// With a 5 minute width 14:07 and 14:09 map to 14:05 and 14:10 maps to itself.
func WindowStart(t time.Time, width time.Duration) time.Time {
	return t.UTC().Truncate(width)
}

// RecordFailure bumps the login-failure counter for ipHash and rawIdentifier in
// the current window. An empty ipHash is skipped.
func (b *Bucketer) RecordFailure(ctx context.Context, ipHash []byte, rawIdentifier string) {
	if len(ipHash) == 0 {
		b.logger.DebugContext(ctx, "bucket skipped: no ip hash")
		return
	}

	now := b.clock().UTC()
	key := audit.BucketKey{
		WindowStart:    b.WindowStart(now),
		Action:         audit.ActionLoginFailBucketed,
		IPHash:         ipHash,
		IdentifierHash: b.anonymizer.HashIdentifier(rawIdentifier),
	}

	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.store.Increment(ctx, key, now)
	})
	switch {
	case err == nil:
		if b.metrics != nil {
			b.metrics.IncUpserts()
		}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		if b.metrics != nil {
			b.metrics.IncCircuitBreakerDrops()
		}
		b.logger.WarnContext(ctx, "bucket upsert skipped: circuit open",
			"window_start", key.WindowStart,
		)
	default:
		if b.metrics != nil {
			b.metrics.IncFailures()
		}
		b.logger.ErrorContext(ctx, "bucket upsert failed",
			"window_start", key.WindowStart,
			"error", err,
		)
	}
}
