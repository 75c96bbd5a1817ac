package audit

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks RecordStore,BucketStore

import (
	"context"
	"time"
)

// RecordStore persists and reads audit records. Records are append-only: there is
// no update or delete path.
type RecordStore interface {
	// Append inserts rec atomically and returns its assigned id.
	Append(ctx context.Context, rec *Record) (int64, error)
	// Get returns sentinel.ErrNotFound (wrapped) when no row matches.
	Get(ctx context.Context, id int64) (*Record, error)
	// Find returns matching records, most recent first.
	Find(ctx context.Context, c Criteria) ([]Record, error)
	// Count ignores Limit and Offset.
	Count(ctx context.Context, c Criteria) (int64, error)
	// CountByAction groups records at or after since, largest first.
	CountByAction(ctx context.Context, since time.Time, limit int) ([]Count, error)
	CountByResult(ctx context.Context, since time.Time) ([]Count, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// BucketStore owns fixed-window failure counters.
type BucketStore interface {
	// Increment inserts the bucket with count 1 or atomically bumps an existing one.
	Increment(ctx context.Context, key BucketKey, now time.Time) error
}
