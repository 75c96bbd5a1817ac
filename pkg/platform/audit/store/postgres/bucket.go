package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
)

// BucketStore implements audit.BucketStore on audit.audit_bucket.
type BucketStore struct {
	db *sql.DB
}

// NewBucketStore creates a PostgreSQL failure bucket store.
func NewBucketStore(db *sql.DB) *BucketStore {
	return &BucketStore{db: db}
}

// Increment upserts the bucket in one statement, so concurrent failures in the
// same window never lose a count.
func (s *BucketStore) Increment(ctx context.Context, key audit.BucketKey, now time.Time) error {
	query := `
		INSERT INTO audit.audit_bucket (
			window_start, action, ip_hash, identifier_hash, count, first_ts, last_ts
		)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (window_start, action, ip_hash, identifier_hash) DO UPDATE SET
			count = audit.audit_bucket.count + 1,
			last_ts = EXCLUDED.last_ts
	`
	_, err := s.db.ExecContext(ctx, query,
		key.WindowStart.UTC(),
		string(key.Action),
		key.IPHash,
		key.IdentifierHash,
		now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert audit bucket: %w", err)
	}
	return nil
}

// Get reads one bucket back. The rate-limit policy consumes buckets directly;
// this exists for operators and tests.
func (s *BucketStore) Get(ctx context.Context, key audit.BucketKey) (*audit.Bucket, error) {
	query := `
		SELECT count, first_ts, last_ts
		FROM audit.audit_bucket
		WHERE window_start = $1 AND action = $2 AND ip_hash = $3 AND identifier_hash = $4
	`
	b := audit.Bucket{Key: key}
	err := s.db.QueryRowContext(ctx, query,
		key.WindowStart.UTC(), string(key.Action), key.IPHash, key.IdentifierHash,
	).Scan(&b.Count, &b.FirstSeen, &b.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit bucket: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get audit bucket: %w", err)
	}
	b.FirstSeen = b.FirstSeen.UTC()
	b.LastSeen = b.LastSeen.UTC()
	return &b, nil
}
