// Package redis stores failure buckets in Redis hashes for deployments where
// several instances share one rate-limit view.
package redis

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
)

const (
	bucketKeyPrefix = "audit:bucket:"
	// DefaultTTL keeps a bucket around well past its window so an external
	// policy can still read it.
	DefaultTTL = 24 * time.Hour
)

// incrementScript bumps count, sets first_ts once and last_ts always, then
// refreshes the expiry. Running it as one script makes the upsert atomic.
var incrementScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSETNX', KEYS[1], 'first_ts', ARGV[1])
redis.call('HSET', KEYS[1], 'last_ts', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return count
`)

// BucketStore implements audit.BucketStore on Redis.
type BucketStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// Option configures a BucketStore.
type Option func(*BucketStore)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *BucketStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewBucketStore constructs a Redis-backed bucket store.
func NewBucketStore(client redis.UniversalClient, opts ...Option) *BucketStore {
	s := &BucketStore{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *BucketStore) Increment(ctx context.Context, key audit.BucketKey, now time.Time) error {
	err := incrementScript.Run(ctx, s.client,
		[]string{bucketKey(key)},
		now.UTC().UnixMilli(),
		s.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("upsert audit bucket: %w", err)
	}
	return nil
}

// Get reads a bucket back. Returns a wrapped sentinel.ErrNotFound when absent.
func (s *BucketStore) Get(ctx context.Context, key audit.BucketKey) (*audit.Bucket, error) {
	fields, err := s.client.HGetAll(ctx, bucketKey(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get audit bucket: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("audit bucket: %w", sentinel.ErrNotFound)
	}

	count, err := strconv.ParseInt(fields["count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse bucket count: %w", err)
	}
	first, err := parseMillis(fields["first_ts"])
	if err != nil {
		return nil, err
	}
	last, err := parseMillis(fields["last_ts"])
	if err != nil {
		return nil, err
	}
	return &audit.Bucket{Key: key, Count: count, FirstSeen: first, LastSeen: last}, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bucket timestamp: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func bucketKey(k audit.BucketKey) string {
	return bucketKeyPrefix +
		strconv.FormatInt(k.WindowStart.UTC().UnixMilli(), 10) + ":" +
		string(k.Action) + ":" +
		hex.EncodeToString(k.IPHash) + ":" +
		hex.EncodeToString(k.IdentifierHash)
}
