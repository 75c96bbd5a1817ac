package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"audittrail/pkg/platform/audit"
)

// InMemoryBucketStore keeps failure buckets in a map guarded by a mutex, which
// makes Increment atomic within one process.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*audit.Bucket
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{buckets: make(map[string]*audit.Bucket)}
}

func (s *InMemoryBucketStore) Increment(ctx context.Context, key audit.BucketKey, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("increment bucket: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := bucketKey(key)
	if b, ok := s.buckets[k]; ok {
		b.Count++
		b.LastSeen = now
		return nil
	}
	s.buckets[k] = &audit.Bucket{Key: key, Count: 1, FirstSeen: now, LastSeen: now}
	return nil
}

// Get returns a copy of the bucket for key.
func (s *InMemoryBucketStore) Get(key audit.BucketKey) (audit.Bucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketKey(key)]
	if !ok {
		return audit.Bucket{}, false
	}
	return *b, true
}

// All returns every bucket ordered by window start.
func (s *InMemoryBucketStore) All() []audit.Bucket {
	s.mu.Lock()
	out := make([]audit.Bucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, *b)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.WindowStart.Before(out[j].Key.WindowStart)
	})
	return out
}

func bucketKey(k audit.BucketKey) string {
	return fmt.Sprintf("%d|%s|%s|%s",
		k.WindowStart.UTC().UnixMilli(),
		k.Action,
		hex.EncodeToString(k.IPHash),
		hex.EncodeToString(k.IdentifierHash),
	)
}
