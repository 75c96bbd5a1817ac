package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
)

// InMemoryStore is an append-only RecordStore for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	nextID  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.nextID = 1
}

func (s *InMemoryStore) Append(ctx context.Context, rec *audit.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("append audit record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	stored.ID = s.nextID
	s.nextID++
	s.records = append(s.records, stored)
	rec.ID = stored.ID
	return stored.ID, nil
}

func (s *InMemoryStore) Get(_ context.Context, id int64) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("audit record %d: %w", id, sentinel.ErrNotFound)
}

// Find returns matches ordered by timestamp then id, most recent first.
func (s *InMemoryStore) Find(_ context.Context, c audit.Criteria) ([]audit.Record, error) {
	s.mu.RLock()
	matched := s.filter(c)
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	if c.Offset > 0 {
		if c.Offset >= len(matched) {
			return []audit.Record{}, nil
		}
		matched = matched[c.Offset:]
	}
	if c.Limit > 0 && len(matched) > c.Limit {
		matched = matched[:c.Limit]
	}
	return matched, nil
}

func (s *InMemoryStore) Count(_ context.Context, c audit.Criteria) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filter(c))), nil
}

func (s *InMemoryStore) CountByAction(_ context.Context, since time.Time, limit int) ([]audit.Count, error) {
	counts := s.groupSince(since, func(r *audit.Record) string { return string(r.Action) })
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

func (s *InMemoryStore) CountByResult(_ context.Context, since time.Time) ([]audit.Count, error) {
	return s.groupSince(since, func(r *audit.Record) string { return string(r.Result) }), nil
}

func (s *InMemoryStore) CountSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for i := range s.records {
		if !s.records[i].Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// filter must be called with the read lock held.
func (s *InMemoryStore) filter(c audit.Criteria) []audit.Record {
	out := []audit.Record{}
	for i := range s.records {
		if matches(&s.records[i], c) {
			out = append(out, s.records[i])
		}
	}
	return out
}

// groupSince counts records at or after since by key, largest count first.
func (s *InMemoryStore) groupSince(since time.Time, key func(*audit.Record) string) []audit.Count {
	s.mu.RLock()
	totals := map[string]int64{}
	for i := range s.records {
		if !s.records[i].Timestamp.Before(since) {
			totals[key(&s.records[i])]++
		}
	}
	s.mu.RUnlock()

	counts := make([]audit.Count, 0, len(totals))
	for k, n := range totals {
		counts = append(counts, audit.Count{Key: k, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Key < counts[j].Key
	})
	return counts
}

func matches(r *audit.Record, c audit.Criteria) bool {
	if !c.From.IsZero() && r.Timestamp.Before(c.From) {
		return false
	}
	if !c.To.IsZero() && r.Timestamp.After(c.To) {
		return false
	}
	if c.Action != "" && r.Action != c.Action {
		return false
	}
	if c.Result != "" && r.Result != c.Result {
		return false
	}
	if c.ActorType != "" && r.ActorType != c.ActorType {
		return false
	}
	if c.ActorID != nil && (r.ActorID == nil || *r.ActorID != *c.ActorID) {
		return false
	}
	if c.TargetType != "" && r.TargetType != c.TargetType {
		return false
	}
	if c.TargetID != nil && (r.TargetID == nil || *r.TargetID != *c.TargetID) {
		return false
	}
	if c.RequestID != "" && r.RequestID != c.RequestID {
		return false
	}
	return true
}
