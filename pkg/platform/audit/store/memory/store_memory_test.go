package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
)

var base = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *InMemoryStore, recs ...audit.Record) {
	t.Helper()
	for i := range recs {
		_, err := s.Append(context.Background(), &recs[i])
		require.NoError(t, err)
	}
}

func TestInMemoryStore_AppendAndGet(t *testing.T) {
	s := NewInMemoryStore()
	rec := &audit.Record{Timestamp: base, Action: audit.ActionLoginSuccess, Result: audit.ResultSuccess}

	id, err := s.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, id, rec.ID)

	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, audit.ActionLoginSuccess, got.Action)

	_, err = s.Get(context.Background(), 99)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_Find(t *testing.T) {
	s := NewInMemoryStore()
	seed(t, s,
		audit.Record{Timestamp: base, Action: audit.ActionLoginSuccess, Result: audit.ResultSuccess, ActorID: audit.Int64(1)},
		audit.Record{Timestamp: base.Add(time.Minute), Action: audit.ActionLoginFailBucketed, Result: audit.ResultFail},
		audit.Record{Timestamp: base.Add(2 * time.Minute), Action: audit.ActionLoginSuccess, Result: audit.ResultSuccess, ActorID: audit.Int64(2)},
		audit.Record{Timestamp: base.Add(48 * time.Hour), Action: audit.ActionLoginSuccess, Result: audit.ResultSuccess},
	)
	ctx := context.Background()

	t.Run("most recent first within range", func(t *testing.T) {
		got, err := s.Find(ctx, audit.Criteria{From: base, To: base.Add(time.Hour)})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int64{3, 2, 1}, []int64{got[0].ID, got[1].ID, got[2].ID})
	})

	t.Run("filters compose", func(t *testing.T) {
		got, err := s.Find(ctx, audit.Criteria{Action: audit.ActionLoginSuccess, ActorID: audit.Int64(2)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(3), got[0].ID)
	})

	t.Run("limit and offset page through results", func(t *testing.T) {
		got, err := s.Find(ctx, audit.Criteria{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].ID)

		empty, err := s.Find(ctx, audit.Criteria{Limit: 2, Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("count ignores paging", func(t *testing.T) {
		n, err := s.Count(ctx, audit.Criteria{Result: audit.ResultSuccess, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestInMemoryStore_Aggregates(t *testing.T) {
	s := NewInMemoryStore()
	seed(t, s,
		audit.Record{Timestamp: base.Add(-time.Hour), Action: audit.ActionPurged, Result: audit.ResultSuccess},
		audit.Record{Timestamp: base, Action: audit.ActionLoginFailBucketed, Result: audit.ResultFail},
		audit.Record{Timestamp: base, Action: audit.ActionLoginFailBucketed, Result: audit.ResultFail},
		audit.Record{Timestamp: base, Action: audit.ActionLoginSuccess, Result: audit.ResultSuccess},
	)
	ctx := context.Background()

	byAction, err := s.CountByAction(ctx, base, 10)
	require.NoError(t, err)
	assert.Equal(t, []audit.Count{
		{Key: string(audit.ActionLoginFailBucketed), Count: 2},
		{Key: string(audit.ActionLoginSuccess), Count: 1},
	}, byAction)

	top, err := s.CountByAction(ctx, base, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	byResult, err := s.CountByResult(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []audit.Count{{Key: "fail", Count: 2}, {Key: "success", Count: 1}}, byResult)

	total, err := s.CountSince(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(context.Background(), &audit.Record{Timestamp: base, Action: audit.ActionLoginSuccess})
		}()
	}
	wg.Wait()

	n, err := s.Count(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}

func TestInMemoryBucketStore_ConcurrentIncrements(t *testing.T) {
	s := NewInMemoryBucketStore()
	key := audit.BucketKey{WindowStart: base, Action: audit.ActionLoginFailBucketed, IPHash: []byte{1}, IdentifierHash: []byte{2}}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Increment(context.Background(), key, base)
		}()
	}
	wg.Wait()

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, int64(20), got.Count)
}
