package query

import (
	"math"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/pkg/platform/audit"
)

var now = time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

func TestParseFilter(t *testing.T) {
	t.Run("valid values become typed fields", func(t *testing.T) {
		f := ParseFilter(url.Values{
			"action":     {"LOGIN_FAIL_BUCKETED"},
			"result":     {"fail"},
			"actorType":  {"anonymous"},
			"actorId":    {"12"},
			"targetType": {"user"},
			"targetId":   {"7"},
			"requestId":  {"0B7E6A55-8F0E-4A58-9D0C-2F3F8BD5A0A1"},
		})

		assert.Equal(t, audit.ActionLoginFailBucketed, f.Action)
		assert.Equal(t, audit.ResultFail, f.Result)
		assert.Equal(t, audit.ActorAnonymous, f.ActorType)
		require.NotNil(t, f.ActorID)
		assert.Equal(t, int64(12), *f.ActorID)
		assert.Equal(t, "user", f.TargetType)
		require.NotNil(t, f.TargetID)
		assert.Equal(t, int64(7), *f.TargetID)
		assert.Equal(t, "0B7E6A55-8F0E-4A58-9D0C-2F3F8BD5A0A1", f.RequestID)
	})

	t.Run("invalid values are ignored", func(t *testing.T) {
		f := ParseFilter(url.Values{
			"action":     {"DROP TABLE"},
			"result":     {"maybe"},
			"actorType":  {"robot"},
			"actorId":    {"-3"},
			"targetType": {strings.Repeat("x", 51)},
			"targetId":   {"abc"},
			"requestId":  {"not-a-uuid"},
			"from":       {"yesterday"},
			"to":         {"soon"},
		})
		assert.Equal(t, Filter{}, f)
	})

	t.Run("zero ids are ignored", func(t *testing.T) {
		f := ParseFilter(url.Values{"actorId": {"0"}, "targetId": {"0"}})
		assert.Nil(t, f.ActorID)
		assert.Nil(t, f.TargetID)
	})

	t.Run("date-only to covers the whole day", func(t *testing.T) {
		f := ParseFilter(url.Values{"from": {"2025-03-01"}, "to": {"2025-03-10"}})
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), f.From)
		assert.Equal(t, time.Date(2025, 3, 10, 23, 59, 59, 999_000_000, time.UTC), f.To)
	})

	t.Run("full timestamps are kept as given", func(t *testing.T) {
		f := ParseFilter(url.Values{"to": {"2025-03-10T08:15:00+01:00"}})
		assert.Equal(t, time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC), f.To)
	})
}

func TestFilterCriteria_Range(t *testing.T) {
	t.Run("defaults to the trailing seven days", func(t *testing.T) {
		c := Filter{}.Criteria(now, ListCeiling)
		assert.Equal(t, now, c.To)
		assert.Equal(t, now.Add(-7*24*time.Hour), c.From)
	})

	t.Run("60 day list range narrows to 31 days ending at to", func(t *testing.T) {
		to := now.Add(-24 * time.Hour)
		c := Filter{From: to.Add(-60 * 24 * time.Hour), To: to}.Criteria(now, ListCeiling)
		assert.Equal(t, to, c.To)
		assert.Equal(t, to.Add(-31*24*time.Hour), c.From)
	})

	t.Run("120 day export range narrows to 90 days", func(t *testing.T) {
		c := Filter{From: now.Add(-120 * 24 * time.Hour)}.Criteria(now, ExportCeiling)
		assert.Equal(t, now, c.To)
		assert.Equal(t, 90*24*time.Hour, c.To.Sub(c.From))
	})

	t.Run("ranges within the ceiling are untouched", func(t *testing.T) {
		from := now.Add(-20 * 24 * time.Hour)
		c := Filter{From: from}.Criteria(now, ListCeiling)
		assert.Equal(t, from, c.From)
	})

	t.Run("filters are carried over", func(t *testing.T) {
		c := Filter{Action: audit.ActionPurged, TargetType: "user"}.Criteria(now, ListCeiling)
		assert.Equal(t, audit.ActionPurged, c.Action)
		assert.Equal(t, "user", c.TargetType)
		assert.Zero(t, c.Limit)
	})
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		name     string
		page     string
		pageSize string
		want     Page
	}{
		{"defaults", "", "", Page{Number: 1, Size: 25}},
		{"explicit", "3", "50", Page{Number: 3, Size: 50}},
		{"size above max is clamped", "1", "1000", Page{Number: 1, Size: 100}},
		{"zero size takes the default", "1", "0", Page{Number: 1, Size: 25}},
		{"negative values clamp to one", "-4", "-2", Page{Number: 1, Size: 1}},
		{"garbage takes the defaults", "two", "many", Page{Number: 1, Size: 25}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParsePage(url.Values{"page": {tc.page}, "pageSize": {tc.pageSize}})
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, 50, Page{Number: 3, Size: 25}.Offset())
}

func TestPageOffset(t *testing.T) {
	huge := ParsePage(url.Values{"page": {"4611686018427387904"}, "pageSize": {"4"}})
	require.Equal(t, 4611686018427387904, huge.Number)

	cases := []struct {
		name string
		page Page
		want int
	}{
		{"first page", NewPage(1, 25), 0},
		{"third page", NewPage(3, 25), 50},
		{"last page before overflow", Page{Number: math.MaxInt/100 + 1, Size: 100}, (math.MaxInt / 100) * 100},
		{"product would wrap negative", huge, math.MaxInt},
		{"largest page number", NewPage(math.MaxInt, MaxPageSize), math.MaxInt},
		{"zero value", Page{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.page.Offset()
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 0)
		})
	}
}
