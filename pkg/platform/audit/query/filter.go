package query

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"audittrail/pkg/platform/audit"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100

	// DefaultRange applies when a bound is not supplied.
	DefaultRange = 7 * 24 * time.Hour
	// ListCeiling bounds the range of a paginated listing.
	ListCeiling = 31 * 24 * time.Hour
	// ExportCeiling bounds the range of a CSV export.
	ExportCeiling = 90 * 24 * time.Hour
	// ExportRowLimit caps the rows in one export.
	ExportRowLimit = 10_000
)

var requestIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)

const dateOnly = "2006-01-02"

// timestampLayouts are tried in order for from/to values.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Filter is a validated, typed filter. A zero value selects everything within the
// default range.
type Filter struct {
	From       time.Time
	To         time.Time
	Action     audit.Action
	Result     audit.Result
	ActorType  audit.ActorType
	ActorID    *int64
	TargetType string
	TargetID   *int64
	RequestID  string
}

// ParseFilter converts raw query parameters into a Filter. Each field has its own
// validator; a value that fails it is ignored, never reported.
func ParseFilter(v url.Values) Filter {
	var f Filter
	if t, ok := parseBound(v.Get("from"), false); ok {
		f.From = t
	}
	if t, ok := parseBound(v.Get("to"), true); ok {
		f.To = t
	}
	if a, err := audit.ParseAction(v.Get("action")); err == nil {
		f.Action = a
	}
	if r, err := audit.ParseResult(v.Get("result")); err == nil {
		f.Result = r
	}
	if t, err := audit.ParseActorType(v.Get("actorType")); err == nil {
		f.ActorType = t
	}
	f.ActorID = positiveInt(v.Get("actorId"))
	if tt := v.Get("targetType"); tt != "" && len([]rune(tt)) <= audit.MaxTargetTypeLength {
		f.TargetType = tt
	}
	f.TargetID = positiveInt(v.Get("targetId"))
	if id := v.Get("requestId"); requestIDPattern.MatchString(id) {
		f.RequestID = id
	}
	return f
}

// Criteria resolves the time range against now and ceiling. Missing bounds
// default to [now-DefaultRange, now]; a range wider than ceiling keeps To and
// moves From forward.
func (f Filter) Criteria(now time.Time, ceiling time.Duration) audit.Criteria {
	now = now.UTC()
	from := now.Add(-DefaultRange)
	if !f.From.IsZero() {
		from = f.From
	}
	to := now
	if !f.To.IsZero() {
		to = f.To
	}
	if to.Sub(from) > ceiling {
		from = to.Add(-ceiling)
	}

	return audit.Criteria{
		From:       from,
		To:         to,
		Action:     f.Action,
		Result:     f.Result,
		ActorType:  f.ActorType,
		ActorID:    f.ActorID,
		TargetType: f.TargetType,
		TargetID:   f.TargetID,
		RequestID:  f.RequestID,
	}
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and pageSize. Missing, unparseable or zero values take
// the defaults; the rest are clamped to page >= 1 and 1 <= pageSize <= MaxPageSize.
func ParsePage(v url.Values) Page {
	return NewPage(atoiOr(v.Get("page"), 1), atoiOr(v.Get("pageSize"), DefaultPageSize))
}

// NewPage clamps number and size the same way ParsePage does.
func NewPage(number, size int) Page {
	if number == 0 {
		number = 1
	}
	if size == 0 {
		size = DefaultPageSize
	}
	return Page{
		Number: max(1, number),
		Size:   min(MaxPageSize, max(1, size)),
	}
}

// Offset is the number of rows before this page. It saturates at math.MaxInt
// instead of wrapping for very large page numbers.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Size <= 0 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// parseBound accepts RFC 3339 timestamps, zone-less timestamps (read as UTC) and
// plain dates. A plain date used as an upper bound covers the whole day.
func parseBound(raw string, upper bool) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if d, err := time.Parse(dateOnly, raw); err == nil {
		if upper {
			return d.Add(24*time.Hour - time.Millisecond), true
		}
		return d, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func positiveInt(raw string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func atoiOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}
