package audit

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Action identifies the business event an audit record describes.
// The set is closed: writers reject anything not listed in actionOrder.
type Action string

const (
	// Auth events
	ActionLoginSuccess         Action = "LOGIN_SUCCESS"
	ActionLoginFailBucketed    Action = "LOGIN_FAIL_BUCKETED"
	ActionPasswordResetRequest Action = "PASSWORD_RESET_REQUEST"
	ActionPasswordResetConfirm Action = "PASSWORD_RESET_CONFIRM"
	ActionEmailVerify          Action = "EMAIL_VERIFY"

	// Profile events
	ActionProfilePublish         Action = "PROFILE_PUBLISH"
	ActionProfileUnpublish       Action = "PROFILE_UNPUBLISH"
	ActionProfileUpdateSensitive Action = "PROFILE_UPDATE_SENSITIVE"

	// Permission events
	ActionRoleChanged       Action = "ROLE_CHANGED"
	ActionPermissionChanged Action = "PERMISSION_CHANGED"

	// Account deletion events
	ActionDeleteRequested Action = "DELETE_REQUESTED"
	ActionDeleteConfirmed Action = "DELETE_CONFIRMED"
	ActionAnonymized      Action = "ANONYMIZED"
	ActionPurged          Action = "PURGED"

	// Admin events
	ActionAdminImpersonation Action = "ADMIN_IMPERSONATION"
	ActionAdminBulkUpdate    Action = "ADMIN_BULK_UPDATE"
)

// actionOrder is the canonical display order of the action enumeration.
var actionOrder = []Action{
	ActionLoginSuccess,
	ActionLoginFailBucketed,
	ActionPasswordResetRequest,
	ActionPasswordResetConfirm,
	ActionEmailVerify,
	ActionProfilePublish,
	ActionProfileUnpublish,
	ActionProfileUpdateSensitive,
	ActionRoleChanged,
	ActionPermissionChanged,
	ActionDeleteRequested,
	ActionDeleteConfirmed,
	ActionAnonymized,
	ActionPurged,
	ActionAdminImpersonation,
	ActionAdminBulkUpdate,
}

var knownActions = func() map[Action]struct{} {
	m := make(map[Action]struct{}, len(actionOrder))
	for _, a := range actionOrder {
		m[a] = struct{}{}
	}
	return m
}()

// Actions returns the action enumeration in display order. The returned slice is a copy.
func Actions() []Action {
	return append([]Action(nil), actionOrder...)
}

// Valid reports whether a is part of the closed action enumeration.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// ParseAction validates s against the action enumeration.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown audit action: %q", s)
	}
	return a, nil
}

// ActorType classifies who triggered the event.
type ActorType string

const (
	ActorUser      ActorType = "user"
	ActorAdmin     ActorType = "admin"
	ActorSystem    ActorType = "system"
	ActorAnonymous ActorType = "anonymous"
)

func (t ActorType) Valid() bool {
	switch t {
	case ActorUser, ActorAdmin, ActorSystem, ActorAnonymous:
		return true
	}
	return false
}

// ParseActorType validates s against the actor type enumeration.
func ParseActorType(s string) (ActorType, error) {
	t := ActorType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown actor type: %q", s)
	}
	return t, nil
}

// Result is the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFail    Result = "fail"
)

func (r Result) Valid() bool {
	return r == ResultSuccess || r == ResultFail
}

// ParseResult validates s against {success, fail}.
func ParseResult(s string) (Result, error) {
	r := Result(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown audit result: %q", s)
	}
	return r, nil
}

// Field limits applied on the write path.
const (
	MaxUserAgentLength  = 300
	MaxTargetTypeLength = 50
	MaxReasonCodeLength = 64
	MaxMetadataBytes    = 2048
	HashSize            = 32
)

// TimestampLayout is the ISO-8601 UTC millisecond form used wherever a record
// timestamp is rendered as text.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t with TimestampLayout in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// RequestContext carries the request-scoped values an audit write may need.
// Collaborators build it once per inbound request and pass it by value.
type RequestContext struct {
	RequestID string
	IPHash    []byte
	UserAgent string
}

// Event is the write-side input handed to the writer by a collaborator.
// It is transformed into a Record and never persisted in this shape.
// There is no timestamp field: the writer assigns it.
type Event struct {
	ActorType  ActorType
	ActorID    *int64
	Action     Action
	Result     Result
	ReasonCode string
	TargetType string
	TargetID   *int64
	// Meta is raw metadata: Metadata or map[string]any. Anything else is discarded.
	Meta any

	// Explicit request values win over Request.
	RequestID string
	IPHash    []byte
	UserAgent string
	Request   RequestContext
}

// Record is a persisted, write-once audit row.
type Record struct {
	ID         int64
	Timestamp  time.Time
	ActorType  ActorType
	ActorID    *int64
	Action     Action
	Result     Result
	ReasonCode string
	TargetType string
	TargetID   *int64
	RequestID  string
	IPHash     []byte
	UserAgent  string
	Meta       Metadata
	Signature  []byte
}

// Criteria is a validated record filter. Zero-valued optional fields are not applied.
// Build it through the query package rather than by hand so every field has passed
// its validator.
type Criteria struct {
	From       time.Time
	To         time.Time
	Action     Action
	Result     Result
	ActorType  ActorType
	ActorID    *int64
	TargetType string
	TargetID   *int64
	RequestID  string

	// Limit <= 0 means unbounded.
	Limit  int
	Offset int
}

// Count is one row of a grouped aggregate.
type Count struct {
	Key   string
	Count int64
}

// BucketKey identifies one fixed-window failure counter.
type BucketKey struct {
	WindowStart    time.Time
	Action         Action
	IPHash         []byte
	IdentifierHash []byte
}

// Bucket is an aggregated failure counter for one window.
type Bucket struct {
	Key       BucketKey
	Count     int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// Int64 returns a pointer to v, for optional actor and target ids.
func Int64(v int64) *int64 {
	return &v
}

// Truncate cuts s to at most limit characters (runes, not bytes).
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
