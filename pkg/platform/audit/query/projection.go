package query

import (
	"audittrail/pkg/platform/audit"
)

// DisplayUserAgentLength is the user agent length exposed to readers, shorter
// than the stored value.
const DisplayUserAgentLength = 100

// View is the outward shape of a record. It never carries the IP hash or the
// signature.
type View struct {
	ID         int64          `json:"id"`
	Timestamp  string         `json:"ts"`
	ActorType  string         `json:"actor_type"`
	ActorID    *int64         `json:"actor_id"`
	Action     string         `json:"action"`
	Result     string         `json:"result"`
	ReasonCode *string        `json:"reason_code"`
	TargetType *string        `json:"target_type"`
	TargetID   *int64         `json:"target_id"`
	RequestID  *string        `json:"request_id"`
	UserAgent  *string        `json:"ua"`
	Meta       audit.Metadata `json:"meta"`
}

// Project maps a stored record to its View.
func Project(rec audit.Record) View {
	meta := rec.Meta
	if meta == nil {
		meta = audit.Metadata{}
	}
	return View{
		ID:         rec.ID,
		Timestamp:  audit.FormatTimestamp(rec.Timestamp),
		ActorType:  string(rec.ActorType),
		ActorID:    rec.ActorID,
		Action:     string(rec.Action),
		Result:     string(rec.Result),
		ReasonCode: optional(rec.ReasonCode),
		TargetType: optional(rec.TargetType),
		TargetID:   rec.TargetID,
		RequestID:  optional(rec.RequestID),
		UserAgent:  optional(audit.Truncate(rec.UserAgent, DisplayUserAgentLength)),
		Meta:       meta,
	}
}

// ProjectAll maps records in order. The result is never nil.
func ProjectAll(recs []audit.Record) []View {
	views := make([]View, 0, len(recs))
	for _, r := range recs {
		views = append(views, Project(r))
	}
	return views
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
