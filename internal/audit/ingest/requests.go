package ingest

import (
	"strings"

	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/httputil"
)

// EventRequest is the body of POST /internal/audit/events. Request-scoped
// values (request id, client address, user agent) come from the HTTP request,
// not the body.
type EventRequest struct {
	ActorType  string         `json:"actorType" validate:"required"`
	ActorID    *int64         `json:"actorId" validate:"omitempty,gt=0"`
	Action     string         `json:"action" validate:"required"`
	Result     string         `json:"result" validate:"required"`
	ReasonCode string         `json:"reasonCode"`
	TargetType string         `json:"targetType"`
	TargetID   *int64         `json:"targetId" validate:"omitempty,gt=0"`
	Metadata   map[string]any `json:"metadata"`
}

// Validate implements httputil.Validatable.
func (r *EventRequest) Validate() error {
	r.ActorType = strings.TrimSpace(r.ActorType)
	r.Action = strings.TrimSpace(r.Action)
	r.Result = strings.TrimSpace(r.Result)
	if err := httputil.ValidateStruct(r); err != nil {
		return err
	}
	if !audit.ActorType(r.ActorType).Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown actorType")
	}
	if !audit.Action(r.Action).Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown action")
	}
	if !audit.Result(r.Result).Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown result")
	}
	return nil
}

// Event converts the request into a write-side event bound to req.
func (r *EventRequest) Event(req audit.RequestContext) audit.Event {
	ev := audit.Event{
		ActorType:  audit.ActorType(r.ActorType),
		ActorID:    r.ActorID,
		Action:     audit.Action(r.Action),
		Result:     audit.Result(r.Result),
		ReasonCode: r.ReasonCode,
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		Request:    req,
	}
	if r.Metadata != nil {
		ev.Meta = r.Metadata
	}
	return ev
}

// LoginFailureRequest is the body of POST /internal/audit/login-failures.
// Identifier is hashed before it is stored anywhere.
type LoginFailureRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	ReasonCode string `json:"reasonCode" validate:"max=64"`
}

// Validate implements httputil.Validatable.
func (r *LoginFailureRequest) Validate() error {
	r.Identifier = strings.TrimSpace(r.Identifier)
	r.ReasonCode = strings.TrimSpace(r.ReasonCode)
	return httputil.ValidateStruct(r)
}

// WriteResponse reports whether a row was appended.
type WriteResponse struct {
	Written bool `json:"written"`
}
