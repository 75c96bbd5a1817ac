// Package recorder offers one call per audited business event so collaborators
// do not assemble audit.Event values by hand.
//
// Every method takes the caller's audit.RequestContext explicitly. Errors are
// only returned when the underlying writer runs fail-closed.
package recorder

import (
	"context"
	"fmt"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
)

// DefaultLoginFailReason is used when a failed login carries no reason.
const DefaultLoginFailReason = "INVALID_CREDENTIALS"

// EventWriter persists a single event.
type EventWriter interface {
	Write(ctx context.Context, ev audit.Event) (bool, error)
}

// FailureBucketer aggregates failed logins.
type FailureBucketer interface {
	RecordFailure(ctx context.Context, ipHash []byte, rawIdentifier string)
}

// Recorder maps business events onto audit events.
type Recorder struct {
	writer     EventWriter
	bucketer   FailureBucketer
	anonymizer *anonymize.Anonymizer
}

// New creates a Recorder.
func New(writer EventWriter, bucketer FailureBucketer, anonymizer *anonymize.Anonymizer) (*Recorder, error) {
	if writer == nil {
		return nil, fmt.Errorf("event writer is required")
	}
	if bucketer == nil {
		return nil, fmt.Errorf("failure bucketer is required")
	}
	if anonymizer == nil {
		return nil, fmt.Errorf("anonymizer is required")
	}
	return &Recorder{writer: writer, bucketer: bucketer, anonymizer: anonymizer}, nil
}

func (r *Recorder) write(ctx context.Context, ev audit.Event) error {
	_, err := r.writer.Write(ctx, ev)
	return err
}

// LoginSuccess records a successful login by userID.
func (r *Recorder) LoginSuccess(ctx context.Context, req audit.RequestContext, userID int64, meta audit.Metadata) error {
	return r.write(ctx, audit.Event{
		ActorType:  audit.ActorUser,
		ActorID:    audit.Int64(userID),
		Action:     audit.ActionLoginSuccess,
		Result:     audit.ResultSuccess,
		TargetType: "user",
		TargetID:   audit.Int64(userID),
		Meta:       meta,
		Request:    req,
	})
}

// LoginFail bumps the failure bucket and then writes the audit row. The row
// carries only a truncated identifier hash, never the identifier itself.
func (r *Recorder) LoginFail(ctx context.Context, req audit.RequestContext, identifier, reasonCode string) error {
	r.bucketer.RecordFailure(ctx, req.IPHash, identifier)

	if reasonCode == "" {
		reasonCode = DefaultLoginFailReason
	}
	return r.write(ctx, audit.Event{
		ActorType:  audit.ActorAnonymous,
		Action:     audit.ActionLoginFailBucketed,
		Result:     audit.ResultFail,
		ReasonCode: reasonCode,
		TargetType: "user",
		Meta:       audit.Meta("identifier_hash", r.anonymizer.IdentifierPrefix(identifier)),
		Request:    req,
	})
}

// PasswordResetRequest records a reset request. userID is nil when the account
// could not be resolved, in which case the actor is anonymous.
func (r *Recorder) PasswordResetRequest(ctx context.Context, req audit.RequestContext, userID *int64) error {
	ev := audit.Event{
		ActorType: audit.ActorAnonymous,
		Action:    audit.ActionPasswordResetRequest,
		Result:    audit.ResultSuccess,
		Request:   req,
	}
	if userID != nil {
		ev.ActorType = audit.ActorUser
		ev.ActorID = userID
		ev.TargetType = "user"
		ev.TargetID = userID
	}
	return r.write(ctx, ev)
}

func (r *Recorder) PasswordResetConfirm(ctx context.Context, req audit.RequestContext, userID int64) error {
	return r.selfAction(ctx, req, audit.ActionPasswordResetConfirm, userID)
}

func (r *Recorder) EmailVerify(ctx context.Context, req audit.RequestContext, userID int64) error {
	return r.selfAction(ctx, req, audit.ActionEmailVerify, userID)
}

func (r *Recorder) selfAction(ctx context.Context, req audit.RequestContext, action audit.Action, userID int64) error {
	return r.write(ctx, audit.Event{
		ActorType:  audit.ActorUser,
		ActorID:    audit.Int64(userID),
		Action:     action,
		Result:     audit.ResultSuccess,
		TargetType: "user",
		TargetID:   audit.Int64(userID),
		Request:    req,
	})
}

// ProfileChange describes a profile publish or unpublish.
type ProfileChange struct {
	ActorID     *int64
	ProfileType string
	ProfileID   int64
	Publish     bool
}

// ProfilePublish records a publish or unpublish. Without an actor the change is
// attributed to the system.
func (r *Recorder) ProfilePublish(ctx context.Context, req audit.RequestContext, c ProfileChange) error {
	action := audit.ActionProfileUnpublish
	if c.Publish {
		action = audit.ActionProfilePublish
	}
	return r.write(ctx, audit.Event{
		ActorType:  actorOr(c.ActorID, audit.ActorUser),
		ActorID:    c.ActorID,
		Action:     action,
		Result:     audit.ResultSuccess,
		TargetType: c.ProfileType,
		TargetID:   audit.Int64(c.ProfileID),
		Meta:       audit.Meta("profileType", c.ProfileType),
		Request:    req,
	})
}

// RoleChange describes a role reassignment.
type RoleChange struct {
	ActorID      *int64
	TargetUserID int64
	FromRoleID   *int64
	ToRoleID     *int64
}

// RoleChange records a role reassignment, attributed to an admin when an actor
// is known and to the system otherwise.
func (r *Recorder) RoleChange(ctx context.Context, req audit.RequestContext, c RoleChange) error {
	meta := audit.Metadata{}
	if c.FromRoleID != nil {
		meta = meta.Set("fromRoleId", *c.FromRoleID)
	}
	if c.ToRoleID != nil {
		meta = meta.Set("toRoleId", *c.ToRoleID)
	}
	return r.write(ctx, audit.Event{
		ActorType:  actorOr(c.ActorID, audit.ActorAdmin),
		ActorID:    c.ActorID,
		Action:     audit.ActionRoleChanged,
		Result:     audit.ResultSuccess,
		TargetType: "user",
		TargetID:   audit.Int64(c.TargetUserID),
		Meta:       meta,
		Request:    req,
	})
}

// Deletion describes one step of the account deletion lifecycle.
type Deletion struct {
	Action       audit.Action
	ActorID      *int64
	TargetUserID int64
	Reason       string
}

// AccountDeletion records a deletion step. Only the four lifecycle actions are
// accepted.
func (r *Recorder) AccountDeletion(ctx context.Context, req audit.RequestContext, d Deletion) error {
	switch d.Action {
	case audit.ActionDeleteRequested, audit.ActionDeleteConfirmed, audit.ActionAnonymized, audit.ActionPurged:
	default:
		return fmt.Errorf("not an account deletion action: %q", d.Action)
	}

	var meta audit.Metadata
	if d.Reason != "" {
		meta = audit.Meta("reason", d.Reason)
	}
	return r.write(ctx, audit.Event{
		ActorType:  actorOr(d.ActorID, audit.ActorUser),
		ActorID:    d.ActorID,
		Action:     d.Action,
		Result:     audit.ResultSuccess,
		TargetType: "user",
		TargetID:   audit.Int64(d.TargetUserID),
		Meta:       meta,
		Request:    req,
	})
}

func actorOr(id *int64, known audit.ActorType) audit.ActorType {
	if id == nil {
		return audit.ActorSystem
	}
	return known
}
