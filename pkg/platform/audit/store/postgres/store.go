package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
	txcontext "audittrail/pkg/platform/tx"
)

// Schema creates the audit schema, tables and read view.
//
//go:embed schema.sql
var Schema string

// ApplySchema runs Schema against db.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Store implements audit.RecordStore. Writes go to audit.audit_log and reads go
// through the audit.audit_log_hot view.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit record store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer joins a transaction carried in ctx so an audit row can commit together
// with the business change it describes.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const recordColumns = `id, ts, actor_type, actor_id, action, result, reason_code,
	target_type, target_id, request_id, ip_hash, ua, meta, sig`

// Append inserts rec as a single row and returns its id.
func (s *Store) Append(ctx context.Context, rec *audit.Record) (int64, error) {
	meta, err := rec.Meta.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit.audit_log (
			ts, actor_type, actor_id, action, result, reason_code,
			target_type, target_id, request_id, ip_hash, ua, meta, sig
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::uuid, $10, $11, $12::jsonb, $13)
		RETURNING id
	`
	var id int64
	err = s.execer(ctx).QueryRowContext(ctx, query,
		rec.Timestamp,
		string(rec.ActorType),
		nullInt64(rec.ActorID),
		string(rec.Action),
		string(rec.Result),
		nullString(rec.ReasonCode),
		nullString(rec.TargetType),
		nullInt64(rec.TargetID),
		nullString(rec.RequestID),
		nullBytes(rec.IPHash),
		nullString(rec.UserAgent),
		string(meta),
		rec.Signature,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit record: %w", err)
	}
	rec.ID = id
	return id, nil
}

// Get returns the record with id or a wrapped sentinel.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*audit.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM audit.audit_log_hot WHERE id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit record %d: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return rec, nil
}

// Find returns matching records, most recent first.
func (s *Store) Find(ctx context.Context, c audit.Criteria) ([]audit.Record, error) {
	where, args := buildConditions(c)
	query := `SELECT ` + recordColumns + ` FROM audit.audit_log_hot` + where + ` ORDER BY ts DESC, id DESC`
	if c.Limit > 0 {
		args = append(args, c.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if c.Offset > 0 {
		args = append(args, c.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count applies the same conditions as Find without paging.
func (s *Store) Count(ctx context.Context, c audit.Criteria) (int64, error) {
	where, args := buildConditions(c)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit.audit_log_hot`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

func (s *Store) CountByAction(ctx context.Context, since time.Time, limit int) ([]audit.Count, error) {
	query := `
		SELECT action, COUNT(*) AS n
		FROM audit.audit_log_hot
		WHERE ts >= $1
		GROUP BY action
		ORDER BY n DESC, action ASC
		LIMIT $2
	`
	return s.groupCounts(ctx, query, since, limit)
}

func (s *Store) CountByResult(ctx context.Context, since time.Time) ([]audit.Count, error) {
	query := `
		SELECT result, COUNT(*) AS n
		FROM audit.audit_log_hot
		WHERE ts >= $1
		GROUP BY result
		ORDER BY n DESC, result ASC
	`
	return s.groupCounts(ctx, query, since)
}

func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit.audit_log_hot WHERE ts >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit records since: %w", err)
	}
	return n, nil
}

func (s *Store) groupCounts(ctx context.Context, query string, args ...any) ([]audit.Count, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate audit records: %w", err)
	}
	defer rows.Close()

	counts := []audit.Count{}
	for rows.Next() {
		var c audit.Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scan audit aggregate: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit aggregate: %w", err)
	}
	return counts, nil
}

// buildConditions renders c as a WHERE clause with positional parameters. Find
// and Count share it so totals always describe the listed rows.
func buildConditions(c audit.Criteria) (string, []any) {
	var clauses []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}

	if !c.From.IsZero() {
		add("ts >= $%d", c.From)
	}
	if !c.To.IsZero() {
		add("ts <= $%d", c.To)
	}
	if c.Action != "" {
		add("action = $%d", string(c.Action))
	}
	if c.Result != "" {
		add("result = $%d", string(c.Result))
	}
	if c.ActorType != "" {
		add("actor_type = $%d", string(c.ActorType))
	}
	if c.ActorID != nil {
		add("actor_id = $%d", *c.ActorID)
	}
	if c.TargetType != "" {
		add("target_type = $%d", c.TargetType)
	}
	if c.TargetID != nil {
		add("target_id = $%d", *c.TargetID)
	}
	if c.RequestID != "" {
		add("request_id = $%d::uuid", c.RequestID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*audit.Record, error) {
	var (
		rec                           audit.Record
		actorType, action, result     string
		actorID, targetID             sql.NullInt64
		reason, targetType, requestID sql.NullString
		ua                            sql.NullString
		meta                          []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&actorType,
		&actorID,
		&action,
		&result,
		&reason,
		&targetType,
		&targetID,
		&requestID,
		&rec.IPHash,
		&ua,
		&meta,
		&rec.Signature,
	)
	if err != nil {
		return nil, err
	}

	rec.Timestamp = rec.Timestamp.UTC()
	rec.ActorType = audit.ActorType(actorType)
	rec.Action = audit.Action(action)
	rec.Result = audit.Result(result)
	rec.ReasonCode = reason.String
	rec.TargetType = targetType.String
	rec.RequestID = requestID.String
	rec.UserAgent = ua.String
	if actorID.Valid {
		rec.ActorID = audit.Int64(actorID.Int64)
	}
	if targetID.Valid {
		rec.TargetID = audit.Int64(targetID.Int64)
	}
	if len(meta) > 0 {
		if err := rec.Meta.UnmarshalJSON(meta); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	records := []audit.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
