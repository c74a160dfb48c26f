// Package audit persists a history of load/dump runs: what kind of run it
// was, which objects it touched, and its final outcome. Optional -- a
// caller without Database.URL configured never constructs a Store, and
// internal/core never imports this package.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind distinguishes a load run from a dump run.
type Kind string

const (
	KindLoad Kind = "load"
	KindDump Kind = "dump"
)

// Severity mirrors the source UI's audit severities, repurposed here for
// run-level outcomes rather than per-cell edits.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is one run's audit record.
type Entry struct {
	RunID        string
	Kind         Kind
	Severity     Severity
	Objects      []string
	TotalCount   int
	SuccessCount int
	FailureCount int
	Detail       map[string]any
	Reason       string
	CreatedAt    time.Time
}

// Store persists Entry values in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the backing table if it doesn't already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migration_audit_log (
			run_id        uuid        PRIMARY KEY,
			kind          text        NOT NULL,
			severity      text        NOT NULL,
			objects       jsonb       NOT NULL,
			total_count   int         NOT NULL DEFAULT 0,
			success_count int         NOT NULL DEFAULT 0,
			failure_count int         NOT NULL DEFAULT 0,
			detail        jsonb,
			reason        text,
			created_at    timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// severityFor picks a run's severity from its outcome: any failure is an
// error, fewer successes than total rows (e.g. blocked/not-loadable rows)
// without a hard failure is a warning, otherwise info.
func severityFor(totalCount, successCount, failureCount int) Severity {
	if failureCount > 0 {
		return SeverityError
	}
	if successCount < totalCount {
		return SeverityWarning
	}
	return SeverityInfo
}

// Record writes one run's audit entry. detail is marshaled to jsonb as-is;
// pass a small, serializable summary (failure messages, blocked row
// counts), not the full dataset.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Severity == "" {
		e.Severity = severityFor(e.TotalCount, e.SuccessCount, e.FailureCount)
	}

	objectsJSON, err := json.Marshal(e.Objects)
	if err != nil {
		return fmt.Errorf("audit: marshal objects: %w", err)
	}
	var detailJSON []byte
	if e.Detail != nil {
		detailJSON, err = json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("audit: marshal detail: %w", err)
		}
	}

	runUUID := toPgUUID(e.RunID)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO migration_audit_log
			(run_id, kind, severity, objects, total_count, success_count, failure_count, detail, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			severity = EXCLUDED.severity,
			total_count = EXCLUDED.total_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			detail = EXCLUDED.detail,
			reason = EXCLUDED.reason
	`, runUUID, string(e.Kind), string(e.Severity), objectsJSON,
		e.TotalCount, e.SuccessCount, e.FailureCount, nullableJSON(detailJSON), toPgText(e.Reason))
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Purge deletes entries older than retentionDays, returning the count
// removed. Neither cmd/migrate nor internal/statusserver calls it.
func (s *Store) Purge(ctx context.Context, retentionDays int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM migration_audit_log WHERE created_at < now() - ($1 || ' days')::interval
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List returns the most recent entries, newest first, bounded by limit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, kind, severity, objects, total_count, success_count, failure_count, detail, reason, created_at
		FROM migration_audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			runUUID                                  pgtype.UUID
			kind, severity                            string
			objectsJSON, detailJSON                   []byte
			totalCount, successCount, failureCount    int
			reason                                    pgtype.Text
			createdAt                                 time.Time
		)
		if err := rows.Scan(&runUUID, &kind, &severity, &objectsJSON, &totalCount, &successCount, &failureCount, &detailJSON, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		var objects []string
		_ = json.Unmarshal(objectsJSON, &objects)
		var detail map[string]any
		if len(detailJSON) > 0 {
			_ = json.Unmarshal(detailJSON, &detail)
		}
		out = append(out, Entry{
			RunID:        fromPgUUID(runUUID),
			Kind:         Kind(kind),
			Severity:     Severity(severity),
			Objects:      objects,
			TotalCount:   totalCount,
			SuccessCount: successCount,
			FailureCount: failureCount,
			Detail:       detail,
			Reason:       reason.String,
			CreatedAt:    createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return out, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	var u pgtype.UUID
	if err := u.Scan(s); err != nil {
		return pgtype.UUID{Valid: false}
	}
	return u
}

func fromPgUUID(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	v, err := u.Value()
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// nullableJSON returns nil for an empty byte slice so the jsonb column
// stores SQL NULL instead of an empty string.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
