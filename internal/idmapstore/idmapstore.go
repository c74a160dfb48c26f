// Package idmapstore persists the source-id -> target-id map a load run
// produces, in Postgres, so a later run (resuming a partial migration, or
// dumping data back out through the same mapping) can pick it back up
// without re-deriving it from MappingPolicy lookups. Neither the upload nor
// the dump driver in internal/core touches a database directly -- their
// IdMap is always an in-memory map supplied by the caller; this package is
// the optional persistence a CLI or control server wires in around them.
package idmapstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stomita/salesforce-migration-automatic/internal/core"
)

// Store persists id-map entries keyed by run ID and object.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the backing table if it doesn't already exist. Call
// once at startup; safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migration_id_map (
			run_id     uuid        NOT NULL,
			object     text        NOT NULL,
			source_id  text        NOT NULL,
			target_id  text        NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (run_id, object, source_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("idmapstore: ensure schema: %w", err)
	}
	return nil
}

// SaveSuccesses records every successfully-created row from an upload pass.
// Safe to call once per pass; re-saving the same (run, object, source_id)
// just updates target_id.
func (s *Store) SaveSuccesses(ctx context.Context, runID string, successes []core.UploadSuccess) error {
	if len(successes) == 0 {
		return nil
	}
	runUUID := toPgUUID(runID)

	batch := make([][]any, len(successes))
	for i, suc := range successes {
		batch[i] = []any{runUUID, string(suc.Object), suc.OrigID, suc.TargetID}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("idmapstore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO migration_id_map (run_id, object, source_id, target_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id, object, source_id) DO UPDATE SET target_id = EXCLUDED.target_id
		`, row...)
		if err != nil {
			return fmt.Errorf("idmapstore: insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("idmapstore: commit: %w", err)
	}
	return nil
}

// LoadIdMap reconstructs a flat source-id -> target-id map for a run,
// suitable for seeding UploadOptions.IdMap or DumpOptions.IdMap on a
// follow-up invocation. objects, when non-empty, restricts the result to
// those objects; empty means all objects in the run.
func (s *Store) LoadIdMap(ctx context.Context, runID string, objects ...core.ObjectName) (map[string]string, error) {
	runUUID := toPgUUID(runID)

	var rows pgxRows
	var err error
	if len(objects) == 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT source_id, target_id FROM migration_id_map WHERE run_id = $1
		`, runUUID)
	} else {
		names := make([]string, len(objects))
		for i, o := range objects {
			names[i] = string(o)
		}
		rows, err = s.pool.Query(ctx, `
			SELECT source_id, target_id FROM migration_id_map WHERE run_id = $1 AND object = ANY($2)
		`, runUUID, names)
	}
	if err != nil {
		return nil, fmt.Errorf("idmapstore: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var srcID, tgtID string
		if err := rows.Scan(&srcID, &tgtID); err != nil {
			return nil, fmt.Errorf("idmapstore: scan: %w", err)
		}
		out[srcID] = tgtID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("idmapstore: rows: %w", err)
	}
	return out, nil
}

// RunSummary describes one previously-run migration for listing purposes.
type RunSummary struct {
	RunID       string
	ObjectCount int
	RowCount    int
	LastSavedAt time.Time
}

// ListRuns returns a summary of every run with at least one id-map entry,
// most recently updated first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, COUNT(DISTINCT object), COUNT(*), MAX(created_at)
		FROM migration_id_map
		GROUP BY run_id
		ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("idmapstore: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var runUUID pgtype.UUID
		var objCount, rowCount int
		var lastSaved time.Time
		if err := rows.Scan(&runUUID, &objCount, &rowCount, &lastSaved); err != nil {
			return nil, fmt.Errorf("idmapstore: scan run: %w", err)
		}
		out = append(out, RunSummary{
			RunID:       fromPgUUID(runUUID),
			ObjectCount: objCount,
			RowCount:    rowCount,
			LastSavedAt: lastSaved,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("idmapstore: rows: %w", err)
	}
	return out, nil
}

// pgxRows is the subset of pgx.Rows this package needs; declared locally so
// callers can pass a pgxpool.Rows without importing pgx/v5 themselves.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
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
	s, err := u.Value()
	if err != nil {
		return ""
	}
	str, _ := s.(string)
	return str
}
