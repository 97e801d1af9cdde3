package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lineageforge/internal/runs"
	id "lineageforge/pkg/domain"
	"lineageforge/pkg/platform/sentinel"
	txcontext "lineageforge/pkg/platform/tx"
)

const uniqueViolation = "23505"

// RunStore persists run records in PostgreSQL.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.Exec(ctx, s.db)
}

func (s *RunStore) Create(ctx context.Context, run *runs.Run) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO runs (run_id, job_type, status, config, summary, error, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(run.ID), string(run.JobType), string(run.Status),
		nullJSON(run.Config), nullJSON(run.Summary), run.Error,
		run.CreatedAt, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("run %s: %w", run.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) Update(ctx context.Context, run *runs.Run) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE runs
		SET status = $2, summary = $3, error = $4, started_at = $5, finished_at = $6
		WHERE run_id = $1`,
		uuid.UUID(run.ID), string(run.Status), nullJSON(run.Summary), run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, sentinel.ErrNotFound)
	}
	return nil
}

const selectRun = `
SELECT run_id, job_type, status, config, summary, error, created_at, started_at, finished_at
FROM runs`

func (s *RunStore) FindByID(ctx context.Context, runID id.RunID) (*runs.Run, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectRun+` WHERE run_id = $1`, uuid.UUID(runID))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	return run, nil
}

func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]*runs.Run, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectRun+` ORDER BY created_at DESC, run_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*runs.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*runs.Run, error) {
	var (
		runID             uuid.UUID
		jobType, status   string
		config, summary   []byte
		started, finished sql.NullTime
		run               runs.Run
	)
	if err := row.Scan(&runID, &jobType, &status, &config, &summary, &run.Error, &run.CreatedAt, &started, &finished); err != nil {
		return nil, err
	}
	run.ID = id.RunID(runID)
	run.JobType = runs.JobType(jobType)
	run.Status = runs.Status(status)
	if len(config) > 0 {
		run.Config = json.RawMessage(config)
	}
	if len(summary) > 0 {
		run.Summary = json.RawMessage(summary)
	}
	if started.Valid {
		t := started.Time
		run.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
