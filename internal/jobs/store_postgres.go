package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initJobSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initJobSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voice_jobs (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			estimated_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			error_detail TEXT NOT NULL DEFAULT '',
			result JSONB NULL,
			recordings JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			start_time TIMESTAMPTZ NULL,
			completed_time TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_voice_jobs_owner_created ON voice_jobs (owner_id, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init voice job schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// SaveJob upserts a snapshot. Snapshots are written asynchronously, so an
// older one never overwrites a newer row.
func (s *PostgresStore) SaveJob(ctx context.Context, job Job) error {
	recordings, err := json.Marshal(job.Clone().Recordings)
	if err != nil {
		return fmt.Errorf("encode recordings: %w", err)
	}
	var result []byte
	if job.Result != nil {
		if result, err = json.Marshal(job.Result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO voice_jobs (
			id, owner_id, name, status, stage, progress, estimated_time_seconds, error, error_code,
			error_detail, result, recordings, created_at, updated_at, start_time, completed_time
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
		)
		ON CONFLICT (id) DO UPDATE SET
			owner_id=EXCLUDED.owner_id,
			name=EXCLUDED.name,
			status=EXCLUDED.status,
			stage=EXCLUDED.stage,
			progress=EXCLUDED.progress,
			estimated_time_seconds=EXCLUDED.estimated_time_seconds,
			error=EXCLUDED.error,
			error_code=EXCLUDED.error_code,
			error_detail=EXCLUDED.error_detail,
			result=EXCLUDED.result,
			recordings=EXCLUDED.recordings,
			updated_at=EXCLUDED.updated_at,
			start_time=EXCLUDED.start_time,
			completed_time=EXCLUDED.completed_time
		WHERE voice_jobs.updated_at <= EXCLUDED.updated_at`,
		job.ID,
		job.OwnerID,
		job.Name,
		string(job.Status),
		string(job.Stage),
		job.Progress,
		job.EstimatedTimeSeconds,
		job.Error,
		string(job.ErrorCode),
		job.ErrorDetail,
		result,
		recordings,
		job.CreatedAt,
		job.UpdatedAt,
		job.StartTime,
		job.CompletedTime,
	)
	if err != nil {
		return fmt.Errorf("upsert voice job: %w", err)
	}
	return nil
}

const jobColumns = `id, owner_id, name, status, stage, progress, estimated_time_seconds, error, error_code,
		        error_detail, result, recordings, created_at, updated_at, start_time, completed_time`

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM voice_jobs WHERE id=$1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrStoreNotFound
		}
		return Job{}, fmt.Errorf("get voice job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM voice_jobs WHERE owner_id=$1 ORDER BY created_at DESC LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list voice jobs: %w", err)
	}
	defer rows.Close()

	out := make([]Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voice job row: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voice job rows: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		job        Job
		status     string
		stage      string
		code       string
		result     []byte
		recordings []byte
		started    *time.Time
		completed  *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Name,
		&status,
		&stage,
		&job.Progress,
		&job.EstimatedTimeSeconds,
		&job.Error,
		&code,
		&job.ErrorDetail,
		&result,
		&recordings,
		&job.CreatedAt,
		&job.UpdatedAt,
		&started,
		&completed,
	); err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	job.Stage = Stage(stage)
	job.ErrorCode = ErrorCode(code)
	job.StartTime = started
	job.CompletedTime = completed
	if len(result) > 0 && string(result) != "null" {
		var r Result
		if err := json.Unmarshal(result, &r); err != nil {
			return Job{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &r
	}
	if len(recordings) > 0 {
		if err := json.Unmarshal(recordings, &job.Recordings); err != nil {
			return Job{}, fmt.Errorf("decode recordings: %w", err)
		}
	}
	return job, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
