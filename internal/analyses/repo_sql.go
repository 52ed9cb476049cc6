package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLRepo implements Repo on database/sql. Queries run unchanged on SQLite and Postgres.
type SQLRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, client_id, blob_name, status, summary, processed_key, error_code, error_message,
       created_at, started_at, completed_at
FROM analyses`

func (r *SQLRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analyses (id, client_id, blob_name, status, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.DB.ExecContext(ctx, query, job.ID, job.ClientID, job.BlobName, job.Status, job.CreatedAt); err != nil {
		return fmt.Errorf("insert analysis id=%s: %w", job.ID, err)
	}
	return nil
}

func (r *SQLRepo) Get(ctx context.Context, id string) (Job, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get analysis id=%s: %w", id, err)
	}
	return job, nil
}

// ListByClient returns the newest jobs first.
func (r *SQLRepo) ListByClient(ctx context.Context, clientID int64, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, selectColumns+`
WHERE client_id = $1
ORDER BY created_at DESC, id
LIMIT $2`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses client_id=%d: %w", clientID, err)
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *SQLRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $1, started_at = $2
WHERE id = $3 AND status = $4`
	return r.transition(ctx, id, query, StatusProcessing, startedAt, id, StatusQueued)
}

func (r *SQLRepo) Complete(ctx context.Context, id string, summary Summary, processedKey string, completedAt time.Time) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary id=%s: %w", id, err)
	}
	const query = `
UPDATE analyses
SET status = $1, summary = $2, processed_key = $3, completed_at = $4
WHERE id = $5 AND status = $6`
	return r.transition(ctx, id, query, StatusCompleted, string(payload), processedKey, completedAt, id, StatusProcessing)
}

func (r *SQLRepo) Fail(ctx context.Context, id, code, message string, completedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $1, error_code = $2, error_message = $3, completed_at = $4
WHERE id = $5 AND status IN ($6, $7)`
	return r.transition(ctx, id, query, StatusFailed, code, message, completedAt, id, StatusQueued, StatusProcessing)
}

func (r *SQLRepo) Cancel(ctx context.Context, id string, completedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $1, error_code = $2, completed_at = $3
WHERE id = $4 AND status IN ($5, $6)`
	return r.transition(ctx, id, query, StatusCanceled, ErrorCodeCanceled, completedAt, id, StatusQueued, StatusProcessing)
}

func (r *SQLRepo) FailUnfinished(ctx context.Context, code, message string, completedAt time.Time) (int64, error) {
	const query = `
UPDATE analyses
SET status = $1, error_code = $2, error_message = $3, completed_at = $4
WHERE status IN ($5, $6)`
	res, err := r.DB.ExecContext(ctx, query, StatusFailed, code, message, completedAt, StatusQueued, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("fail unfinished analyses: %w", err)
	}
	return res.RowsAffected()
}

// transition runs a conditional update. When no row changed it tells a missing job apart from
// one in the wrong state.
func (r *SQLRepo) transition(ctx context.Context, id, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update analysis id=%s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update analysis id=%s rows: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (Job, error) {
	var (
		job                                  Job
		summary, processedKey, code, message sql.NullString
		startedAt, completedAt               sql.NullTime
	)
	if err := s.Scan(&job.ID, &job.ClientID, &job.BlobName, &job.Status, &summary, &processedKey, &code, &message,
		&job.CreatedAt, &startedAt, &completedAt); err != nil {
		return Job{}, err
	}
	if summary.Valid && summary.String != "" {
		var sum Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return Job{}, fmt.Errorf("decode summary id=%s: %w", job.ID, err)
		}
		job.Summary = &sum
	}
	job.ProcessedKey = processedKey.String
	job.ErrorCode = code.String
	job.ErrorMessage = message.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

var _ Repo = (*SQLRepo)(nil)
