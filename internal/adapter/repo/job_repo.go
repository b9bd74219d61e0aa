package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository. Both terminal updates
// carry a status guard so that completed and failed are written at most
// once per job, no matter how callers race.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, session_id, type, status, input_image_url, result_urls, credits_used, provider_job_ids, error_message)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.SessionID,
		job.Type,
		job.Status,
		job.InputImageURL,
		textArray(job.ResultURLs),
		job.CreditsUsed,
		textArray(job.ProviderJobIDs),
		job.ErrorMessage,
	)
	return err
}

// textArray keeps nil slices out of NOT NULL text[] columns; pgx encodes
// a nil []string as SQL NULL, not as an empty array.
func textArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// GetByIDForUser fetches a job scoped to its owner.
func (r *JobRepositoryPG) GetByIDForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	query := `
SELECT id, user_id, COALESCE(session_id::text, ''), type, status, input_image_url, result_urls, credits_used, provider_job_ids, error_message, created_at, completed_at
FROM jobs
WHERE id = $1 AND user_id = $2;
`
	row := r.pool.QueryRow(ctx, query, jobID, userID)
	return scanJob(row)
}

// MarkCompleted records the terminal success state. It reports
// domain.ErrNotFound when the job is missing or already terminal.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID string, resultURLs, providerJobIDs []string, at time.Time) error {
	query := `
UPDATE jobs
SET status = 'completed',
    result_urls = $2,
    provider_job_ids = $3,
    completed_at = $4
WHERE id = $1 AND status IN ('pending', 'processing');
`
	tag, err := r.pool.Exec(ctx, query, jobID, textArray(resultURLs), textArray(providerJobIDs), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed records the terminal failure state with the same guard as
// MarkCompleted.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, errMsg string, at time.Time) error {
	query := `
UPDATE jobs
SET status = 'failed',
    error_message = $2,
    completed_at = $3
WHERE id = $1 AND status IN ('pending', 'processing');
`
	tag, err := r.pool.Exec(ctx, query, jobID, errMsg, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SweepStale force-fails every job still non-terminal before cutoff.
// Re-running it only ever touches rows that are still non-terminal.
func (r *JobRepositoryPG) SweepStale(ctx context.Context, cutoff time.Time, errMsg string, at time.Time) (int64, error) {
	query := `
UPDATE jobs
SET status = 'failed',
    error_message = $2,
    completed_at = $3
WHERE status IN ('pending', 'processing') AND created_at < $1;
`
	tag, err := r.pool.Exec(ctx, query, cutoff, errMsg, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListFailedUnrefunded returns failed jobs that consumed credits and have
// no refund entry referencing them yet.
func (r *JobRepositoryPG) ListFailedUnrefunded(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `
SELECT j.id, j.user_id, COALESCE(j.session_id::text, ''), j.type, j.status, j.input_image_url, j.result_urls, j.credits_used, j.provider_job_ids, j.error_message, j.created_at, j.completed_at
FROM jobs j
WHERE j.status = 'failed'
  AND j.credits_used > 0
  AND NOT EXISTS (
      SELECT 1 FROM credit_transactions t
      WHERE t.job_id = j.id AND t.kind = 'refund'
  )
ORDER BY j.created_at ASC
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.SessionID,
		&job.Type,
		&job.Status,
		&job.InputImageURL,
		&job.ResultURLs,
		&job.CreditsUsed,
		&job.ProviderJobIDs,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
