package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGenerationRepository creates a new generation repository backed by PostgreSQL.
func NewGenerationRepository(pool *pgxpool.Pool) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{pool: pool}
}

// AppendAttempt allocates the next attempt number and inserts the record
// in one transaction. The FOR UPDATE lock on the session row serializes
// concurrent attempts on the same session; different sessions never
// contend.
func (r *GenerationRepositoryPG) AppendAttempt(ctx context.Context, gen *domain.Generation) (*domain.Generation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append attempt: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sessionID string
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, gen.SessionID).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}

	query := `
INSERT INTO generations (id, session_id, type, generation_number, input_image_url, output_image_urls, style, room_type, credits_cost, status, error_message, completed_at)
SELECT $1, $2, $3, COALESCE(MAX(generation_number), 0) + 1, $4, $5, $6, $7, $8, $9, $10, $11
FROM generations
WHERE session_id = $2 AND type = $3
RETURNING generation_number, created_at;
`
	out := *gen
	err = tx.QueryRow(ctx, query,
		gen.ID,
		gen.SessionID,
		gen.Type,
		gen.InputImageURL,
		textArray(gen.OutputImageURLs),
		gen.Style,
		gen.RoomType,
		gen.CreditsCost,
		gen.Status,
		gen.ErrorMessage,
		gen.CompletedAt,
	).Scan(&out.Number, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert generation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append attempt: %w", err)
	}
	return &out, nil
}

// ListBySession returns all generations for a session, newest attempt first.
func (r *GenerationRepositoryPG) ListBySession(ctx context.Context, sessionID string) ([]domain.Generation, error) {
	query := `
SELECT id, session_id, type, generation_number, input_image_url, output_image_urls, style, room_type, credits_cost, status, error_message, created_at, completed_at
FROM generations
WHERE session_id = $1
ORDER BY generation_number DESC;
`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []domain.Generation
	for rows.Next() {
		var g domain.Generation
		if err := rows.Scan(
			&g.ID,
			&g.SessionID,
			&g.Type,
			&g.Number,
			&g.InputImageURL,
			&g.OutputImageURLs,
			&g.Style,
			&g.RoomType,
			&g.CreditsCost,
			&g.Status,
			&g.ErrorMessage,
			&g.CreatedAt,
			&g.CompletedAt,
		); err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// DeleteFailedOlderThan removes failed generations created before cutoff.
func (r *GenerationRepositoryPG) DeleteFailedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM generations WHERE status = 'failed' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphans removes generations whose session no longer exists.
func (r *GenerationRepositoryPG) DeleteOrphans(ctx context.Context) (int64, error) {
	query := `
DELETE FROM generations g
WHERE NOT EXISTS (SELECT 1 FROM sessions s WHERE s.id = g.session_id);
`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
