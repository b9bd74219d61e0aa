package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// SessionRepositoryPG implements domain.SessionRepository.
type SessionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository backed by PostgreSQL.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepositoryPG {
	return &SessionRepositoryPG{pool: pool}
}

// Create inserts a new session record.
func (r *SessionRepositoryPG) Create(ctx context.Context, session *domain.Session) error {
	query := `
INSERT INTO sessions (id, user_id, original_image_url, room_state, selected_empty_room_url)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.OriginalImageURL,
		session.RoomState,
		session.SelectedEmptyRoomURL,
	)
	return err
}

// GetByIDForUser fetches a session scoped to its owner.
func (r *SessionRepositoryPG) GetByIDForUser(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	query := `
SELECT id, user_id, original_image_url, room_state, selected_empty_room_url, created_at, updated_at
FROM sessions
WHERE id = $1 AND user_id = $2;
`
	row := r.pool.QueryRow(ctx, query, sessionID, userID)
	return scanSession(row)
}

// ListByUser returns a user's sessions, most recent first.
func (r *SessionRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	query := `
SELECT id, user_id, original_image_url, room_state, selected_empty_room_url, created_at, updated_at
FROM sessions
WHERE user_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// SetSelectedEmptyRoom records the chosen empty-room image for a session.
func (r *SessionRepositoryPG) SetSelectedEmptyRoom(ctx context.Context, sessionID, url string) error {
	query := `
UPDATE sessions
SET selected_empty_room_url = $2,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, sessionID, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes sessions created before cutoff. Generations go
// with them through the foreign key cascade.
func (r *SessionRepositoryPG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.OriginalImageURL,
		&s.RoomState,
		&s.SelectedEmptyRoomURL,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

var _ domain.SessionRepository = (*SessionRepositoryPG)(nil)
