package staging

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Sessions groups session creation and the per-session generation
// history reads.
type Sessions struct {
	sessions    domain.SessionRepository
	generations domain.GenerationRepository
	logger      zerolog.Logger
}

// NewSessions constructs a Sessions service.
func NewSessions(sessions domain.SessionRepository, generations domain.GenerationRepository, logger zerolog.Logger) *Sessions {
	return &Sessions{
		sessions:    sessions,
		generations: generations,
		logger:      logger.With().Str("component", "sessions").Logger(),
	}
}

// SessionHistory is one session with its generations partitioned by type,
// newest attempt first.
type SessionHistory struct {
	Session   domain.Session      `json:"session"`
	EmptyRoom []domain.Generation `json:"empty_room_generations"`
	Staging   []domain.Generation `json:"staging_generations"`
}

// CreateSession starts a new staging workflow. A session whose room is
// already empty skips empty-room generation entirely: the original photo
// becomes the selected empty-room image.
func (s *Sessions) CreateSession(ctx context.Context, userID, originalImageURL string, roomState domain.RoomState) (*domain.Session, error) {
	url := strings.TrimSpace(originalImageURL)
	if url == "" {
		return nil, &domain.ValidationError{Field: "original_image_url", Reason: "required"}
	}

	session := &domain.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		OriginalImageURL: url,
		RoomState:        roomState,
	}
	switch roomState {
	case domain.RoomStateAlreadyEmpty:
		session.SelectedEmptyRoomURL = url
	case domain.RoomStateGenerateEmpty:
	default:
		return nil, &domain.ValidationError{Field: "room_state", Reason: "must be already_empty or generate_empty"}
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Str("room_state", string(roomState)).
		Msg("session created")
	return session, nil
}

// SelectEmptyRoom records which empty-room image the user picked for
// subsequent staging runs.
func (s *Sessions) SelectEmptyRoom(ctx context.Context, userID, sessionID, url string) (*domain.Session, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, &domain.ValidationError{Field: "image_url", Reason: "required"}
	}
	session, err := s.sessions.GetByIDForUser(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SetSelectedEmptyRoom(ctx, session.ID, url); err != nil {
		return nil, err
	}
	session.SelectedEmptyRoomURL = url
	return session, nil
}

// ListSessionsWithHistory returns the user's sessions by recency, each
// with its generations partitioned by type and ordered by attempt number
// descending. Pure read composition, no side effects.
func (s *Sessions) ListSessionsWithHistory(ctx context.Context, userID string) ([]SessionHistory, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	histories := make([]SessionHistory, 0, len(sessions))
	for _, session := range sessions {
		gens, err := s.generations.ListBySession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		history := SessionHistory{
			Session:   session,
			EmptyRoom: []domain.Generation{},
			Staging:   []domain.Generation{},
		}
		for _, gen := range gens {
			switch gen.Type {
			case domain.GenerationTypeEmptyRoom:
				history.EmptyRoom = append(history.EmptyRoom, gen)
			case domain.GenerationTypeStaging:
				history.Staging = append(history.Staging, gen)
			}
		}
		histories = append(histories, history)
	}
	return histories, nil
}
