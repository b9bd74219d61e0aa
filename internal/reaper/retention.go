package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// RetentionSweeper is the age-based garbage collector for sessions and
// generation history. Pure storage cleanup: it never touches credit
// state, and deleting history is never a billing event.
type RetentionSweeper struct {
	sessions         domain.SessionRepository
	generations      domain.GenerationRepository
	failedRetention  time.Duration
	sessionRetention time.Duration
	logger           zerolog.Logger
}

// NewRetentionSweeper constructs a RetentionSweeper.
func NewRetentionSweeper(
	sessions domain.SessionRepository,
	generations domain.GenerationRepository,
	failedRetention, sessionRetention time.Duration,
	logger zerolog.Logger,
) *RetentionSweeper {
	if failedRetention <= 0 {
		failedRetention = 7 * 24 * time.Hour
	}
	if sessionRetention <= 0 {
		sessionRetention = 30 * 24 * time.Hour
	}
	return &RetentionSweeper{
		sessions:         sessions,
		generations:      generations,
		failedRetention:  failedRetention,
		sessionRetention: sessionRetention,
		logger:           logger.With().Str("component", "retention_sweeper").Logger(),
	}
}

// RetentionResult reports how many rows each pass removed.
type RetentionResult struct {
	FailedGenerations int64 `json:"failed_generations"`
	Sessions          int64 `json:"sessions"`
	OrphanGenerations int64 `json:"orphan_generations"`
}

// Sweep runs the three purges: failed generations past the short window,
// sessions past the long window (cascading to their generations), and
// orphaned generations left behind by partial cascade failures.
func (s *RetentionSweeper) Sweep(ctx context.Context) (RetentionResult, error) {
	now := time.Now().UTC()
	var result RetentionResult
	var err error

	result.FailedGenerations, err = s.generations.DeleteFailedOlderThan(ctx, now.Add(-s.failedRetention))
	if err != nil {
		return result, err
	}
	result.Sessions, err = s.sessions.DeleteOlderThan(ctx, now.Add(-s.sessionRetention))
	if err != nil {
		return result, err
	}
	result.OrphanGenerations, err = s.generations.DeleteOrphans(ctx)
	if err != nil {
		return result, err
	}

	if result.FailedGenerations+result.Sessions+result.OrphanGenerations > 0 {
		s.logger.Info().
			Int64("failed_generations", result.FailedGenerations).
			Int64("sessions", result.Sessions).
			Int64("orphan_generations", result.OrphanGenerations).
			Msg("retention cleanup removed rows")
	}
	return result, nil
}
