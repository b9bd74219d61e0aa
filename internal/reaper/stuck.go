// Package reaper holds the periodic sweeps that reclaim state the
// request flow left behind: jobs stranded in a non-terminal status and
// records past their retention windows.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const stuckJobMessage = "timed out"

// StuckSweeper force-fails jobs stranded in a non-terminal state past the
// staleness threshold, a last-resort net for crashes mid-orchestration.
// It never refunds: whether a stranded job consumed provider resources is
// unknown here, so compensation is left to the refund reconciler that
// runs right after each sweep.
type StuckSweeper struct {
	jobs      domain.JobRepository
	staleness time.Duration
	logger    zerolog.Logger
}

// NewStuckSweeper constructs a StuckSweeper.
func NewStuckSweeper(jobs domain.JobRepository, staleness time.Duration, logger zerolog.Logger) *StuckSweeper {
	if staleness <= 0 {
		staleness = 5 * time.Minute
	}
	return &StuckSweeper{
		jobs:      jobs,
		staleness: staleness,
		logger:    logger.With().Str("component", "stuck_sweeper").Logger(),
	}
}

// Sweep terminalizes every pending or processing job older than the
// staleness threshold. Re-running it only ever affects rows still in a
// non-terminal state.
func (s *StuckSweeper) Sweep(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	swept, err := s.jobs.SweepStale(ctx, now.Add(-s.staleness), stuckJobMessage, now)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Warn().Int64("swept", swept).Dur("staleness", s.staleness).Msg("terminated stuck jobs")
	}
	return swept, nil
}
