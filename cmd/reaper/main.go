// The reaper binary runs the periodic maintenance loop: terminalize
// stuck jobs, repair missing refunds, then apply retention cleanup.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/infra"
	"server/internal/reaper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		bootLogger := infra.NewLogger("production")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", "reaper").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	jobs := repo.NewJobRepository(pool)
	sessions := repo.NewSessionRepository(pool)
	generations := repo.NewGenerationRepository(pool)
	ledger := credits.NewLedger(repo.NewCreditRepository(pool), logger)

	stuck := reaper.NewStuckSweeper(jobs, cfg.StuckJobStaleness, logger)
	reconciler := credits.NewRefundReconciler(jobs, ledger, logger)
	retention := reaper.NewRetentionSweeper(sessions, generations, cfg.FailedRetention, cfg.SessionRetention, logger)

	logger.Info().Dur("interval", cfg.ReaperInterval).Msg("reaper started")

	ticker := time.NewTicker(cfg.ReaperInterval)
	defer ticker.Stop()

	runPass(ctx, stuck, reconciler, retention, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			runPass(ctx, stuck, reconciler, retention, logger)
		}
	}
}

// runPass executes one maintenance cycle. Order matters: the sweep
// terminalizes stuck jobs without touching credits, and the reconciler
// immediately after refunds them through the same exactly-once path as
// ordinary failures.
func runPass(ctx context.Context, stuck *reaper.StuckSweeper, reconciler *credits.RefundReconciler, retention *reaper.RetentionSweeper, logger infra.Logger) {
	if swept, err := stuck.Sweep(ctx); err != nil {
		logger.Error().Err(err).Msg("stuck job sweep failed")
	} else if swept > 0 {
		logger.Info().Int64("swept", swept).Msg("stuck jobs terminalized")
	}

	if refunded, err := reconciler.Reconcile(ctx); err != nil {
		logger.Error().Err(err).Msg("refund reconciliation failed")
	} else if refunded > 0 {
		logger.Info().Int64("refunded", refunded).Msg("missing refunds repaired")
	}

	if result, err := retention.Sweep(ctx); err != nil {
		logger.Error().Err(err).Msg("retention sweep failed")
	} else if result.FailedGenerations+result.Sessions+result.OrphanGenerations > 0 {
		logger.Info().
			Int64("failed_generations", result.FailedGenerations).
			Int64("sessions", result.Sessions).
			Int64("orphan_generations", result.OrphanGenerations).
			Msg("retention applied")
	}
}
