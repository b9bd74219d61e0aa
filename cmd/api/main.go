package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/providers/generation"
	"server/internal/queue"
	"server/internal/reaper"
	"server/internal/staging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		bootLogger := infra.NewLogger("production")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	users := repo.NewUserRepository(pool)
	creditRepo := repo.NewCreditRepository(pool)
	jobs := repo.NewJobRepository(pool)
	sessions := repo.NewSessionRepository(pool)
	generations := repo.NewGenerationRepository(pool)

	ledger := credits.NewLedger(creditRepo, logger)
	reconciler := credits.NewRefundReconciler(jobs, ledger, logger)

	provider := generation.NewClient(generation.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})

	publisher, err := queue.NewPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("event publishing disabled")
	}
	if publisher != nil {
		defer publisher.Close()
	}

	manager := staging.NewManager(jobs, sessions, generations, ledger, provider, publisher, staging.Options{
		EmptyRoomCost:   cfg.EmptyRoomCost,
		StagingCost:     cfg.StagingCost,
		Variants:        cfg.StagingVariants,
		ProviderTimeout: cfg.ProviderTimeout,
	}, logger)
	sessionSvc := staging.NewSessions(sessions, generations, logger)

	stuck := reaper.NewStuckSweeper(jobs, cfg.StuckJobStaleness, logger)
	retention := reaper.NewRetentionSweeper(sessions, generations, cfg.FailedRetention, cfg.SessionRetention, logger)

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip lookups disabled")
	}

	rdb := infra.NewRedisClient(cfg)
	if rdb == nil && cfg.RedisAddr != "" {
		logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis unreachable, rate limiting disabled")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	app := &handlers.App{
		Config:      cfg,
		Logger:      logger,
		Users:       users,
		Credits:     ledger,
		Generations: manager,
		Sessions:    sessionSvc,
		Stuck:       stuck,
		Retention:   retention,
		Reconciler:  reconciler,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, rdb, countries))

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("api listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}
