package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	StagingVariants int
	EmptyRoomCost   int
	StagingCost     int
	WelcomeCredits  int

	StuckJobStaleness time.Duration
	FailedRetention   time.Duration
	SessionRetention  time.Duration
	ReaperInterval    time.Duration

	RedisAddr     string
	RedisPassword string
	RabbitMQURL   string
	GeoIPDBPath   string

	RateLimitPerMin  int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api.virtualstaging.dev/v1"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
		ProviderTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 90)),

		StagingVariants: getEnvInt("STAGING_VARIANTS", 2),
		EmptyRoomCost:   getEnvInt("EMPTY_ROOM_COST", 10),
		StagingCost:     getEnvInt("STAGING_COST", 20),
		WelcomeCredits:  getEnvInt("WELCOME_CREDITS", 0),

		StuckJobStaleness: time.Minute * time.Duration(getEnvInt("STUCK_JOB_STALENESS_MINUTES", 5)),
		FailedRetention:   24 * time.Hour * time.Duration(getEnvInt("FAILED_RETENTION_DAYS", 7)),
		SessionRetention:  24 * time.Hour * time.Duration(getEnvInt("SESSION_RETENTION_DAYS", 30)),
		ReaperInterval:    time.Second * time.Duration(getEnvInt("REAPER_INTERVAL_SECONDS", 60)),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RabbitMQURL:   os.Getenv("RABBITMQ_URL"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),

		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.StagingVariants < 1 {
		return nil, fmt.Errorf("STAGING_VARIANTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
