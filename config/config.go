package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	WorkerCount        int           `env:"WORKER_COUNT" envDefault:"2" validate:"min=1,max=64"`
	PollInterval       time.Duration `env:"POLL_INTERVAL" envDefault:"1s" validate:"min=10ms,max=1m"`
	StaleJobTimeout    time.Duration `env:"STALE_JOB_TIMEOUT" envDefault:"30m" validate:"min=1m"`
	ReaperInterval     time.Duration `env:"REAPER_INTERVAL" envDefault:"1m" validate:"min=1s"`
	DefaultMaxAttempts int           `env:"DEFAULT_MAX_ATTEMPTS" envDefault:"3" validate:"min=1,max=20"`

	JobRetentionDays int           `env:"JOB_RETENTION_DAYS" envDefault:"7" validate:"min=1"`
	CleanupCron      string        `env:"CLEANUP_CRON" envDefault:"@daily" validate:"required"`
	RefreshCron      string        `env:"REFRESH_CRON" envDefault:"@hourly" validate:"required"`
	RefreshAfter     time.Duration `env:"REFRESH_AFTER" envDefault:"168h" validate:"min=1m"`
	RefreshBatch     int           `env:"REFRESH_BATCH" envDefault:"100" validate:"min=1,max=10000"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	// EmbedWorker runs the background worker inside the API process, which
	// then reports live provider health. Meant for single-node deployments.
	EmbedWorker bool `env:"EMBED_WORKER" envDefault:"false"`

	JikanBaseURL string  `env:"JIKAN_BASE_URL" envDefault:"https://api.jikan.moe/v4" validate:"required,url"`
	JikanRPS     float64 `env:"JIKAN_RPS" envDefault:"3" validate:"gt=0"`
	KitsuBaseURL string  `env:"KITSU_BASE_URL" envDefault:"https://kitsu.io/api/edge" validate:"required,url"`
	KitsuRPS     float64 `env:"KITSU_RPS" envDefault:"10" validate:"gt=0"`
	// ProviderTimeout bounds a single outbound request, independent of retry backoff.
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s" validate:"min=100ms"`
	UserAgent       string        `env:"USER_AGENT" envDefault:"anime-sync/1.0"`

	JWTSecret    string `env:"JWT_SECRET,required"   validate:"required,min=32"`
	ResendAPIKey string `env:"RESEND_API_KEY"         validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"            validate:"required_if=Env production,required_if=Env staging"`
	AlertEmail   string `env:"ALERT_EMAIL"            validate:"omitempty,email"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
