package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	SyncInterval     time.Duration `env:"SYNC_INTERVAL" default:"3m"`
	SyncInitialDelay time.Duration `env:"SYNC_INITIAL_DELAY" default:"5s"`

	CacheMaxEntries    int           `env:"CACHE_MAX_ENTRIES" default:"2000"`
	CacheDefaultTTL    time.Duration `env:"CACHE_DEFAULT_TTL" default:"5m"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" default:"1m"`

	HeartbeatInterval    time.Duration `env:"SSE_HEARTBEAT_INTERVAL" default:"30s"`
	MaxStreamConnections int           `env:"MAX_STREAM_CONNECTIONS" default:"10000"`
	MaxStreamsPerIP      int           `env:"MAX_STREAMS_PER_IP" default:"20"`

	NotifyRatePerMinute int `env:"NOTIFY_RATE_PER_MINUTE" default:"50"`
	NotifyBurst         int `env:"NOTIFY_BURST" default:"10"`

	APIRatePerSecond float64 `env:"API_RATE_PER_SECOND" default:"20"`
	APIBurst         int     `env:"API_BURST" default:"40"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	positive := map[string]time.Duration{
		"SYNC_INTERVAL":          cfg.SyncInterval,
		"CACHE_DEFAULT_TTL":      cfg.CacheDefaultTTL,
		"CACHE_SWEEP_INTERVAL":   cfg.CacheSweepInterval,
		"SSE_HEARTBEAT_INTERVAL": cfg.HeartbeatInterval,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.SyncInterval < time.Second {
		return errors.New("SYNC_INTERVAL must be at least 1s")
	}
	if cfg.SyncInitialDelay < 0 {
		return errors.New("SYNC_INITIAL_DELAY must not be negative")
	}
	if cfg.CacheMaxEntries <= 0 {
		return errors.New("CACHE_MAX_ENTRIES must be positive")
	}
	if cfg.MaxStreamConnections <= 0 || cfg.MaxStreamsPerIP <= 0 {
		return errors.New("MAX_STREAM_CONNECTIONS and MAX_STREAMS_PER_IP must be positive")
	}
	if cfg.NotifyRatePerMinute <= 0 || cfg.NotifyBurst <= 0 {
		return errors.New("NOTIFY_RATE_PER_MINUTE and NOTIFY_BURST must be positive")
	}
	if cfg.APIRatePerSecond <= 0 || cfg.APIBurst <= 0 {
		return errors.New("API_RATE_PER_SECOND and API_BURST must be positive")
	}

	return nil
}

// UsesPostgres reports whether notifications are persisted to PostgreSQL.
func (c *Config) UsesPostgres() bool { return c.DatabaseURL != "" }

// UsesRedis reports whether broadcasts are relayed across nodes via Redis.
func (c *Config) UsesRedis() bool { return c.RedisURL != "" }
