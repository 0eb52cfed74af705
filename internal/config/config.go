// Package config loads process configuration from the environment. The
// resulting value is constructed explicitly and passed down; nothing in the
// core reads ambient globals.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"development"`
	Port     int    `env:"PORT" envDefault:"8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"pangancache.db"`

	UpstreamBaseURL     string        `env:"UPSTREAM_BASE_URL"`
	UpstreamTimeout     time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UpstreamMaxAttempts int           `env:"UPSTREAM_MAX_ATTEMPTS" envDefault:"5"`
	UpstreamMock        bool          `env:"UPSTREAM_MOCK" envDefault:"false"`

	IngestInterval time.Duration `env:"INGEST_INTERVAL" envDefault:"6h"`
	IngestLevelID  int           `env:"INGEST_LEVEL_ID" envDefault:"3"`
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("config: load .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// Logger builds the process logger from the configured level and format.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if c.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
