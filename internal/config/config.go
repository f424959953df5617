// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jacentio/bomberhub/store"
)

// Prefix is prepended to every variable name.
const Prefix = "GAME_"

// Backend kinds.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// ErrInvalid is returned when a parsed value is out of range.
var ErrInvalid = errors.New("config: invalid value")

// Config is the process configuration of the game server and gamectl.
type Config struct {
	ProjectID string `env:"PROJECT_ID"`
	Backend   string `env:"BACKEND" envDefault:"firestore"`

	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":3000"`
	MetricsAddr string `env:"METRICS_ADDR"`
	CORSOrigin  string `env:"CORS_ORIGIN" envDefault:"*"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"2h"`

	BatchLimit       int           `env:"BATCH_LIMIT" envDefault:"500"`
	UpdateRetryCount int           `env:"UPDATE_RETRY_COUNT" envDefault:"3"`
	UpdateWait       time.Duration `env:"UPDATE_WAIT" envDefault:"500ms"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	Cascade  bool       `env:"CASCADE" envDefault:"true"`
}

// Load parses the GAME_ variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values env cannot check by type alone.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("%w: %sPROJECT_ID is required for the firestore backend", ErrInvalid, Prefix)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if c.BatchLimit < 1 || c.BatchLimit > store.MaxBatchLimit {
		return fmt.Errorf("%w: batch limit %d not in [1, %d]", ErrInvalid, c.BatchLimit, store.MaxBatchLimit)
	}
	if c.UpdateRetryCount < 0 {
		return fmt.Errorf("%w: negative update retry count", ErrInvalid)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session ttl must be positive", ErrInvalid)
	}
	return nil
}

// Store returns the store client settings.
func (c Config) Store(logger *slog.Logger) store.Config {
	sc := store.DefaultConfig()
	sc.BatchLimit = c.BatchLimit
	sc.UpdateRetryCount = c.UpdateRetryCount
	sc.UpdateWait = c.UpdateWait
	sc.Logger = logger
	return sc
}
