package store

import (
	"log/slog"
	"time"
)

// MaxBatchLimit is the provider ceiling on mutations per atomic batch.
const MaxBatchLimit = 500

// Config holds configuration for the Client.
type Config struct {
	// BatchLimit is the number of mutations after which a Batch flushes.
	// Default: 500
	// Max: 500
	BatchLimit int

	// UpdateRetryCount is how many times a failed Update is retried.
	// Default: 3
	UpdateRetryCount int

	// UpdateWait is the fixed delay between Update attempts.
	// Default: 500ms
	UpdateWait time.Duration

	// CreatedField is stamped by Create.
	// Default: "dateCreated"
	CreatedField string

	// ModifiedField is stamped by Set.
	// Default: "dateModified"
	ModifiedField string

	// RefreshedField is stamped by Update and SetMerge.
	// Default: "dateLastRefresh"
	RefreshedField string

	// Logger receives every failure the client swallows.
	// Default: slog.Default()
	Logger *slog.Logger

	// Now returns the stamp time. Default: time.Now
	Now func() time.Time
}

// DefaultConfig returns the settings used by the game backend.
func DefaultConfig() Config {
	return Config{
		BatchLimit:       MaxBatchLimit,
		UpdateRetryCount: 3,
		UpdateWait:       500 * time.Millisecond,
		CreatedField:     "dateCreated",
		ModifiedField:    "dateModified",
		RefreshedField:   "dateLastRefresh",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.BatchLimit < 1 || c.BatchLimit > MaxBatchLimit {
		c.BatchLimit = MaxBatchLimit
	}
	if c.UpdateRetryCount < 0 {
		c.UpdateRetryCount = 0
	}
	if c.UpdateWait < 0 {
		c.UpdateWait = 0
	}
	if c.CreatedField == "" {
		c.CreatedField = "dateCreated"
	}
	if c.ModifiedField == "" {
		c.ModifiedField = "dateModified"
	}
	if c.RefreshedField == "" {
		c.RefreshedField = "dateLastRefresh"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
