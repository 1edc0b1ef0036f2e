// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and REFBENCH_* env vars on top of the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// ScoreWeights are the dimension weights of the overall score.
type ScoreWeights struct {
	Speed       float64 `koanf:"speed"`
	Quality     float64 `koanf:"quality"`
	Reliability float64 `koanf:"reliability"`
	Expertise   float64 `koanf:"expertise"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBDriver selects the store: memory, sqlite, mysql or postgres.
	DBDriver string `koanf:"db_driver"`

	// DBDSN is passed to the gorm dialector as-is.
	DBDSN string `koanf:"db_dsn"`

	// CacheTTLHours is the snapshot freshness window.
	CacheTTLHours int `koanf:"cache_ttl_hours"`

	// RefereeTimeoutMS bounds a single referee's snapshot during population folds.
	RefereeTimeoutMS int `koanf:"referee_timeout_ms"`

	// PopulationWorkers sizes the population fan-out pool.
	PopulationWorkers int `koanf:"population_workers"`

	// PeerCandidateCap caps the candidate pool before the experience filter.
	PeerCandidateCap int `koanf:"peer_candidate_cap"`

	// MaxTopLimit caps GET /top?limit.
	MaxTopLimit int `koanf:"max_top_limit"`

	// RefreshQueueSize bounds pending asynchronous refreshes.
	RefreshQueueSize int `koanf:"refresh_queue_size"`

	// RefreshWorkers sets the number of refresh workers.
	RefreshWorkers int `koanf:"refresh_workers"`

	// DedupeSize sets the capacity of the in-flight refresh set.
	DedupeSize int `koanf:"dedupe_size"`

	// ExpertiseMinConfidence is the floor used when discovering peers by tag.
	ExpertiseMinConfidence float64 `koanf:"expertise_min_confidence"`

	// SeedReferees populates an empty store with synthetic referees on startup.
	SeedReferees int `koanf:"seed_referees"`

	// ScoreWeights configures the overall score.
	ScoreWeights ScoreWeights `koanf:"score_weights"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DBDriver:               DriverSQLite,
		DBDSN:                  "file:refbench.db?_pragma=busy_timeout(5000)",
		CacheTTLHours:          24,
		RefereeTimeoutMS:       2000,
		PopulationWorkers:      runtime.NumCPU() * 4,
		PeerCandidateCap:       20,
		MaxTopLimit:            100,
		RefreshQueueSize:       10_000,
		RefreshWorkers:         runtime.NumCPU(),
		DedupeSize:             100_000,
		ExpertiseMinConfidence: 0.0,
		ScoreWeights: ScoreWeights{
			Speed:       0.25,
			Quality:     0.30,
			Reliability: 0.30,
			Expertise:   0.15,
		},
	}
}

// CacheTTL returns the snapshot TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// RefereeTimeout returns the per-referee population timeout.
func (c *Config) RefereeTimeout() time.Duration {
	return time.Duration(c.RefereeTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CacheTTLHours <= 0:
		return fmt.Errorf("%w: cache_ttl_hours must be positive", ErrInvalidConfig)
	case c.RefereeTimeoutMS <= 0:
		return fmt.Errorf("%w: referee_timeout_ms must be positive", ErrInvalidConfig)
	case c.PopulationWorkers <= 0:
		return fmt.Errorf("%w: population_workers must be positive", ErrInvalidConfig)
	case c.PeerCandidateCap <= 0:
		return fmt.Errorf("%w: peer_candidate_cap must be positive", ErrInvalidConfig)
	case c.MaxTopLimit <= 0:
		return fmt.Errorf("%w: max_top_limit must be positive", ErrInvalidConfig)
	case c.RefreshQueueSize <= 0 || c.RefreshWorkers <= 0:
		return fmt.Errorf("%w: refresh queue and workers must be positive", ErrInvalidConfig)
	case c.ExpertiseMinConfidence < 0 || c.ExpertiseMinConfidence > 1:
		return fmt.Errorf("%w: expertise_min_confidence must be in [0,1]", ErrInvalidConfig)
	case c.SeedReferees < 0:
		return fmt.Errorf("%w: seed_referees must not be negative", ErrInvalidConfig)
	}

	switch c.DBDriver {
	case DriverMemory:
	case DriverSQLite, DriverMySQL, DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("%w: db_dsn is required for %s", ErrInvalidConfig, c.DBDriver)
		}
	default:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	}

	w := c.ScoreWeights
	if w.Speed < 0 || w.Quality < 0 || w.Reliability < 0 || w.Expertise < 0 {
		return fmt.Errorf("%w: score weights must not be negative", ErrInvalidConfig)
	}
	if w.Speed+w.Quality+w.Reliability+w.Expertise == 0 {
		return fmt.Errorf("%w: score weights must not all be zero", ErrInvalidConfig)
	}
	return nil
}
