package service

import (
	"time"

	"github.com/okian/refbench/internal/adapters/repository"
	"github.com/okian/refbench/internal/config"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig copies every tunable out of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		s.driver = cfg.DBDriver
		s.dsn = cfg.DBDSN
		s.cacheTTL = cfg.CacheTTL()
		s.refereeTimeout = cfg.RefereeTimeout()
		s.populationWorkers = cfg.PopulationWorkers
		s.peerCap = cfg.PeerCandidateCap
		s.maxTop = cfg.MaxTopLimit
		s.queueSize = cfg.RefreshQueueSize
		s.workerCount = cfg.RefreshWorkers
		s.dedupeSize = cfg.DedupeSize
		s.minConfidence = cfg.ExpertiseMinConfidence
		s.weights = scoring.Weights{
			Speed:       cfg.ScoreWeights.Speed,
			Quality:     cfg.ScoreWeights.Quality,
			Reliability: cfg.ScoreWeights.Reliability,
			Expertise:   cfg.ScoreWeights.Expertise,
		}
	}
}

// WithStore injects an already opened store. The service does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDatabase selects the store driver and DSN opened by Start.
func WithDatabase(driver, dsn string) Option {
	return func(s *Service) {
		s.driver = driver
		s.dsn = dsn
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending refreshes.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the capacity of the in-flight refresh set.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithPopulationWorkers sizes the population fan-out pool.
func WithPopulationWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.populationWorkers = n
		}
	}
}

// WithRefereeTimeout bounds one referee's load during population folds.
func WithRefereeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refereeTimeout = d
		}
	}
}

// WithCacheTTL sets the snapshot freshness window.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}
