// Package service wires the store, snapshot cache, comparative engine and
// refresh pipeline into the operations exposed over HTTP and the CLI.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/refbench/internal/adapters/mq/queue"
	"github.com/okian/refbench/internal/adapters/mq/worker"
	"github.com/okian/refbench/internal/adapters/repository"
	"github.com/okian/refbench/internal/config"
	"github.com/okian/refbench/internal/domain/comparative"
	"github.com/okian/refbench/internal/domain/dedupe"
	"github.com/okian/refbench/internal/domain/insights"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/internal/domain/snapcache"
	"github.com/okian/refbench/pkg/logger"
	"github.com/okian/refbench/pkg/metrics"
)

// Service implements the engine's exposed operations.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	ownsStore bool
	cache     *snapcache.Cache
	engine    *comparative.Engine
	tracker   dedupe.Tracker
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	driver            string
	dsn               string
	workerCount       int
	queueSize         int
	dedupeSize        int
	populationWorkers int
	refereeTimeout    time.Duration
	cacheTTL          time.Duration
	peerCap           int
	maxTop            int
	minConfidence     float64
	weights           scoring.Weights
	now               func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		driver:            config.DriverMemory,
		workerCount:       runtime.NumCPU(),
		queueSize:         10_000,
		dedupeSize:        100_000,
		populationWorkers: runtime.NumCPU() * 4,
		refereeTimeout:    2 * time.Second,
		cacheTTL:          24 * time.Hour,
		peerCap:           20,
		maxTop:            100,
		weights:           scoring.DefaultWeights,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store when none was injected and starts the refresh workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.store == nil {
		store, err := s.openStore()
		if err != nil {
			return err
		}
		s.store = store
		s.ownsStore = true
	}

	scorer := scoring.New(scoring.WithWeights(s.weights))
	s.cache = snapcache.New(s.store, s.store,
		snapcache.WithTTL(s.cacheTTL),
		snapcache.WithClock(s.now),
		snapcache.WithScorer(scorer),
		snapcache.WithLogger(s.logger.Named("snapcache")),
	)
	fanout := worker.NewFanout(
		worker.WithWorkers(s.populationWorkers),
		worker.WithRefereeTimeout(s.refereeTimeout),
		worker.WithFanoutLogger(s.logger.Named("fanout")),
	)
	s.engine = comparative.New(s.store, s.cache, fanout.Bind(s.cache), s.store,
		comparative.WithScorer(scorer),
		comparative.WithInsights(insights.New(insights.WithScorer(scorer))),
		comparative.WithPeerCap(s.peerCap),
		comparative.WithMaxTopLimit(s.maxTop),
		comparative.WithMinConfidence(s.minConfidence),
		comparative.WithClock(s.now),
		comparative.WithLogger(s.logger.Named("comparative")),
	)

	s.tracker = dedupe.NewInMemoryTracker(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.cache,
		worker.WithTracker(s.tracker),
		worker.WithLogger(s.logger.Named("worker")),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "refbench service started",
		logger.String("driver", s.driver),
		logger.Int("refresh_workers", s.workerCount),
		logger.Int("population_workers", s.populationWorkers),
		logger.Int("queue_size", s.queueSize),
		logger.Duration("cache_ttl", s.cacheTTL))
	return nil
}

func (s *Service) openStore() (repository.Store, error) {
	if s.driver == "" || s.driver == config.DriverMemory {
		return repository.NewMemory(), nil
	}
	store, err := repository.Open(s.driver, s.dsn, repository.WithLogger(s.logger.Named("gorm")))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", s.driver, err)
	}
	return store, nil
}

// Stop drains the refresh workers and closes an owned store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping refbench service...")

	var firstErr error
	if err := s.pool.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
		s.store = nil
		s.ownsStore = false
	}
	s.started = false
	s.logger.Info(ctx, "refbench service stopped")
	return firstErr
}

// Store returns the underlying store, nil before Start.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// GetMetrics returns the referee's snapshot, recomputing it when stale or forced.
func (s *Service) GetMetrics(ctx context.Context, id string, forceRefresh bool) (model.MetricsSnapshot, error) {
	if err := s.ready(); err != nil {
		return model.MetricsSnapshot{}, err
	}
	return s.cache.Get(ctx, id, forceRefresh)
}

// GetTrend returns the referee's history over the last days days.
func (s *Service) GetTrend(ctx context.Context, id string, days int) (model.TrendResult, error) {
	if err := s.ready(); err != nil {
		return model.TrendResult{}, err
	}
	return s.cache.GetTrend(ctx, id, days)
}

// Rank returns the referee's percentile ranks.
func (s *Service) Rank(ctx context.Context, id string) (model.RankResult, error) {
	if err := s.ready(); err != nil {
		return model.RankResult{}, err
	}
	return s.engine.Rank(ctx, id)
}

// FindPeers returns the referee's peer group.
func (s *Service) FindPeers(ctx context.Context, id string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.engine.FindPeers(ctx, id)
}

// PeerComparison returns the referee's full comparison context.
func (s *Service) PeerComparison(ctx context.Context, id string) (model.PeerComparison, error) {
	if err := s.ready(); err != nil {
		return model.PeerComparison{}, err
	}
	return s.engine.PeerComparison(ctx, id)
}

// TopPerformers returns the best referees in category.
func (s *Service) TopPerformers(ctx context.Context, limit int, category string) ([]model.TopPerformer, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.engine.TopPerformers(ctx, limit, category)
}

// Distribution summarises one score over the population.
func (s *Service) Distribution(ctx context.Context, metric string) (model.DistributionStats, error) {
	if err := s.ready(); err != nil {
		return model.DistributionStats{}, err
	}
	return s.engine.Distribution(ctx, metric)
}

// BenchmarkByJournal returns the journal benchmark.
func (s *Service) BenchmarkByJournal(ctx context.Context, journalID string) (model.BenchmarkRecord, error) {
	if err := s.ready(); err != nil {
		return model.BenchmarkRecord{}, err
	}
	return s.engine.BenchmarkByJournal(ctx, journalID)
}

// BenchmarkByExpertise returns the expertise-area benchmark.
func (s *Service) BenchmarkByExpertise(ctx context.Context, area string) (model.BenchmarkRecord, error) {
	if err := s.ready(); err != nil {
		return model.BenchmarkRecord{}, err
	}
	return s.engine.BenchmarkByExpertise(ctx, area)
}

// InvalidateBenchmark drops one cached benchmark, or all when category is empty.
func (s *Service) InvalidateBenchmark(ctx context.Context, category string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.engine.InvalidateBenchmark(ctx, category)
}

// Refresh queues a forced recomputation. A referee already queued is
// acknowledged without a second request. A full queue returns queue.ErrQueueFull.
func (s *Service) Refresh(ctx context.Context, id string) (model.RefreshAck, error) {
	if err := s.ready(); err != nil {
		return model.RefreshAck{}, err
	}
	if _, err := s.store.GetReferee(ctx, id); err != nil {
		return model.RefreshAck{}, err
	}
	if !s.tracker.Begin(ctx, id) {
		return model.RefreshAck{RefereeID: id, Status: model.RefreshPending}, nil
	}

	req := model.RefreshRequest{RequestID: uuid.NewString(), RefereeID: id, EnqueuedAt: s.now()}
	if err := s.queue.Enqueue(ctx, req); err != nil {
		s.tracker.Done(ctx, id)
		s.logger.Warn(ctx, "refresh rejected",
			logger.String("referee_id", id),
			logger.Error(err))
		return model.RefreshAck{}, err
	}
	return model.RefreshAck{RequestID: req.RequestID, RefereeID: id, Status: model.RefreshQueued}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":            s.started,
		"driver":             s.driver,
		"refresh_workers":    s.workerCount,
		"population_workers": s.populationWorkers,
		"queue_capacity":     s.queueSize,
		"cache_ttl_hours":    s.cacheTTL.Hours(),
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len()
	stats["queue_length"] = queueLen
	stats["refresh_in_flight"] = s.tracker.Size()
	metrics.UpdateRefreshQueue(queueLen, s.queue.Cap())

	if ids, err := s.store.ListActiveRefereeIDs(ctx); err == nil {
		stats["active_referees"] = len(ids)
	} else {
		s.logger.Warn(ctx, "stats: list active referees", logger.Error(err))
	}
	return stats
}
