// Package snapcache serves metrics snapshots through a TTL cache and records
// a daily history point for every fresh computation.
package snapcache

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/refbench/internal/domain/calculator"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/internal/domain/stats"
	"github.com/okian/refbench/pkg/logger"
	"github.com/okian/refbench/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL = 24 * time.Hour
	// stableSlope is the dead zone, in overall points per day, reported as stable.
	stableSlope = 0.01
)

// Source reads what the calculator needs.
type Source interface {
	GetReferee(ctx context.Context, id string) (model.Referee, error)
	GetReviewEvents(ctx context.Context, id string) ([]model.ReviewEvent, error)
	GetExpertise(ctx context.Context, id string) (model.Expertise, error)
}

// Store persists cache entries and history points.
type Store interface {
	GetCacheEntry(ctx context.Context, refereeID string) (model.CacheEntry, bool, error)
	PutCacheEntry(ctx context.Context, entry model.CacheEntry) error
	UpsertHistory(ctx context.Context, point model.HistoryPoint) error
	History(ctx context.Context, refereeID, fromDay, toDay string) ([]model.HistoryPoint, error)
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets the snapshot freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCalculator replaces the default calculator.
func WithCalculator(calc *calculator.Calculator) Option {
	return func(c *Cache) {
		if calc != nil {
			c.calc = calc
		}
	}
}

// WithScorer replaces the default scorer used for history points.
func WithScorer(s *scoring.Scorer) Option {
	return func(c *Cache) {
		if s != nil {
			c.scorer = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(c *Cache) {
		if lg != nil {
			c.log = lg
		}
	}
}

// Cache is the snapshot read path.
type Cache struct {
	source Source
	store  Store
	calc   *calculator.Calculator
	scorer *scoring.Scorer
	ttl    time.Duration
	now    func() time.Time
	log    logger.Logger
	group  singleflight.Group
}

// New creates a Cache over source and store.
func New(source Source, store Store, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		store:  store,
		calc:   calculator.New(),
		scorer: scoring.New(),
		ttl:    defaultTTL,
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the referee's snapshot. A fresh cached entry is returned as-is
// and writes nothing. Otherwise the snapshot is recomputed, cached and
// today's history point upserted. Concurrent recomputations of one referee
// share a single run.
func (c *Cache) Get(ctx context.Context, id string, forceRefresh bool) (model.MetricsSnapshot, error) {
	if !forceRefresh {
		entry, ok, err := c.store.GetCacheEntry(ctx, id)
		if err != nil {
			metrics.RecordErrorByComponent("snapcache", "cache_read")
			return model.MetricsSnapshot{}, fmt.Errorf("read cache %s: %w", id, err)
		}
		switch {
		case ok && entry.Fresh(c.now()):
			metrics.RecordCacheLookup(metrics.CacheHit)
			return entry.Snapshot, nil
		case ok:
			metrics.RecordCacheLookup(metrics.CacheExpired)
		default:
			metrics.RecordCacheLookup(metrics.CacheMiss)
		}
	} else {
		metrics.RecordCacheLookup(metrics.CacheForced)
	}

	// The shared run must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (any, error) {
		return c.recompute(shared, id)
	})
	select {
	case <-ctx.Done():
		return model.MetricsSnapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.MetricsSnapshot{}, res.Err
		}
		return res.Val.(model.MetricsSnapshot), nil
	}
}

func (c *Cache) recompute(ctx context.Context, id string) (model.MetricsSnapshot, error) {
	start := time.Now()

	referee, err := c.source.GetReferee(ctx, id)
	if err != nil {
		return model.MetricsSnapshot{}, err
	}
	events, err := c.source.GetReviewEvents(ctx, id)
	if err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("load events %s: %w", id, err)
	}
	expertise, err := c.source.GetExpertise(ctx, id)
	if err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("load expertise %s: %w", id, err)
	}

	now := c.now()
	snap := c.calc.Compute(referee, expertise, events, now)

	entry := model.CacheEntry{
		RefereeID:  id,
		Snapshot:   snap,
		ComputedAt: now,
		ValidUntil: now.Add(c.ttl),
	}
	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		metrics.RecordErrorByComponent("snapcache", "cache_write")
		return model.MetricsSnapshot{}, fmt.Errorf("write cache %s: %w", id, err)
	}

	point := model.HistoryPoint{RefereeID: id, Day: model.Day(now), Scores: c.scorer.Scores(snap)}
	if err := c.store.UpsertHistory(ctx, point); err != nil {
		metrics.RecordErrorByComponent("snapcache", "history_write")
		return model.MetricsSnapshot{}, fmt.Errorf("write history %s: %w", id, err)
	}
	metrics.RecordHistoryWrite()

	elapsed := time.Since(start)
	metrics.RecordSnapshotComputed(float64(elapsed.Microseconds()) / 1000)
	c.log.Debug(ctx, "snapshot computed",
		logger.String("referee_id", id),
		logger.Int("events", len(events)),
		logger.Duration("elapsed", elapsed))
	return snap, nil
}

// Cached returns the last stored snapshot regardless of its age.
func (c *Cache) Cached(ctx context.Context, id string) (model.MetricsSnapshot, bool, error) {
	entry, ok, err := c.store.GetCacheEntry(ctx, id)
	if err != nil {
		return model.MetricsSnapshot{}, false, fmt.Errorf("read cache %s: %w", id, err)
	}
	return entry.Snapshot, ok, nil
}

// GetTrend returns the history points of the last days calendar days,
// today included, and the direction of their least-squares overall slope.
func (c *Cache) GetTrend(ctx context.Context, id string, days int) (model.TrendResult, error) {
	if days <= 0 {
		return model.TrendResult{}, fmt.Errorf("%w: %d", ErrInvalidDays, days)
	}
	if _, err := c.source.GetReferee(ctx, id); err != nil {
		return model.TrendResult{}, err
	}

	now := c.now()
	from := model.Day(now.AddDate(0, 0, 1-days))
	points, err := c.store.History(ctx, id, from, model.Day(now))
	if err != nil {
		return model.TrendResult{}, fmt.Errorf("read history %s: %w", id, err)
	}

	res := model.TrendResult{RefereeID: id, Days: days, Points: points}
	if len(points) < 2 {
		res.Direction = model.StatusInsufficientData
		return res, nil
	}

	first, err := time.Parse(model.DayLayout, points[0].Day)
	if err != nil {
		return model.TrendResult{}, fmt.Errorf("parse history day %q: %w", points[0].Day, err)
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		d, err := time.Parse(model.DayLayout, p.Day)
		if err != nil {
			return model.TrendResult{}, fmt.Errorf("parse history day %q: %w", p.Day, err)
		}
		xs[i] = d.Sub(first).Hours() / 24
		ys[i] = p.Overall
	}

	res.Slope = stats.Slope(xs, ys)
	switch {
	case res.Slope > stableSlope:
		res.Direction = model.TrendImproving
	case res.Slope < -stableSlope:
		res.Direction = model.TrendDeclining
	default:
		res.Direction = model.TrendStable
	}
	return res, nil
}
