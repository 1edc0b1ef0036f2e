// Package repository defines the store contracts of the engine and their
// in-memory and gorm-backed implementations.
package repository

import (
	"context"
	"sort"
	"time"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/pkg/metrics"
)

// EventSource is the read-only view over the review-event store.
type EventSource interface {
	// GetReferee returns the identity record or an error wrapping model.ErrRefereeNotFound.
	GetReferee(ctx context.Context, id string) (model.Referee, error)
	// GetReviewEvents returns the referee's events ordered by invitation time.
	GetReviewEvents(ctx context.Context, id string) ([]model.ReviewEvent, error)
	// GetExpertise returns the expertise evidence of a referee, possibly empty.
	GetExpertise(ctx context.Context, id string) (model.Expertise, error)
	// ListActiveRefereeIDs returns active referee ids in ascending order.
	ListActiveRefereeIDs(ctx context.Context) ([]string, error)
	// GetRefereesByExpertise returns referees holding tag with at least
	// minConfidence evidence, or declaring it on their profile.
	GetRefereesByExpertise(ctx context.Context, tag string, minConfidence float64) ([]string, error)
	// GetRefereesByJournal returns referees invited by the journal at least once.
	GetRefereesByJournal(ctx context.Context, journalID string) ([]string, error)
}

// CacheStore persists one snapshot per referee.
type CacheStore interface {
	// GetCacheEntry returns the stored entry, ok=false when absent or written
	// under another snapshot schema version.
	GetCacheEntry(ctx context.Context, refereeID string) (model.CacheEntry, bool, error)
	// PutCacheEntry upserts the entry unless a newer one is already stored.
	PutCacheEntry(ctx context.Context, entry model.CacheEntry) error
}

// HistoryStore persists the daily trend rows.
type HistoryStore interface {
	// UpsertHistory writes the point, replacing any row for the same referee and day.
	UpsertHistory(ctx context.Context, point model.HistoryPoint) error
	// History returns points with fromDay <= day <= toDay ordered by day.
	History(ctx context.Context, refereeID, fromDay, toDay string) ([]model.HistoryPoint, error)
}

// BenchmarkStore persists benchmark aggregates by category.
type BenchmarkStore interface {
	GetBenchmark(ctx context.Context, category string) (model.BenchmarkRecord, bool, error)
	PutBenchmark(ctx context.Context, record model.BenchmarkRecord) error
	// DeleteBenchmark removes one category, or every category when category is empty.
	DeleteBenchmark(ctx context.Context, category string) error
}

// Writer is the ingestion side used by seeding and tests.
type Writer interface {
	PutReferee(ctx context.Context, referee model.Referee) error
	PutExpertise(ctx context.Context, refereeID string, expertise model.Expertise) error
	// AddReviewEvents validates and upserts events keyed by (manuscript, referee).
	AddReviewEvents(ctx context.Context, events ...model.ReviewEvent) error
}

// Store is everything the service needs from persistence.
type Store interface {
	EventSource
	CacheStore
	HistoryStore
	BenchmarkStore
	Writer
	Close() error
}

func observe(operation string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(operation, float64(time.Since(start).Microseconds())/1000)
}

func sortEvents(events []model.ReviewEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].InvitedAt, events[j].InvitedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return events[i].ManuscriptID < events[j].ManuscriptID
	})
}

func validateAll(events []model.ReviewEvent) error {
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}
