package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/refbench/internal/domain/model"
)

type eventKey struct {
	manuscriptID string
	refereeID    string
}

// Memory is a map-backed Store for tests and demos.
type Memory struct {
	mu         sync.RWMutex
	referees   map[string]model.Referee
	expertise  map[string]model.Expertise
	events     map[string]map[eventKey]model.ReviewEvent
	cache      map[string]model.CacheEntry
	history    map[string]map[string]model.HistoryPoint
	benchmarks map[string]model.BenchmarkRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		referees:   make(map[string]model.Referee),
		expertise:  make(map[string]model.Expertise),
		events:     make(map[string]map[eventKey]model.ReviewEvent),
		cache:      make(map[string]model.CacheEntry),
		history:    make(map[string]map[string]model.HistoryPoint),
		benchmarks: make(map[string]model.BenchmarkRecord),
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// PutReferee inserts or replaces a referee.
func (m *Memory) PutReferee(_ context.Context, r model.Referee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ExpertiseTags = append([]string(nil), r.ExpertiseTags...)
	m.referees[r.ID] = r
	return nil
}

// PutExpertise replaces the expertise evidence of a referee.
func (m *Memory) PutExpertise(_ context.Context, refereeID string, exp model.Expertise) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(model.Expertise, len(exp))
	for tag, e := range exp {
		cp[tag] = e
	}
	m.expertise[refereeID] = cp
	return nil
}

// AddReviewEvents validates and upserts events.
func (m *Memory) AddReviewEvents(_ context.Context, events ...model.ReviewEvent) error {
	if err := validateAll(events); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		byKey, ok := m.events[e.RefereeID]
		if !ok {
			byKey = make(map[eventKey]model.ReviewEvent)
			m.events[e.RefereeID] = byKey
		}
		byKey[eventKey{manuscriptID: e.ManuscriptID, refereeID: e.RefereeID}] = e
	}
	return nil
}

// GetReferee implements EventSource.
func (m *Memory) GetReferee(_ context.Context, id string) (model.Referee, error) {
	defer observe("get_referee", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.referees[id]
	if !ok {
		return model.Referee{}, fmt.Errorf("%w: %s", model.ErrRefereeNotFound, id)
	}
	r.ExpertiseTags = append([]string(nil), r.ExpertiseTags...)
	return r, nil
}

// GetReviewEvents implements EventSource.
func (m *Memory) GetReviewEvents(_ context.Context, id string) ([]model.ReviewEvent, error) {
	defer observe("get_review_events", time.Now())
	m.mu.RLock()
	out := make([]model.ReviewEvent, 0, len(m.events[id]))
	for _, e := range m.events[id] {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sortEvents(out)
	return out, nil
}

// GetExpertise implements EventSource.
func (m *Memory) GetExpertise(_ context.Context, id string) (model.Expertise, error) {
	defer observe("get_expertise", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(model.Expertise, len(m.expertise[id]))
	for tag, e := range m.expertise[id] {
		out[tag] = e
	}
	return out, nil
}

// ListActiveRefereeIDs implements EventSource.
func (m *Memory) ListActiveRefereeIDs(_ context.Context) ([]string, error) {
	defer observe("list_active_referee_ids", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.referees))
	for id, r := range m.referees {
		if r.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetRefereesByExpertise implements EventSource.
func (m *Memory) GetRefereesByExpertise(_ context.Context, tag string, minConfidence float64) ([]string, error) {
	defer observe("get_referees_by_expertise", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{})
	for id, exp := range m.expertise {
		if e, ok := exp[tag]; ok && e.Confidence >= minConfidence {
			set[id] = struct{}{}
		}
	}
	for id, r := range m.referees {
		for _, t := range r.ExpertiseTags {
			if t == tag {
				set[id] = struct{}{}
				break
			}
		}
	}
	return sortedKeys(set), nil
}

// GetRefereesByJournal implements EventSource.
func (m *Memory) GetRefereesByJournal(_ context.Context, journalID string) ([]string, error) {
	defer observe("get_referees_by_journal", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{})
	for id, byKey := range m.events {
		for _, e := range byKey {
			if e.JournalID == journalID {
				set[id] = struct{}{}
				break
			}
		}
	}
	return sortedKeys(set), nil
}

// GetCacheEntry implements CacheStore.
func (m *Memory) GetCacheEntry(_ context.Context, refereeID string) (model.CacheEntry, bool, error) {
	defer observe("get_cache_entry", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cache[refereeID]
	if !ok || e.Snapshot.SchemaVersion != model.SnapshotSchemaVersion {
		return model.CacheEntry{}, false, nil
	}
	return e, true, nil
}

// PutCacheEntry implements CacheStore.
func (m *Memory) PutCacheEntry(_ context.Context, entry model.CacheEntry) error {
	defer observe("put_cache_entry", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.cache[entry.RefereeID]; ok && cur.ComputedAt.After(entry.ComputedAt) {
		return nil
	}
	m.cache[entry.RefereeID] = entry
	return nil
}

// UpsertHistory implements HistoryStore.
func (m *Memory) UpsertHistory(_ context.Context, p model.HistoryPoint) error {
	defer observe("upsert_history", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	byDay, ok := m.history[p.RefereeID]
	if !ok {
		byDay = make(map[string]model.HistoryPoint)
		m.history[p.RefereeID] = byDay
	}
	byDay[p.Day] = p
	return nil
}

// History implements HistoryStore.
func (m *Memory) History(_ context.Context, refereeID, fromDay, toDay string) ([]model.HistoryPoint, error) {
	defer observe("history", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.HistoryPoint
	for day, p := range m.history[refereeID] {
		if day >= fromDay && day <= toDay {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// GetBenchmark implements BenchmarkStore.
func (m *Memory) GetBenchmark(_ context.Context, category string) (model.BenchmarkRecord, bool, error) {
	defer observe("get_benchmark", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.benchmarks[category]
	return b, ok, nil
}

// PutBenchmark implements BenchmarkStore.
func (m *Memory) PutBenchmark(_ context.Context, record model.BenchmarkRecord) error {
	defer observe("put_benchmark", time.Now())
	if record.Category == "" {
		return fmt.Errorf("%w: empty category", ErrInvalidBenchmark)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.benchmarks[record.Category] = record
	return nil
}

// DeleteBenchmark implements BenchmarkStore.
func (m *Memory) DeleteBenchmark(_ context.Context, category string) error {
	defer observe("delete_benchmark", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	if category == "" {
		m.benchmarks = make(map[string]model.BenchmarkRecord)
		return nil
	}
	delete(m.benchmarks, category)
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
