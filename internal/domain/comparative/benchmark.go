package comparative

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/internal/domain/stats"
	"github.com/okian/refbench/pkg/logger"
	"github.com/okian/refbench/pkg/metrics"
)

const (
	journalPrefix = "journal_"
	fieldPrefix   = "field_"

	benchmarkTopN  = 5
	histogramBins  = 10
	fieldKeyLength = 3
)

// JournalKey is the benchmark category of a journal.
func JournalKey(journalID string) string {
	return journalPrefix + journalID
}

// tagEscaper rewrites "~" and "_" inside a tag so the "_" separator of a
// field key never appears within one tag.
var tagEscaper = strings.NewReplacer("~", "~~", "_", "~u") //nolint:gochecknoglobals // immutable replacer

// fieldKey joins escaped tags with "_". Distinct tag lists give distinct keys.
func fieldKey(tags []string) string {
	escaped := make([]string, len(tags))
	for i, t := range tags {
		escaped[i] = tagEscaper.Replace(t)
	}
	return fieldPrefix + strings.Join(escaped, "_")
}

// FieldKey is the benchmark category of a snapshot's field: its three most
// confident expertise tags, sorted and joined by "_" (an "_" inside a tag is
// written "~u", a "~" is written "~~"). ok is false when the snapshot has no
// expertise.
func FieldKey(snap model.MetricsSnapshot) (string, bool) {
	tags := topTags(snap.Expertise, fieldKeyLength)
	if len(tags) == 0 {
		return "", false
	}
	return fieldKey(tags), true
}

// topTags returns up to n tags ranked by confidence then name, sorted by name.
func topTags(exp model.ExpertiseMetrics, n int) []string {
	tags := append([]string(nil), exp.ExpertiseAreas...)
	sort.Slice(tags, func(i, j int) bool {
		ci, cj := exp.ExpertiseConfidence[tags[i]], exp.ExpertiseConfidence[tags[j]]
		if ci != cj {
			return ci > cj
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	sort.Strings(tags)
	return tags
}

// member is one qualifying referee of a benchmark.
type member struct {
	snap       model.MetricsSnapshot
	quality    float64
	reviewTime float64
	affinity   float64
}

// BenchmarkByJournal aggregates referees with at least one completed review
// for the journal. Journal-level quality and review time feed the composite,
// with familiarity as affinity.
func (e *Engine) BenchmarkByJournal(ctx context.Context, journalID string) (model.BenchmarkRecord, error) {
	if journalID == "" {
		return model.BenchmarkRecord{}, fmt.Errorf("%w: journal", ErrEmptyKey)
	}
	key := JournalKey(journalID)
	return e.cachedBenchmark(ctx, key, func() ([]member, error) {
		ids, err := e.source.GetRefereesByJournal(ctx, journalID)
		if err != nil {
			return nil, fmt.Errorf("referees by journal %q: %w", journalID, err)
		}
		snaps, _, err := e.loader.Load(ctx, "benchmark_journal", ids)
		if err != nil {
			return nil, err
		}
		var members []member
		for _, s := range snaps {
			jm, ok := s.Journals[journalID]
			if !ok || jm.Completed < 1 {
				continue
			}
			members = append(members, member{
				snap:       s,
				quality:    jm.AvgQualityScore,
				reviewTime: jm.AvgReviewTime,
				affinity:   jm.Familiarity,
			})
		}
		return members, nil
	})
}

// BenchmarkByExpertise aggregates referees holding the area with at least
// one completed review. Area confidence is the composite affinity.
func (e *Engine) BenchmarkByExpertise(ctx context.Context, area string) (model.BenchmarkRecord, error) {
	if area == "" {
		return model.BenchmarkRecord{}, fmt.Errorf("%w: expertise area", ErrEmptyKey)
	}
	return e.fieldBenchmark(ctx, []string{area})
}

// FieldAverage is the benchmark of the snapshot's field (see FieldKey). A
// snapshot without expertise gets an insufficient_data record.
func (e *Engine) FieldAverage(ctx context.Context, snap model.MetricsSnapshot) (model.BenchmarkRecord, error) {
	if _, ok := FieldKey(snap); !ok {
		return e.emptyRecord(fieldPrefix), nil
	}
	return e.fieldBenchmark(ctx, topTags(snap.Expertise, fieldKeyLength))
}

// JournalAverage is the benchmark of one journal.
func (e *Engine) JournalAverage(ctx context.Context, journalID string) (model.BenchmarkRecord, error) {
	return e.BenchmarkByJournal(ctx, journalID)
}

// fieldBenchmark aggregates referees holding any of tags. Affinity is the
// mean confidence over tags.
func (e *Engine) fieldBenchmark(ctx context.Context, tags []string) (model.BenchmarkRecord, error) {
	key := fieldKey(tags)
	return e.cachedBenchmark(ctx, key, func() ([]member, error) {
		var ids []string
		for _, t := range tags {
			holders, err := e.source.GetRefereesByExpertise(ctx, t, e.minConfidence)
			if err != nil {
				return nil, fmt.Errorf("referees by expertise %q: %w", t, err)
			}
			ids = append(ids, holders...)
		}
		snaps, _, err := e.loader.Load(ctx, "benchmark_field", ids)
		if err != nil {
			return nil, err
		}
		var members []member
		for _, s := range snaps {
			if s.TotalCompleted < 1 {
				continue
			}
			var affinity float64
			for _, t := range tags {
				affinity += s.Expertise.ExpertiseConfidence[t]
			}
			members = append(members, member{
				snap:       s,
				quality:    s.Quality.AvgQualityScore,
				reviewTime: s.Time.AvgReviewTime,
				affinity:   affinity / float64(len(tags)),
			})
		}
		return members, nil
	})
}

// cachedBenchmark serves key from the benchmark store or builds and stores
// it. Records without qualifying referees are returned but not stored so
// they do not mask later data.
func (e *Engine) cachedBenchmark(ctx context.Context, key string, collect func() ([]member, error)) (model.BenchmarkRecord, error) {
	rec, ok, err := e.benchmarks.GetBenchmark(ctx, key)
	if err != nil {
		metrics.RecordErrorByComponent("comparative", "benchmark_read")
		return model.BenchmarkRecord{}, fmt.Errorf("read benchmark %s: %w", key, err)
	}
	if ok {
		metrics.RecordBenchmarkLookup("hit")
		return rec, nil
	}
	metrics.RecordBenchmarkLookup("miss")

	members, err := collect()
	if err != nil {
		return model.BenchmarkRecord{}, err
	}
	rec = e.aggregate(key, members)
	if rec.Empty() {
		return rec, nil
	}
	if err := e.benchmarks.PutBenchmark(ctx, rec); err != nil {
		metrics.RecordErrorByComponent("comparative", "benchmark_write")
		return model.BenchmarkRecord{}, fmt.Errorf("write benchmark %s: %w", key, err)
	}
	e.log.Debug(ctx, "benchmark computed",
		logger.String("category", key),
		logger.Int("sample_size", rec.SampleSize))
	return rec, nil
}

func (e *Engine) emptyRecord(key string) model.BenchmarkRecord {
	return model.BenchmarkRecord{
		Category:  key,
		Status:    model.StatusInsufficientData,
		Metrics:   map[string]float64{},
		UpdatedAt: e.now(),
	}
}

// aggregate builds the record from members ordered by referee id.
func (e *Engine) aggregate(key string, members []member) model.BenchmarkRecord {
	if len(members) == 0 {
		return e.emptyRecord(key)
	}

	snaps := make([]model.MetricsSnapshot, len(members))
	entries := make([]model.BenchmarkEntry, len(members))
	composites := make([]float64, len(members))
	var quality, reviewTime float64
	for i, m := range members {
		snaps[i] = m.snap
		c := scoring.Composite(m.quality, m.reviewTime, m.affinity)
		composites[i] = c
		entries[i] = model.BenchmarkEntry{RefereeID: m.snap.RefereeID, Composite: c}
		quality += m.quality
		reviewTime += m.reviewTime
	}

	avg := e.averages(snaps)
	n := float64(len(members))
	avg[model.MetricAvgQualityScore] = quality / n
	avg[model.MetricAvgReviewTime] = reviewTime / n
	avg[model.MetricComposite] = stats.Mean(composites)

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Composite != entries[j].Composite {
			return entries[i].Composite > entries[j].Composite
		}
		return entries[i].RefereeID < entries[j].RefereeID
	})
	if len(entries) > benchmarkTopN {
		entries = entries[:benchmarkTopN]
	}

	edges, counts := stats.Histogram(composites, histogramBins)
	return model.BenchmarkRecord{
		Category:   key,
		Status:     model.StatusOK,
		Metrics:    avg,
		SampleSize: len(members),
		Top:        entries,
		Histogram:  &model.Histogram{Edges: edges, Counts: counts},
		UpdatedAt:  e.now(),
	}
}

// InvalidateBenchmark drops one cached benchmark, or all of them when
// category is empty.
func (e *Engine) InvalidateBenchmark(ctx context.Context, category string) error {
	if err := e.benchmarks.DeleteBenchmark(ctx, category); err != nil {
		return fmt.Errorf("delete benchmark %q: %w", category, err)
	}
	e.log.Info(ctx, "benchmark invalidated", logger.String("category", category))
	return nil
}
