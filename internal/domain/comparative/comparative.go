// Package comparative ranks and benchmarks referees against the population.
package comparative

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/refbench/internal/domain/insights"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/internal/domain/stats"
	"github.com/okian/refbench/pkg/logger"
)

const (
	defaultPeerCap     = 20
	defaultMaxTopLimit = 100

	minYearsExperience = 0.5
	minPeerYearsRatio  = 0.5
	maxPeerYearsRatio  = 2.0

	tieEpsilon = 1e-9
)

// Source lists referees.
type Source interface {
	ListActiveRefereeIDs(ctx context.Context) ([]string, error)
	GetRefereesByExpertise(ctx context.Context, tag string, minConfidence float64) ([]string, error)
	GetRefereesByJournal(ctx context.Context, journalID string) ([]string, error)
}

// Snapshots returns one referee's snapshot.
type Snapshots interface {
	Get(ctx context.Context, id string, forceRefresh bool) (model.MetricsSnapshot, error)
}

// Loader loads snapshots for a fixed id list, ordered by referee id, and
// reports how many referees were left out.
type Loader interface {
	Load(ctx context.Context, operation string, ids []string) ([]model.MetricsSnapshot, int, error)
}

// Benchmarks persists benchmark aggregates.
type Benchmarks interface {
	GetBenchmark(ctx context.Context, category string) (model.BenchmarkRecord, bool, error)
	PutBenchmark(ctx context.Context, record model.BenchmarkRecord) error
	DeleteBenchmark(ctx context.Context, category string) error
}

// Engine implements the comparative operations.
type Engine struct {
	source     Source
	snapshots  Snapshots
	loader     Loader
	benchmarks Benchmarks

	scorer        *scoring.Scorer
	insights      *insights.Generator
	peerCap       int
	minConfidence float64
	maxTop        int
	now           func() time.Time
	log           logger.Logger
}

// New creates an Engine.
func New(source Source, snapshots Snapshots, loader Loader, benchmarks Benchmarks, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		snapshots:  snapshots,
		loader:     loader,
		benchmarks: benchmarks,
		scorer:     scoring.New(),
		peerCap:    defaultPeerCap,
		maxTop:     defaultMaxTopLimit,
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.insights == nil {
		e.insights = insights.New(insights.WithScorer(e.scorer))
	}
	return e
}

// population snapshots the active id list once, plus extra ids, and loads
// exactly that list.
func (e *Engine) population(ctx context.Context, operation string, extra ...string) ([]model.MetricsSnapshot, int, error) {
	ids, err := e.source.ListActiveRefereeIDs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list active referees: %w", err)
	}
	ids = append(ids, extra...)
	return e.loader.Load(ctx, operation, ids)
}

func (e *Engine) scoresOf(snaps []model.MetricsSnapshot) []model.Scores {
	out := make([]model.Scores, len(snaps))
	for i, s := range snaps {
		out[i] = e.scorer.Scores(s)
	}
	return out
}

// Rank returns the referee's percentile in every dimension.
func (e *Engine) Rank(ctx context.Context, id string) (model.RankResult, error) {
	subject, err := e.snapshots.Get(ctx, id, false)
	if err != nil {
		return model.RankResult{}, err
	}
	pop, gaps, err := e.population(ctx, "rank", id)
	if err != nil {
		return model.RankResult{}, err
	}
	pop = ensureMember(pop, subject)

	scores := e.scoresOf(pop)
	return model.RankResult{
		RefereeID:      id,
		Percentiles:    percentileRanks(e.scorer.Scores(subject), scores),
		PopulationSize: len(pop),
		Gaps:           gaps,
	}, nil
}

// ensureMember adds subject when the population load skipped it.
func ensureMember(pop []model.MetricsSnapshot, subject model.MetricsSnapshot) []model.MetricsSnapshot {
	i := sort.Search(len(pop), func(i int) bool { return pop[i].RefereeID >= subject.RefereeID })
	if i < len(pop) && pop[i].RefereeID == subject.RefereeID {
		return pop
	}
	pop = append(pop, model.MetricsSnapshot{})
	copy(pop[i+1:], pop[i:])
	pop[i] = subject
	return pop
}

func percentileRanks(subject model.Scores, pop []model.Scores) model.PercentileRanks {
	p := func(c scoring.Category) float64 {
		values := make([]float64, len(pop))
		for i, sc := range pop {
			values[i] = scoring.Value(sc, c)
		}
		return percentile(scoring.Value(subject, c), values, scoring.LowerIsBetter(c))
	}
	return model.PercentileRanks{
		Speed:       p(scoring.Speed),
		Quality:     p(scoring.Quality),
		Reliability: p(scoring.Reliability),
		Expertise:   p(scoring.Expertise),
		Overall:     p(scoring.Overall),
	}
}

// percentile gives full credit for every strictly worse value and half
// credit for every tie, the subject included.
func percentile(v float64, values []float64, lowerIsBetter bool) float64 {
	if len(values) == 0 {
		return 0
	}
	var worse, tied float64
	for _, x := range values {
		switch {
		case math.Abs(x-v) <= tieEpsilon:
			tied++
		case lowerIsBetter && x > v, !lowerIsBetter && x < v:
			worse++
		}
	}
	return stats.Round1((worse + 0.5*tied) / float64(len(values)) * 100)
}

// FindPeers returns referees sharing at least half of the subject's
// expertise areas with a comparable length of experience, ordered by
// overlap and then id.
func (e *Engine) FindPeers(ctx context.Context, id string) ([]string, error) {
	ids, _, err := e.findPeers(ctx, id)
	return ids, err
}

func (e *Engine) findPeers(ctx context.Context, id string) ([]string, []model.MetricsSnapshot, error) {
	subject, err := e.snapshots.Get(ctx, id, false)
	if err != nil {
		return nil, nil, err
	}
	areas := subject.Expertise.ExpertiseAreas
	if len(areas) == 0 {
		return []string{}, nil, nil
	}
	need := (len(areas) + 1) / 2

	active, err := e.source.ListActiveRefereeIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active referees: %w", err)
	}
	isActive := make(map[string]bool, len(active))
	for _, a := range active {
		isActive[a] = true
	}

	overlap := make(map[string]int)
	for _, area := range areas {
		holders, err := e.source.GetRefereesByExpertise(ctx, area, e.minConfidence)
		if err != nil {
			return nil, nil, fmt.Errorf("referees by expertise %q: %w", area, err)
		}
		for _, h := range holders {
			overlap[h]++
		}
	}

	candidates := make([]string, 0, len(overlap))
	for c, n := range overlap {
		if c != id && isActive[c] && n >= need {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if overlap[a] != overlap[b] {
			return overlap[a] > overlap[b]
		}
		return a < b
	})
	if len(candidates) > e.peerCap {
		candidates = candidates[:e.peerCap]
	}

	loaded, _, err := e.loader.Load(ctx, "peers", candidates)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]model.MetricsSnapshot, len(loaded))
	for _, s := range loaded {
		byID[s.RefereeID] = s
	}

	years := math.Max(subject.Expertise.YearsExperience, minYearsExperience)
	peers := []string{}
	var snaps []model.MetricsSnapshot
	for _, c := range candidates {
		s, ok := byID[c]
		if !ok {
			continue
		}
		ratio := math.Max(s.Expertise.YearsExperience, minYearsExperience) / years
		if ratio < minPeerYearsRatio || ratio > maxPeerYearsRatio {
			continue
		}
		peers = append(peers, c)
		snaps = append(snaps, s)
	}
	return peers, snaps, nil
}

// TopPerformers returns the best referees by category. Equal scores share a
// rank and ranks stay consecutive.
func (e *Engine) TopPerformers(ctx context.Context, limit int, category string) ([]model.TopPerformer, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit > e.maxTop {
		limit = e.maxTop
	}
	cat, err := scoring.ParseCategory(category)
	if err != nil {
		return nil, err
	}

	pop, _, err := e.population(ctx, "top")
	if err != nil {
		return nil, err
	}
	scores := e.scoresOf(pop)

	rows := make([]model.TopPerformer, len(pop))
	for i, s := range pop {
		rows[i] = model.TopPerformer{RefereeID: s.RefereeID, Score: scoring.TopScore(scores[i], cat)}
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := rows[order[a]], rows[order[b]]
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		return ra.RefereeID < rb.RefereeID
	})

	sorted := make([]model.TopPerformer, len(rows))
	for i, idx := range order {
		sorted[i] = rows[idx]
	}
	assignRanksWithTies(sorted)

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	for i := range sorted {
		sorted[i].Percentiles = percentileRanks(scores[order[i]], scores)
	}
	return sorted, nil
}

// assignRanksWithTies expects rows sorted by score descending.
func assignRanksWithTies(rows []model.TopPerformer) {
	rank := 0
	for i := range rows {
		if i == 0 || math.Abs(rows[i].Score-rows[i-1].Score) > tieEpsilon {
			rank++
		}
		rows[i].Rank = rank
	}
}

// Distribution summarises one score over the population. Speed is the raw
// average review time in days.
func (e *Engine) Distribution(ctx context.Context, metric string) (model.DistributionStats, error) {
	cat, err := scoring.ParseCategory(metric)
	if err != nil {
		return model.DistributionStats{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	pop, gaps, err := e.population(ctx, "distribution")
	if err != nil {
		return model.DistributionStats{}, err
	}
	res := model.DistributionStats{Metric: string(cat), N: len(pop), Gaps: gaps}
	if len(pop) == 0 {
		res.Status = model.StatusInsufficientData
		return res, nil
	}

	values := make([]float64, len(pop))
	for i, sc := range e.scoresOf(pop) {
		values[i] = scoring.Value(sc, cat)
	}
	sorted := stats.Sorted(values)
	edges, counts := stats.Histogram(values, histogramBins)

	res.Status = model.StatusOK
	res.Mean = stats.Mean(values)
	res.StdDev = stats.StdDev(values)
	res.Min = sorted[0]
	res.Max = sorted[len(sorted)-1]
	res.P10 = stats.Percentile(sorted, 10)
	res.P25 = stats.Percentile(sorted, 25)
	res.P50 = stats.Percentile(sorted, 50)
	res.P75 = stats.Percentile(sorted, 75)
	res.P90 = stats.Percentile(sorted, 90)
	res.Median = res.P50
	res.Histogram = &model.Histogram{Edges: edges, Counts: counts}
	return res, nil
}

// PeerComparison assembles the referee's full comparison context.
func (e *Engine) PeerComparison(ctx context.Context, id string) (model.PeerComparison, error) {
	snap, err := e.snapshots.Get(ctx, id, false)
	if err != nil {
		return model.PeerComparison{}, err
	}
	peers, peerSnaps, err := e.findPeers(ctx, id)
	if err != nil {
		return model.PeerComparison{}, err
	}
	field, err := e.FieldAverage(ctx, snap)
	if err != nil {
		return model.PeerComparison{}, err
	}

	var journal *model.BenchmarkRecord
	if j, ok := PrimaryJournal(snap); ok {
		rec, err := e.BenchmarkByJournal(ctx, j)
		if err != nil {
			return model.PeerComparison{}, err
		}
		journal = &rec
	}

	rank, err := e.Rank(ctx, id)
	if err != nil {
		return model.PeerComparison{}, err
	}

	return model.PeerComparison{
		Snapshot:       snap,
		Peers:          peers,
		PeerAverage:    e.averages(peerSnaps),
		FieldAverage:   field,
		JournalAverage: journal,
		Percentiles:    rank.Percentiles,
		Insights:       e.insights.Generate(snap, peerSnaps, field, journal),
	}, nil
}

// PrimaryJournal is the journal with the most invitations, ties broken by id.
func PrimaryJournal(snap model.MetricsSnapshot) (string, bool) {
	best, most := "", 0
	for j, m := range snap.Journals {
		if m.Invitations > most || (m.Invitations == most && most > 0 && j < best) {
			best, most = j, m.Invitations
		}
	}
	return best, most > 0
}

// averages returns the mean of every aggregate metric over snaps.
func (e *Engine) averages(snaps []model.MetricsSnapshot) map[string]float64 {
	out := make(map[string]float64)
	if len(snaps) == 0 {
		return out
	}
	for _, s := range snaps {
		for k, v := range e.metricValues(s) {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(snaps))
	}
	return out
}

func (e *Engine) metricValues(s model.MetricsSnapshot) map[string]float64 {
	sc := e.scorer.Scores(s)
	return map[string]float64{
		model.MetricAvgResponseTime:    s.Time.AvgResponseTime,
		model.MetricAvgReviewTime:      s.Time.AvgReviewTime,
		model.MetricOnTimeRate:         s.Time.OnTimeRate,
		model.MetricAvgQualityScore:    s.Quality.AvgQualityScore,
		model.MetricQualityConsistency: s.Quality.QualityConsistency,
		model.MetricAcceptanceRate:     s.Reliability.AcceptanceRate,
		model.MetricCompletionRate:     s.Reliability.CompletionRate,
		model.MetricReliability:        sc.Reliability,
		model.MetricExpertise:          sc.Expertise,
		model.MetricOverall:            sc.Overall,
	}
}
