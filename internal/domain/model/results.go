package model

import "time"

// Result statuses.
const (
	StatusOK               = "ok"
	StatusInsufficientData = "insufficient_data"
)

// Trend directions.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// DayLayout formats HistoryPoint days.
const DayLayout = "2006-01-02"

// Day returns the UTC calendar day of t.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Scores are the five scalar dimension scores of a snapshot.
type Scores struct {
	Speed       float64 `json:"speed"`
	Quality     float64 `json:"quality"`
	Reliability float64 `json:"reliability"`
	Expertise   float64 `json:"expertise"`
	Overall     float64 `json:"overall"`
}

// HistoryPoint is the daily trend row; one per referee and day.
type HistoryPoint struct {
	RefereeID string `json:"referee_id"`
	Day       string `json:"day"`
	Scores
}

// TrendResult is the history window plus its fitted direction.
type TrendResult struct {
	RefereeID string         `json:"referee_id"`
	Days      int            `json:"days"`
	Points    []HistoryPoint `json:"points"`
	Slope     float64        `json:"slope"`
	Direction string         `json:"direction"`
}

// PercentileRanks are population-relative standings in [0,100].
type PercentileRanks struct {
	Speed       float64 `json:"speed"`
	Quality     float64 `json:"quality"`
	Reliability float64 `json:"reliability"`
	Expertise   float64 `json:"expertise"`
	Overall     float64 `json:"overall"`
}

// RankResult is a referee's standing within one ranking run.
type RankResult struct {
	RefereeID      string          `json:"referee_id"`
	Percentiles    PercentileRanks `json:"percentiles"`
	PopulationSize int             `json:"population_size"`
	Gaps           int             `json:"gaps"`
}

// Histogram is an equal-width binning; len(Edges) == len(Counts)+1.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// BenchmarkEntry is one ranked referee inside a benchmark.
type BenchmarkEntry struct {
	RefereeID string  `json:"referee_id"`
	Composite float64 `json:"composite"`
}

// BenchmarkRecord is the cached aggregate for a journal or field category.
type BenchmarkRecord struct {
	Category   string             `json:"category"`
	Status     string             `json:"status"`
	Metrics    map[string]float64 `json:"metrics"`
	SampleSize int                `json:"sample_size"`
	Top        []BenchmarkEntry   `json:"top,omitempty"`
	Histogram  *Histogram         `json:"histogram,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Empty reports whether the benchmark had no qualifying referees.
func (b BenchmarkRecord) Empty() bool {
	return b.SampleSize == 0
}

// DistributionStats summarise one score over the population.
type DistributionStats struct {
	Metric    string     `json:"metric"`
	Status    string     `json:"status"`
	N         int        `json:"n"`
	Mean      float64    `json:"mean"`
	Median    float64    `json:"median"`
	StdDev    float64    `json:"stddev"`
	Min       float64    `json:"min"`
	Max       float64    `json:"max"`
	P10       float64    `json:"p10"`
	P25       float64    `json:"p25"`
	P50       float64    `json:"p50"`
	P75       float64    `json:"p75"`
	P90       float64    `json:"p90"`
	Histogram *Histogram `json:"histogram,omitempty"`
	Gaps      int        `json:"gaps"`
}

// TopPerformer is one row of a top list.
type TopPerformer struct {
	Rank        int             `json:"rank"`
	RefereeID   string          `json:"referee_id"`
	Score       float64         `json:"score"`
	Percentiles PercentileRanks `json:"percentiles"`
}

// PeerComparison is the full comparison context of one referee.
type PeerComparison struct {
	Snapshot       MetricsSnapshot    `json:"snapshot"`
	Peers          []string           `json:"peers"`
	PeerAverage    map[string]float64 `json:"peer_average"`
	FieldAverage   BenchmarkRecord    `json:"field_average"`
	JournalAverage *BenchmarkRecord   `json:"journal_average,omitempty"`
	Percentiles    PercentileRanks    `json:"percentiles"`
	Insights       []string           `json:"insights"`
}

// Aggregate metric keys shared by benchmarks, peer averages and insights.
const (
	MetricAvgResponseTime    = "avg_response_time"
	MetricAvgReviewTime      = "avg_review_time"
	MetricOnTimeRate         = "on_time_rate"
	MetricAvgQualityScore    = "avg_quality_score"
	MetricQualityConsistency = "quality_consistency"
	MetricAcceptanceRate     = "acceptance_rate"
	MetricCompletionRate     = "completion_rate"
	MetricReliability        = "reliability"
	MetricExpertise          = "expertise"
	MetricOverall            = "overall"
	MetricComposite          = "composite"
)
