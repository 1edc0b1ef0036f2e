package model

import "time"

// SnapshotSchemaVersion is bumped whenever MetricsSnapshot changes shape.
// Persisted snapshots carrying another version are treated as cache misses.
const SnapshotSchemaVersion = 1

// TimeMetrics are expressed in days.
type TimeMetrics struct {
	AvgResponseTime    float64 `json:"avg_response_time"`
	AvgReviewTime      float64 `json:"avg_review_time"`
	FastestReview      float64 `json:"fastest_review"`
	SlowestReview      float64 `json:"slowest_review"`
	ResponseTimeStdDev float64 `json:"response_time_stddev"`
	ReviewTimeStdDev   float64 `json:"review_time_stddev"`
	OnTimeRate         float64 `json:"on_time_rate"`
}

// QualityMetrics summarise editor quality scores.
type QualityMetrics struct {
	AvgQualityScore    float64 `json:"avg_quality_score"`
	QualityConsistency float64 `json:"quality_consistency"` // stdev, lower is better
	ReportThoroughness float64 `json:"report_thoroughness"`
}

// WorkloadMetrics describe current and historical load.
type WorkloadMetrics struct {
	CurrentReviews    int     `json:"current_reviews"`
	CompletedLast30d  int     `json:"completed_last_30d"`
	CompletedLast90d  int     `json:"completed_last_90d"`
	CompletedLast365d int     `json:"completed_last_365d"`
	MonthlyAverage    float64 `json:"monthly_average"`
	PeakCapacity      int     `json:"peak_capacity"`
	AvailabilityScore float64 `json:"availability_score"`
	BurnoutRiskScore  float64 `json:"burnout_risk_score"`
}

// ReliabilityMetrics are rates in [0,1].
type ReliabilityMetrics struct {
	AcceptanceRate         float64 `json:"acceptance_rate"`
	CompletionRate         float64 `json:"completion_rate"`
	GhostRate              float64 `json:"ghost_rate"`
	DeclineAfterAcceptRate float64 `json:"decline_after_accept_rate"`
	ReminderEffectiveness  float64 `json:"reminder_effectiveness"`
}

// ExpertiseMetrics describe subject coverage.
type ExpertiseMetrics struct {
	ExpertiseAreas      []string           `json:"expertise_areas"` // sorted
	ExpertiseConfidence map[string]float64 `json:"expertise_confidence"`
	YearsExperience     float64            `json:"years_experience"`
	ExpertiseBreadth    float64            `json:"expertise_breadth"`
	ExpertiseDepth      float64            `json:"expertise_depth"`
}

// JournalMetrics is the per-journal slice of a referee's history.
type JournalMetrics struct {
	Invitations     int     `json:"invitations"`
	Completed       int     `json:"completed"`
	AcceptanceRate  float64 `json:"acceptance_rate"`
	AvgReviewTime   float64 `json:"avg_review_time"`
	AvgQualityScore float64 `json:"avg_quality_score"`
	OnTimeRate      float64 `json:"on_time_rate"`
	Familiarity     float64 `json:"familiarity"`
}

// MetricsSnapshot is the computed aggregate for one referee at one instant.
// It is never mutated after construction.
type MetricsSnapshot struct {
	SchemaVersion    int                       `json:"schema_version"`
	RefereeID        string                    `json:"referee_id"`
	ComputedAt       time.Time                 `json:"computed_at"`
	TotalInvitations int                       `json:"total_invitations"`
	TotalCompleted   int                       `json:"total_completed"`
	Time             TimeMetrics               `json:"time"`
	Quality          QualityMetrics            `json:"quality"`
	Workload         WorkloadMetrics           `json:"workload"`
	Reliability      ReliabilityMetrics        `json:"reliability"`
	Expertise        ExpertiseMetrics          `json:"expertise"`
	Journals         map[string]JournalMetrics `json:"journals"`
}

// CacheEntry is a stored snapshot with its freshness window.
type CacheEntry struct {
	RefereeID  string          `json:"referee_id"`
	Snapshot   MetricsSnapshot `json:"snapshot"`
	ComputedAt time.Time       `json:"computed_at"`
	ValidUntil time.Time       `json:"valid_until"`
}

// Fresh reports whether the entry can be served at now.
func (c CacheEntry) Fresh(now time.Time) bool {
	return now.Before(c.ValidUntil)
}
