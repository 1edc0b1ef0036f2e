package calculator

import "time"

// Policy holds the cold-start defaults and tuning constants of the calculator.
// Every default a snapshot can fall back to lives here.
type Policy struct {
	// Cold-start values used when the underlying sample is empty.
	AvgResponseTime    float64 // days
	AvgReviewTime      float64 // days
	FastestReview      float64 // days
	SlowestReview      float64 // days
	OnTimeRate         float64
	AvgQualityScore    float64
	QualityConsistency float64
	ReportThoroughness float64

	// OpenReviewWindow is the synthetic duration of an accepted review that
	// was never submitted nor withdrawn.
	OpenReviewWindow time.Duration
	// GhostAfter is the grace period before an unanswered invitation counts as a ghost.
	GhostAfter time.Duration
	// MinCapacity is the capacity floor used by the availability score.
	MinCapacity int
	// BurnoutLoad is the number of open reviews at which the load term saturates.
	BurnoutLoad float64
	// ThoroughWords is the report length considered fully thorough.
	ThoroughWords float64
	// BreadthAreas is the number of areas at which breadth saturates.
	BreadthAreas float64
	// DepthTopN is the number of strongest tags averaged into depth.
	DepthTopN int
	// DefaultTagConfidence applies to declared tags with no expertise evidence.
	DefaultTagConfidence float64
	// FamiliarityReviews is the completed count at which journal familiarity saturates.
	FamiliarityReviews float64
	// Epsilon guards divisions by a zero monthly average.
	Epsilon float64
}

// DefaultPolicy is the production policy.
var DefaultPolicy = Policy{ //nolint:gochecknoglobals // read-only policy table
	AvgResponseTime:    3.0,
	AvgReviewTime:      21.0,
	FastestReview:      21.0,
	SlowestReview:      21.0,
	OnTimeRate:         0.0,
	AvgQualityScore:    7.0,
	QualityConsistency: 1.5,
	ReportThoroughness: 0.5,

	OpenReviewWindow:     30 * 24 * time.Hour,
	GhostAfter:           14 * 24 * time.Hour,
	MinCapacity:          3,
	BurnoutLoad:          5,
	ThoroughWords:        1500,
	BreadthAreas:         10,
	DepthTopN:            3,
	DefaultTagConfidence: 0.5,
	FamiliarityReviews:   5,
	Epsilon:              1e-9,
}
