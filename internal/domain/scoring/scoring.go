// Package scoring defines how a snapshot is reduced to comparable dimension scores.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/stats"
)

// Category names a scoring dimension.
type Category string

// Scoring dimensions.
const (
	Speed       Category = "speed"
	Quality     Category = "quality"
	Reliability Category = "reliability"
	Expertise   Category = "expertise"
	Overall     Category = "overall"
)

// Categories lists every dimension in reporting order.
var Categories = []Category{Speed, Quality, Reliability, Expertise, Overall} //nolint:gochecknoglobals // read-only list

const (
	// SpeedBaseline turns review time into a "more is better" score for top lists.
	SpeedBaseline = 30.0
	// SpeedHorizon is the review time in days at which the normalised speed reaches zero.
	SpeedHorizon = 60.0
	// CompositeBaseline is the review time that earns a full speed credit in benchmark composites.
	CompositeBaseline = 30.0
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Weights of the overall score.
type Weights struct {
	Speed       float64
	Quality     float64
	Reliability float64
	Expertise   float64
}

// DefaultWeights are the production weights of the overall score.
var DefaultWeights = Weights{Speed: 0.25, Quality: 0.30, Reliability: 0.30, Expertise: 0.15} //nolint:gochecknoglobals // read-only defaults

func (w Weights) normalised() (Weights, bool) {
	if w.Speed < 0 || w.Quality < 0 || w.Reliability < 0 || w.Expertise < 0 {
		return Weights{}, false
	}
	sum := w.Speed + w.Quality + w.Reliability + w.Expertise
	if sum <= 0 {
		return Weights{}, false
	}
	return Weights{
		Speed:       w.Speed / sum,
		Quality:     w.Quality / sum,
		Reliability: w.Reliability / sum,
		Expertise:   w.Expertise / sum,
	}, true
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights sets the overall weights, normalised to sum to one.
// Negative or all-zero weights are ignored.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		if n, ok := w.normalised(); ok {
			s.weights = n
		}
	}
}

// Scorer reduces snapshots to dimension scores.
type Scorer struct {
	weights Weights
}

// New creates a Scorer with DefaultWeights unless overridden.
func New(opts ...Option) *Scorer {
	s := &Scorer{weights: DefaultWeights}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the normalised weights in use.
func (s *Scorer) Weights() Weights { return s.weights }

// ReliabilityScore blends completion, ghosting and withdrawals.
func ReliabilityScore(snap model.MetricsSnapshot) float64 {
	r := snap.Reliability
	return stats.Clamp01(0.5*r.CompletionRate + 0.3*(1-r.GhostRate) + 0.2*(1-r.DeclineAfterAcceptRate))
}

// ExpertiseScore averages breadth and depth.
func ExpertiseScore(snap model.MetricsSnapshot) float64 {
	return stats.Clamp01((snap.Expertise.ExpertiseBreadth + snap.Expertise.ExpertiseDepth) / 2)
}

// Overall is the weighted 0..100 score.
func (s *Scorer) Overall(snap model.MetricsSnapshot) float64 {
	speed := stats.Clamp01(1 - snap.Time.AvgReviewTime/SpeedHorizon)
	quality := stats.Clamp01(snap.Quality.AvgQualityScore / model.MaxQualityScore)
	w := s.weights
	return stats.Clamp(100*(w.Speed*speed+w.Quality*quality+w.Reliability*ReliabilityScore(snap)+w.Expertise*ExpertiseScore(snap)), 0, 100)
}

// Scores returns the five dimension scores as used for ranking. Speed is the
// raw average review time: lower is better.
func (s *Scorer) Scores(snap model.MetricsSnapshot) model.Scores {
	return model.Scores{
		Speed:       snap.Time.AvgReviewTime,
		Quality:     snap.Quality.AvgQualityScore,
		Reliability: ReliabilityScore(snap),
		Expertise:   ExpertiseScore(snap),
		Overall:     s.Overall(snap),
	}
}

// Value picks one dimension out of Scores.
func Value(sc model.Scores, c Category) float64 {
	switch c {
	case Speed:
		return sc.Speed
	case Quality:
		return sc.Quality
	case Reliability:
		return sc.Reliability
	case Expertise:
		return sc.Expertise
	default:
		return sc.Overall
	}
}

// LowerIsBetter reports whether smaller raw values rank higher.
func LowerIsBetter(c Category) bool {
	return c == Speed
}

// TopScore is the "more is better" score used by top lists.
func TopScore(sc model.Scores, c Category) float64 {
	if c == Speed {
		return SpeedBaseline - sc.Speed
	}
	return Value(sc, c)
}

// Composite ranks referees inside a benchmark. affinity is journal
// familiarity or area confidence in [0,1].
func Composite(quality, reviewTime, affinity float64) float64 {
	return 0.5*quality + 0.3*(CompositeBaseline/math.Max(reviewTime, 1)) + 0.2*affinity
}
