// Package insights turns a snapshot and its comparison context into short
// human-readable findings.
package insights

import (
	"fmt"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/internal/domain/stats"
)

// Thresholds tune when a rule fires.
type Thresholds struct {
	PeerAbove           float64 // fraction above the peer mean overall score
	PeerBelow           float64 // fraction below the peer mean overall score
	FastReviewRatio     float64 // review time / field average below this is fast
	SlowReviewRatio     float64 // review time / field average above this is slow
	ConsistentQuality   float64
	InconsistentQuality float64
	HighBurnout         float64
	BroadExpertise      float64
	DeepExpertise       float64
}

// DefaultThresholds are the production thresholds.
var DefaultThresholds = Thresholds{ //nolint:gochecknoglobals // read-only defaults
	PeerAbove:           0.20,
	PeerBelow:           0.20,
	FastReviewRatio:     0.80,
	SlowReviewRatio:     1.50,
	ConsistentQuality:   1.0,
	InconsistentQuality: 2.0,
	HighBurnout:         0.7,
	BroadExpertise:      0.7,
	DeepExpertise:       0.8,
}

// Option configures a Generator.
type Option func(*Generator)

// WithThresholds replaces the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(g *Generator) { g.th = t }
}

// WithScorer sets the scorer used to compare overall scores with peers.
func WithScorer(s *scoring.Scorer) Option {
	return func(g *Generator) {
		if s != nil {
			g.scorer = s
		}
	}
}

// Generator evaluates the insight rules. It is stateless and safe for
// concurrent use.
type Generator struct {
	th     Thresholds
	scorer *scoring.Scorer
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{th: DefaultThresholds, scorer: scoring.New()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one sentence per triggered rule, in a fixed rule order.
// journalAvg may be nil.
func (g *Generator) Generate(snap model.MetricsSnapshot, peers []model.MetricsSnapshot, fieldAvg model.BenchmarkRecord, journalAvg *model.BenchmarkRecord) []string {
	out := []string{}

	if len(peers) > 0 {
		overalls := make([]float64, len(peers))
		for i, p := range peers {
			overalls[i] = g.scorer.Overall(p)
		}
		mean := stats.Mean(overalls)
		own := g.scorer.Overall(snap)
		if mean > 0 {
			delta := (own - mean) / mean
			switch {
			case delta > g.th.PeerAbove:
				out = append(out, fmt.Sprintf("Overall performance is %.0f%% above the peer average.", delta*100))
			case delta < -g.th.PeerBelow:
				out = append(out, fmt.Sprintf("Overall performance is %.0f%% below the peer average.", -delta*100))
			}
		}
	}

	if ref, label, ok := reviewTimeReference(fieldAvg, journalAvg); ok && ref > 0 {
		ratio := snap.Time.AvgReviewTime / ref
		switch {
		case ratio < g.th.FastReviewRatio:
			out = append(out, fmt.Sprintf("Reviews are exceptionally fast compared with the %s average (%.1f vs %.1f days).", label, snap.Time.AvgReviewTime, ref))
		case ratio > g.th.SlowReviewRatio:
			out = append(out, fmt.Sprintf("Reviews take significantly longer than the %s average (%.1f vs %.1f days).", label, snap.Time.AvgReviewTime, ref))
		}
	}

	switch q := snap.Quality.QualityConsistency; {
	case q < g.th.ConsistentQuality:
		out = append(out, "Review quality is highly consistent.")
	case q > g.th.InconsistentQuality:
		out = append(out, "Review quality varies significantly between reports.")
	}

	if snap.Workload.BurnoutRiskScore > g.th.HighBurnout {
		out = append(out, fmt.Sprintf("High burnout risk: %d reviews in progress.", snap.Workload.CurrentReviews))
	}
	if snap.Expertise.ExpertiseBreadth > g.th.BroadExpertise {
		out = append(out, fmt.Sprintf("Broad expertise across %d areas.", len(snap.Expertise.ExpertiseAreas)))
	}
	if snap.Expertise.ExpertiseDepth > g.th.DeepExpertise {
		out = append(out, "Deep specialization in core areas.")
	}
	return out
}

// reviewTimeReference prefers the field average and falls back to the
// journal average when the field benchmark has no data.
func reviewTimeReference(field model.BenchmarkRecord, journal *model.BenchmarkRecord) (float64, string, bool) {
	if !field.Empty() {
		if v, ok := field.Metrics[model.MetricAvgReviewTime]; ok {
			return v, "field", true
		}
	}
	if journal != nil && !journal.Empty() {
		if v, ok := journal.Metrics[model.MetricAvgReviewTime]; ok {
			return v, "journal", true
		}
	}
	return 0, "", false
}
