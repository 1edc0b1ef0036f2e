package comparative

import (
	"time"

	"github.com/okian/refbench/internal/domain/insights"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithScorer sets the scorer used for every ranking.
func WithScorer(s *scoring.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithInsights sets the insight generator used by PeerComparison.
func WithInsights(g *insights.Generator) Option {
	return func(e *Engine) {
		if g != nil {
			e.insights = g
		}
	}
}

// WithPeerCap bounds the candidate pool of FindPeers before the experience filter.
func WithPeerCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.peerCap = n
		}
	}
}

// WithMinConfidence sets the evidence confidence needed for a tag to count.
func WithMinConfidence(c float64) Option {
	return func(e *Engine) {
		if c >= 0 {
			e.minConfidence = c
		}
	}
}

// WithMaxTopLimit caps TopPerformers.
func WithMaxTopLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTop = n
		}
	}
}

// WithClock replaces time.Now for benchmark timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(e *Engine) {
		if lg != nil {
			e.log = lg
		}
	}
}
