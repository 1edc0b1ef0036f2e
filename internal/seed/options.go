package seed

import (
	"time"

	"github.com/okian/refbench/pkg/logger"
)

// Option configures a Generator.
type Option func(*Generator)

// WithReferees sets how many referees are generated.
func WithReferees(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.referees = n
		}
	}
}

// WithJournals sets the journal pool.
func WithJournals(ids ...string) Option {
	return func(g *Generator) {
		if len(ids) > 0 {
			g.journals = append([]string(nil), ids...)
		}
	}
}

// WithTags sets the expertise tag pool.
func WithTags(tags ...string) Option {
	return func(g *Generator) {
		if len(tags) > 0 {
			g.tags = append([]string(nil), tags...)
		}
	}
}

// WithSeed makes the dataset reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithClock sets the reference instant events are generated around.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithWorkers bounds concurrent writes.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(g *Generator) {
		if lg != nil {
			g.log = lg
		}
	}
}
