package worker

import (
	"time"

	"github.com/okian/refbench/pkg/logger"
)

// Option applies a configuration option to a RefreshWorker.
type Option func(*RefreshWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *RefreshWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(lg logger.Logger) Option {
	return func(w *RefreshWorker) {
		if lg != nil {
			w.logger = lg
		}
	}
}

// WithTracker clears in-flight markers once a request is processed.
func WithTracker(t Tracker) Option {
	return func(w *RefreshWorker) {
		w.tracker = t
	}
}

// WithTimeout bounds a single refresh.
func WithTimeout(d time.Duration) Option {
	return func(w *RefreshWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// FanoutOption applies a configuration option to a Fanout.
type FanoutOption func(*Fanout)

// WithWorkers bounds the number of concurrent loads.
func WithWorkers(n int) FanoutOption {
	return func(f *Fanout) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithRefereeTimeout bounds a single referee's load.
func WithRefereeTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithFanoutLogger sets the fan-out logger.
func WithFanoutLogger(lg logger.Logger) FanoutOption {
	return func(f *Fanout) {
		if lg != nil {
			f.logger = lg
		}
	}
}
