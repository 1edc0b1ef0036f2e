package repository

import (
	"time"

	"github.com/okian/refbench/pkg/logger"
)

// Option applies a configuration option to the SQL store.
type Option func(*SQL)

// WithLogger routes gorm logs through lg.
func WithLogger(lg logger.Logger) Option {
	return func(s *SQL) {
		if lg != nil {
			s.log = lg
		}
	}
}

// WithSlowQueryThreshold sets the duration above which queries are logged as slow.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *SQL) {
		if d > 0 {
			s.slowQuery = d
		}
	}
}

// WithMaxOpenConns bounds the connection pool. sqlite is always limited to one.
func WithMaxOpenConns(n int) Option {
	return func(s *SQL) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}
