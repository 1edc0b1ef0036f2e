package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/refbench/pkg/logger"
	"github.com/okian/refbench/pkg/metrics"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger adapts logger.Logger to gorm's logger interface.
type gormLogger struct {
	log       logger.Logger
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

func newGormLogger(lg logger.Logger, slowQuery time.Duration) gormlogger.Interface {
	return &gormLogger{log: lg.Named("gorm"), level: gormlogger.Warn, slowQuery: slowQuery}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.log.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.log.Error(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		query, rows := fc()
		metrics.RecordErrorByComponent("repository", "query")
		g.log.Error(ctx, "query failed",
			logger.Error(err),
			logger.String("sql", query),
			logger.Int("rows", int(rows)),
			logger.Duration("elapsed", elapsed))
	case g.slowQuery > 0 && elapsed > g.slowQuery && g.level >= gormlogger.Warn:
		query, rows := fc()
		g.log.Warn(ctx, "slow query",
			logger.String("sql", query),
			logger.Int("rows", int(rows)),
			logger.Duration("elapsed", elapsed))
	case g.level >= gormlogger.Info:
		query, rows := fc()
		g.log.Debug(ctx, "query",
			logger.String("sql", query),
			logger.Int("rows", int(rows)),
			logger.Duration("elapsed", elapsed))
	}
}
