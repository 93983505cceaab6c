package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

// gormLogger routes GORM output into the service logger. Only slow statements and failed
// ones are reported; missing rows are ordinary control flow here.
type gormLogger struct {
	logg      *logger.Logger
	slowQuery time.Duration
	silent    bool
}

func newGormLogger(logg *logger.Logger, slowQuery time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &gormLogger{logg: logg, slowQuery: slowQuery}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.silent = level == gormlogger.Silent
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if !g.silent {
		g.logg.Debug(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if !g.silent {
		g.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if !g.silent {
		g.logg.Error(ctx, "gorm", errors.New(fmt.Sprintf(msg, args...)))
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slowQuery > 0 && elapsed > g.slowQuery
	if !failed && !slow {
		return
	}
	sql, rows := fc()
	fields := map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	}
	logCtx := g.logg.WithFields(ctx, fields)
	if failed {
		logCtx = g.logg.WithField(logCtx, "error", err.Error())
		g.logg.Warn(logCtx, "db.query_failed")
		return
	}
	g.logg.Warn(logCtx, "db.slow_query")
}
