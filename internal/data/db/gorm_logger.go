package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

// GormLogger sends gorm's query log through the service logger so slow and
// failed queries carry the request's trace fields.
type GormLogger struct {
	log   *logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewGormLogger(log *logger.Logger, slow time.Duration) *GormLogger {
	return &GormLogger{log: log.With("component", "gorm"), level: gormlogger.Warn, slow: slow}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	out := *g
	out.level = level
	return &out
}

func (g *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.log.Info(fmt.Sprintf(msg, args...), ctxutil.LogFields(ctx)...)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(fmt.Sprintf(msg, args...), ctxutil.LogFields(ctx)...)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.log.Error(fmt.Sprintf(msg, args...), ctxutil.LogFields(ctx)...)
	}
}

// Trace logs failed queries at error, slow ones at warn, and everything at
// debug when the level is Info. Missing rows are not failures.
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slow > 0 && elapsed > g.slow
	if !failed && !slow && g.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := append([]interface{}{"elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql}, ctxutil.LogFields(ctx)...)
	switch {
	case failed && g.level >= gormlogger.Error:
		g.log.Error("Query failed", append(fields, "error", err)...)
	case slow && g.level >= gormlogger.Warn:
		g.log.Warn("Slow query", append(fields, "threshold_ms", g.slow.Milliseconds())...)
	case g.level >= gormlogger.Info:
		g.log.Debug("Query", fields...)
	}
}
