package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	slowQueryThreshold = time.Second
	maxSQLLogLength    = 200
	lockStatsInterval  = time.Minute
)

// gormLogger routes GORM's logging through slog.
type gormLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	pool  *sql.DB

	mu            sync.Mutex
	lastLockStats time.Time
}

func newGormLogger(log *slog.Logger, level string) *gormLogger {
	return &gormLogger{log: log, level: gormLogLevel(level)}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{log: l.log, level: level, pool: l.pool}
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace logs failed and slow statements, and every statement at info level
// when debug logging is on. fc renders the SQL so it is only called when
// the record will be written.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		stmt, rows := fc()
		if strings.Contains(err.Error(), "database is locked") {
			l.logLockStats(ctx)
		}
		l.log.ErrorContext(ctx, "database error",
			slog.String("sql", truncateSQL(stmt)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		stmt, rows := fc()
		l.log.WarnContext(ctx, "slow query",
			slog.String("sql", truncateSQL(stmt)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed))
	case l.level >= logger.Info && l.log.Enabled(ctx, slog.LevelDebug):
		stmt, rows := fc()
		l.log.DebugContext(ctx, "database query",
			slog.String("sql", truncateSQL(stmt)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed))
	}
}

// logLockStats reports pool usage on SQLITE_BUSY, at most once a minute.
func (l *gormLogger) logLockStats(ctx context.Context) {
	if l.pool == nil {
		return
	}
	l.mu.Lock()
	if time.Since(l.lastLockStats) < lockStatsInterval {
		l.mu.Unlock()
		return
	}
	l.lastLockStats = time.Now()
	l.mu.Unlock()

	s := l.pool.Stats()
	l.log.WarnContext(ctx, "database locked",
		slog.Int("open_conns", s.OpenConnections),
		slog.Int("in_use", s.InUse),
		slog.Int64("wait_count", s.WaitCount),
		slog.Duration("wait_duration", s.WaitDuration))
}

func truncateSQL(stmt string) string {
	if len(stmt) <= maxSQLLogLength {
		return stmt
	}
	return stmt[:maxSQLLogLength] + "... (truncated)"
}
