package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
	"github.com/pqtoolkit/pqtoolkit-go/internal/logging"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// logged as slow.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// slogGormLogger adapts the application's slog logger to GORM's logger
// interface. SQL statements are logged at debug level; slow queries and
// query errors are logged at warn level.
type slogGormLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return &slogGormLogger{
		logger:        logging.ForService("datastore"),
		slowThreshold: DefaultSlowQueryThreshold,
	}
}

// LogMode returns the adapter itself. Log level is managed by the
// application's logging configuration, not by GORM's log level setting.
func (l *slogGormLogger) LogMode(_ gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *slogGormLogger) Info(_ context.Context, msg string, data ...any) {
	l.logger.Debug(fmt.Sprintf(msg, data...))
}

func (l *slogGormLogger) Warn(_ context.Context, msg string, data ...any) {
	l.logger.Warn(fmt.Sprintf(msg, data...))
}

func (l *slogGormLogger) Error(_ context.Context, msg string, data ...any) {
	l.logger.Error(fmt.Sprintf(msg, data...))
}

func (l *slogGormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.Warn("query error",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.logger.Warn("slow query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds())
	default:
		l.logger.Debug("query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds())
	}
}
