// Package dbexec provides the query execution seam used by connection
// fields and schema reflection, so tests can substitute sqlmock.
package dbexec

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Rows is the subset of *sql.Rows read by ScanRows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs read-only statements.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// DBExecutor runs statements against a *sql.DB and logs them at debug level.
type DBExecutor struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDBExecutor wraps db. A nil logger disables statement logging.
func NewDBExecutor(db *sql.DB, logger *slog.Logger) *DBExecutor {
	return &DBExecutor{db: db, logger: logger}
}

func (e *DBExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query, args...)
	if e.logger != nil && e.logger.Enabled(ctx, slog.LevelDebug) {
		attrs := []any{
			slog.String("sql", query),
			slog.Int("args", len(args)),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		e.logger.DebugContext(ctx, "sql query", attrs...)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}
