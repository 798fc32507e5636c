package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/database/errors"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
)

const pingTimeout = 5 * time.Second

// DB is the MariaDB pool used by the store. Exec and Query are retried on
// transient failures; QueryRow is not, since its error only shows at Scan.
type DB struct {
	*sql.DB
	retryConfig *errors.RetryConfig
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// Transactor runs fn inside a database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn TxFunc) error
}

type TxFunc func(*sql.Tx) error

// DSN builds the go-sql-driver/mysql connection string. Timestamps are read
// and written as UTC, and UPDATE reports matched rather than changed rows.
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci&maxAllowedPacket=67108864&interpolateParams=true&clientFoundRows=true&timeout=10s&readTimeout=10s&writeTimeout=10s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)
}

// Wrap attaches retry behaviour to an already opened pool.
func Wrap(db *sql.DB, retryCfg *errors.RetryConfig, metrics *observability.Metrics, logger *observability.Logger) *DB {
	if retryCfg == nil {
		retryCfg = errors.DefaultRetryConfig()
	}
	return &DB{DB: db, retryConfig: retryCfg, metrics: metrics, logger: logger}
}

// NewMariaDB opens the pool and pings it, retrying while the server is
// still coming up.
func NewMariaDB(ctx context.Context, cfg *config.DatabaseConfig, metrics *observability.Metrics, logger *observability.Logger) (*DB, error) {
	retryCfg := errors.DefaultRetryConfig().MergeWith(&cfg.Retry)

	var pool *sql.DB
	err := errors.RetryOperation(ctx, "db_connection", func(uint64) error {
		db, err := sql.Open("mysql", DSN(cfg))
		if err != nil {
			return err
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return err
		}
		pool = db
		return nil
	}, retryCfg, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	return Wrap(pool, retryCfg, metrics, logger), nil
}

func (db *DB) WithTx(ctx context.Context, fn TxFunc) error {
	return errors.WithRetryTx(ctx, db.DB, fn, db.retryConfig, db.metrics, db.logger)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return instrumented(ctx, db, "exec", query, func() (sql.Result, error) {
		return db.DB.ExecContext(ctx, query, args...)
	})
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return instrumented(ctx, db, "query", query, func() (*sql.Rows, error) {
		return db.DB.QueryContext(ctx, query, args...)
	})
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, query, args...)
}

// instrumented runs one statement under the retry policy, timing and logging
// every attempt.
func instrumented[T any](ctx context.Context, db *DB, op, query string, run func() (T, error)) (T, error) {
	var out T
	err := errors.RetryOperation(ctx, op, func(uint64) error {
		start := time.Now()
		res, err := run()
		db.observe(op, tableOf(query), time.Since(start), err)
		if err != nil {
			errors.LogDBError(ctx, db.logger, err, op, query)
			return err
		}
		out = res
		return nil
	}, db.retryConfig, db.metrics, db.logger)
	return out, err
}

func (db *DB) observe(op, table string, took time.Duration, err error) {
	if db.metrics == nil {
		return
	}
	db.metrics.DatabaseQueryDuration.WithLabelValues(op, table).Observe(took.Seconds())
	if err != nil {
		db.metrics.DatabaseQueryErrors.WithLabelValues(op, table, string(errors.ClassifyError(err))).Inc()
		return
	}
	db.metrics.DatabaseQuerySuccess.WithLabelValues(op, table).Inc()
}

// tableOf picks the first table a statement names, for metric labels.
func tableOf(query string) string {
	words := strings.Fields(query)
	for i := 0; i+1 < len(words); i++ {
		switch strings.ToUpper(words[i]) {
		case "FROM", "INTO", "UPDATE", "JOIN":
			return strings.Trim(words[i+1], "`(;")
		}
	}
	return "unknown"
}
