package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/database/errors"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"go.uber.org/zap"
)

const breakerName = "MariaDB"

// minBreakerRequests is the sample size before the failure ratio is trusted.
const minBreakerRequests = 3

// DBTX defines the interface needed for database operations
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// BreakerDB runs store queries through a circuit breaker. Only transient
// failures (lost connections, timeouts, deadlocks) count against it, so a
// duplicate check-in or a missing row never opens the circuit.
type BreakerDB struct {
	*sql.DB
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *observability.Logger
}

func NewBreakerDB(db *sql.DB, cfg config.CBConfig, metrics *observability.Metrics, logger *observability.Logger) *BreakerDB {
	b := &BreakerDB{DB: db, metrics: metrics, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxFailures, // probes allowed while half-open
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minBreakerRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		IsSuccessful:  countsAsSuccess,
		OnStateChange: b.stateChanged,
	})
	return b
}

func countsAsSuccess(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return true
	}
	return !errors.IsTransientError(err)
}

func (b *BreakerDB) stateChanged(name string, from, to gobreaker.State) {
	b.logger.Warn(context.Background(), "Circuit breaker state changed",
		zap.String("db", name),
		zap.String("from_state", from.String()),
		zap.String("to_state", to.String()),
	)
	if b.metrics == nil {
		return
	}

	value := 0.0
	switch to {
	case gobreaker.StateOpen:
		value = 1.0
	case gobreaker.StateHalfOpen:
		value = 0.5
	}
	b.metrics.CircuitBreakerState.WithLabelValues(name, to.String()).Set(value)
	b.metrics.CircuitBreakerEvents.WithLabelValues(name, "state_change", from.String()+"_to_"+to.String()).Inc()
}

func execute[T any](b *BreakerDB, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})

	if b.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
			if !countsAsSuccess(err) {
				b.metrics.CircuitBreakerEvents.WithLabelValues(breakerName, "failure", string(errors.ClassifyError(err))).Inc()
			}
		}
		b.metrics.CircuitBreakerDuration.WithLabelValues(breakerName, status).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func (b *BreakerDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return execute(b, func() (sql.Result, error) {
		return b.DB.ExecContext(ctx, query, args...)
	})
}

func (b *BreakerDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return execute(b, func() (*sql.Rows, error) {
		return b.DB.QueryContext(ctx, query, args...)
	})
}

// QueryRowContext fails fast while the circuit is open. Otherwise the row's
// error only surfaces at Scan, after the breaker has already counted a success.
func (b *BreakerDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	row, err := execute(b, func() (*sql.Row, error) {
		return b.DB.QueryRowContext(ctx, query, args...), nil
	})
	if err != nil {
		return newErrorRow(err)
	}
	return row
}

// PrepareContext does not touch the breaker; statements run through Exec/Query.
func (b *BreakerDB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return b.DB.PrepareContext(ctx, query)
}

func (b *BreakerDB) State() gobreaker.State {
	return b.cb.State()
}

// *sql.Row cannot be built with an error from outside database/sql, so open
// circuit errors are routed through a driver whose Prepare returns them.
var (
	faultDB     *sql.DB
	faultOnce   sync.Once
	faultSeq    atomic.Uint64
	faultErrors sync.Map
)

func newErrorRow(err error) *sql.Row {
	faultOnce.Do(func() {
		sql.Register("breaker_fault", faultDriver{})
		faultDB, _ = sql.Open("breaker_fault", "")
	})

	token := strconv.FormatUint(faultSeq.Add(1), 10)
	faultErrors.Store(token, err)
	return faultDB.QueryRow(token)
}

type faultDriver struct{}

func (faultDriver) Open(string) (driver.Conn, error) { return faultConn{}, nil }

type faultConn struct{}

func (faultConn) Prepare(token string) (driver.Stmt, error) {
	if v, ok := faultErrors.LoadAndDelete(token); ok {
		return nil, v.(error)
	}
	return nil, fmt.Errorf("unknown fault token %q", token)
}

func (faultConn) Close() error              { return nil }
func (faultConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("not supported") }
