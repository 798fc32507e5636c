package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
)

func newBreaker(t *testing.T) (*BreakerDB, sqlmock.Sqlmock, *observability.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := observability.NewMetricsWithConfig(observability.MetricsConfig{Namespace: "cb_test", Registry: prometheus.NewRegistry()})
	b := NewBreakerDB(db, config.CBConfig{
		Enabled:          true,
		MaxFailures:      1,
		FailureThreshold: 0.5,
		ResetTimeout:     time.Minute,
	}, metrics, observability.NewNopLogger())
	return b, mock, metrics
}

func TestBreakerDB_TripsOnTransientErrors(t *testing.T) {
	b, mock, metrics := newBreaker(t)
	ctx := context.Background()
	lost := &mysql.MySQLError{Number: 2013, Message: "Lost connection"}

	for i := 0; i < 3; i++ {
		mock.ExpectExec("UPDATE attendance").WillReturnError(lost)
		_, err := b.ExecContext(ctx, "UPDATE attendance SET version = version + 1")
		assert.ErrorIs(t, err, lost)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(breakerName, "open")))

	// Open circuit: nothing reaches the database.
	_, err := b.QueryContext(ctx, "SELECT id FROM tenants")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	var id string
	err = b.QueryRowContext(ctx, "SELECT id FROM tenants WHERE id = ?", "t-1").Scan(&id)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBreakerDB_IgnoresPermanentErrors(t *testing.T) {
	b, mock, _ := newBreaker(t)
	ctx := context.Background()
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}

	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT INTO attendance").WillReturnError(dup)
		_, err := b.ExecContext(ctx, "INSERT INTO attendance (id) VALUES (?)", "a-1")
		assert.ErrorIs(t, err, dup)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	mock.ExpectQuery("SELECT id FROM tenants").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t-1"))
	var id string
	require.NoError(t, b.QueryRowContext(ctx, "SELECT id FROM tenants WHERE id = ?", "t-1").Scan(&id))
	assert.Equal(t, "t-1", id)

	assert.NoError(t, mock.ExpectationsWereMet())
}
