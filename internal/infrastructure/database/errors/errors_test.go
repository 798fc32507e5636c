package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
)

func TestClassifyError(t *testing.T) {
	mysqlErr := func(n uint16) error { return &mysql.MySQLError{Number: n} }

	cases := map[string]struct {
		err       error
		class     DBErrorType
		transient bool
	}{
		"nil":                    {nil, "", false},
		"deadlock":               {mysqlErr(1213), ErrorTypeDeadlock, true},
		"lock wait timeout":      {mysqlErr(1205), ErrorTypeDeadlock, true},
		"lost connection":        {mysqlErr(2013), ErrorTypeConnectionTimeout, true},
		"server unreachable":     {mysqlErr(2003), ErrorTypeConnectionRefused, true},
		"invalid connection":     {mysql.ErrInvalidConn, ErrorTypeConnectionRefused, true},
		"statement timeout":      {mysqlErr(3024), ErrorTypeQueryTimeout, true},
		"deadline":               {context.DeadlineExceeded, ErrorTypeQueryTimeout, true},
		"canceled":               {fmt.Errorf("list attendance: %w", context.Canceled), ErrorTypeCanceled, false},
		"duplicate check-in":     {fmt.Errorf("insert attendance: %w", mysqlErr(1062)), ErrorTypeDuplicateKey, false},
		"unknown employee":       {mysqlErr(1452), ErrorTypeForeignKeyViolation, false},
		"missing table":          {mysqlErr(1146), ErrorTypeConstraintViolation, false},
		"unmapped server error":  {mysqlErr(9999), ErrorTypeUnknown, false},
		"no rows":                {sql.ErrNoRows, ErrorTypeUnknown, false},
		"plain error":            {errors.New("some other error"), ErrorTypeUnknown, false},
		"already classified":     {NewDBError(errors.New("boom"), ErrorTypeDeadlock, nil), ErrorTypeDeadlock, true},
		"wrapped classification": {fmt.Errorf("store: %w", NewDBError(mysqlErr(1062), ErrorTypeConstraintViolation, nil)), ErrorTypeConstraintViolation, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.class, ClassifyError(tc.err))
			assert.Equal(t, tc.transient, IsTransientError(tc.err))
		})
	}
}

func quickRetry(maxAttempts int) *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = maxAttempts
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 2 * time.Millisecond
	return cfg
}

func TestRetryOperation(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	duplicate := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}

	tests := []struct {
		name         string
		maxAttempts  int
		failures     int
		failWith     error
		wantErr      error
		wantAttempts int
		wantSkipped  float64
		wantExhaust  float64
	}{
		{name: "recovers after deadlock", maxAttempts: 3, failures: 1, failWith: deadlock, wantAttempts: 2},
		{name: "gives up after max attempts", maxAttempts: 2, failures: 10, failWith: deadlock, wantErr: deadlock, wantAttempts: 2, wantExhaust: 1},
		{name: "duplicate key is not retried", maxAttempts: 3, failures: 10, failWith: duplicate, wantErr: duplicate, wantAttempts: 1, wantSkipped: 1},
		{name: "single attempt budget", maxAttempts: 0, failures: 10, failWith: deadlock, wantErr: deadlock, wantAttempts: 1, wantExhaust: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewMetricsWithConfig(observability.MetricsConfig{Namespace: "retry_test", Registry: prometheus.NewRegistry()})

			attempts := 0
			err := RetryOperation(context.Background(), "insert_attendance", func(attempt uint64) error {
				attempts++
				assert.Equal(t, uint64(attempts), attempt)
				if attempts <= tt.failures {
					return tt.failWith
				}
				return nil
			}, quickRetry(tt.maxAttempts), metrics, observability.NewNopLogger())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantSkipped, testutil.ToFloat64(metrics.DatabaseRetrySkipped.WithLabelValues("insert_attendance", string(ClassifyError(tt.failWith)))))
			assert.Equal(t, tt.wantExhaust, testutil.ToFloat64(metrics.DatabaseRetryMaxAttempts.WithLabelValues("insert_attendance")))
		})
	}
}

func TestRetryOperation_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := quickRetry(5)
	cfg.InitialInterval = time.Hour
	cfg.MaxInterval = time.Hour

	attempts := 0
	err := RetryOperation(ctx, "query", func(uint64) error {
		attempts++
		cancel()
		return &mysql.MySQLError{Number: 2013}
	}, cfg, nil, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryOperation_Disabled(t *testing.T) {
	cfg := quickRetry(5)
	cfg.Enabled = false

	attempts := 0
	err := RetryOperation(context.Background(), "exec", func(uint64) error {
		attempts++
		return &mysql.MySQLError{Number: 1213}
	}, cfg, nil, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryTx_ReplaysWholeTransaction(t *testing.T) {
	metrics := observability.NewMetricsWithConfig(observability.MetricsConfig{Namespace: "retry_tx_test", Registry: prometheus.NewRegistry()})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE attendance").WillReturnError(&mysql.MySQLError{Number: 1213})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE attendance").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	calls := 0
	err = WithRetryTx(context.Background(), db, func(tx *sql.Tx) error {
		calls++
		if _, err := tx.Exec("UPDATE attendance SET status = ? WHERE id = ?", "present", "a-1"); err != nil {
			return err
		}
		_, err := tx.Exec("INSERT INTO audit_entries (id) VALUES (?)", "au-1")
		return err
	}, quickRetry(3), metrics, observability.NewNopLogger())

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DatabaseRetryAttempts.WithLabelValues("transaction", "deadlock")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryConfig_MergeWith(t *testing.T) {
	merged := DefaultRetryConfig().MergeWith(&config.DatabaseRetryConfig{
		MaxRetries:      ptr(5),
		InitialInterval: ptr(50 * time.Millisecond),
		Multiplier:      ptr(1.5),
		FatalErrorTypes: []string{"duplicate_key"},
	})

	assert.True(t, merged.Enabled, "unset fields keep their defaults")
	assert.Equal(t, 5, merged.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, merged.InitialInterval)
	assert.Equal(t, 2*time.Second, merged.MaxInterval)
	assert.Equal(t, 1.5, merged.Multiplier)
	assert.Equal(t, 0.2, merged.Randomization)
	assert.Equal(t, []DBErrorType{ErrorTypeDuplicateKey}, merged.FatalErrorTypes)

	same := DefaultRetryConfig()
	assert.Same(t, same, same.MergeWith(nil))
}

func ptr[T any](v T) *T {
	return &v
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKey(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1062})))
	assert.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicateKey(nil))
}
