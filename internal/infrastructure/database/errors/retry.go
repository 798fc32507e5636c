package errors

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"go.uber.org/zap"
)

// RetryConfig controls how store calls are replayed after transient MariaDB
// failures. MaxRetries counts attempts, including the first one.
type RetryConfig struct {
	Enabled         bool
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Randomization   float64
	FatalErrorTypes []DBErrorType
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Enabled:         true,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		Randomization:   0.2,
		FatalErrorTypes: []DBErrorType{
			ErrorTypeConstraintViolation,
			ErrorTypeDuplicateKey,
			ErrorTypeForeignKeyViolation,
		},
	}
}

// MergeWith overlays the fields set in the environment config.
func (cfg *RetryConfig) MergeWith(override *config.DatabaseRetryConfig) *RetryConfig {
	if override == nil {
		return cfg
	}

	set := func(dst *time.Duration, src *time.Duration) {
		if src != nil {
			*dst = *src
		}
	}
	if override.Enabled != nil {
		cfg.Enabled = *override.Enabled
	}
	if override.MaxRetries != nil {
		cfg.MaxRetries = *override.MaxRetries
	}
	set(&cfg.InitialInterval, override.InitialInterval)
	set(&cfg.MaxInterval, override.MaxInterval)
	if override.Multiplier != nil {
		cfg.Multiplier = *override.Multiplier
	}
	if override.Randomization != nil {
		cfg.Randomization = *override.Randomization
	}
	if n := len(override.FatalErrorTypes); n > 0 {
		cfg.FatalErrorTypes = make([]DBErrorType, 0, n)
		for _, t := range override.FatalErrorTypes {
			cfg.FatalErrorTypes = append(cfg.FatalErrorTypes, DBErrorType(t))
		}
	}
	return cfg
}

func (cfg *RetryConfig) retryable(err error) bool {
	if !cfg.Enabled {
		return false
	}
	class := ClassifyError(err)
	for _, fatal := range cfg.FatalErrorTypes {
		if class == fatal {
			return false
		}
	}
	return IsTransientError(err)
}

func (cfg *RetryConfig) policy(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialInterval),
		backoff.WithMaxInterval(cfg.MaxInterval),
		backoff.WithMultiplier(cfg.Multiplier),
		backoff.WithRandomizationFactor(cfg.Randomization),
		backoff.WithMaxElapsedTime(0),
	)
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// RetryableFunc receives the 1-based attempt number.
type RetryableFunc func(attempt uint64) error

// RetryOperation runs f until it succeeds, fails with a non-transient error,
// runs out of attempts or ctx is done. Permanent errors are returned as is.
func RetryOperation(ctx context.Context, operationName string, f RetryableFunc, cfg *RetryConfig, metrics *observability.Metrics, logger *observability.Logger) error {
	if !cfg.Enabled {
		return f(1)
	}

	var attempt uint64
	permanent := false
	op := func() error {
		attempt++
		err := f(attempt)
		if err != nil && !cfg.retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if metrics != nil {
			metrics.DatabaseRetryAttempts.WithLabelValues(operationName, string(ClassifyError(err))).Inc()
		}
		if logger != nil {
			logger.Warn(ctx, "Retrying database operation",
				zap.String("operation", operationName),
				zap.Uint64("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxRetries),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	}

	err := backoff.RetryNotify(op, cfg.policy(ctx), notify)
	switch {
	case err == nil, metrics == nil:
	case permanent:
		metrics.DatabaseRetrySkipped.WithLabelValues(operationName, string(ClassifyError(err))).Inc()
	case ctx.Err() == nil:
		metrics.DatabaseRetryMaxAttempts.WithLabelValues(operationName).Inc()
	}
	return err
}

// WithRetryTx runs fn in a READ COMMITTED transaction and replays the whole
// transaction on deadlocks and lost connections.
func WithRetryTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error, cfg *RetryConfig, metrics *observability.Metrics, logger *observability.Logger) error {
	return RetryOperation(ctx, "transaction", func(uint64) (err error) {
		tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		if err = fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	}, cfg, metrics, logger)
}
