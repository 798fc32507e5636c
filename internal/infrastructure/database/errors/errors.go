// Package errors classifies MariaDB driver failures and retries the
// transient ones.
package errors

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"go.uber.org/zap"
)

type DBErrorType string

const (
	ErrorTypeDeadlock            DBErrorType = "deadlock"
	ErrorTypeConnectionTimeout   DBErrorType = "connection_timeout"
	ErrorTypeConnectionRefused   DBErrorType = "connection_refused"
	ErrorTypeConstraintViolation DBErrorType = "constraint_violation"
	ErrorTypeDuplicateKey        DBErrorType = "duplicate_key"
	ErrorTypeForeignKeyViolation DBErrorType = "foreign_key_violation"
	ErrorTypeQueryTimeout        DBErrorType = "query_timeout"
	ErrorTypeCanceled            DBErrorType = "canceled"
	ErrorTypeUnknown             DBErrorType = "unknown"
)

// mysqlCodes maps server and client error numbers to a class.
var mysqlCodes = map[uint16]DBErrorType{
	1205: ErrorTypeDeadlock, // lock wait timeout
	1206: ErrorTypeDeadlock, // lock table full
	1213: ErrorTypeDeadlock,
	2003: ErrorTypeConnectionRefused,
	2005: ErrorTypeConnectionRefused,
	2013: ErrorTypeConnectionTimeout, // lost connection during query
	1062: ErrorTypeDuplicateKey,
	1451: ErrorTypeForeignKeyViolation,
	1452: ErrorTypeForeignKeyViolation,
	1048: ErrorTypeConstraintViolation, // column cannot be null
	1146: ErrorTypeConstraintViolation, // table missing
	3024: ErrorTypeQueryTimeout,        // max_statement_time exceeded
}

var transient = map[DBErrorType]bool{
	ErrorTypeDeadlock:          true,
	ErrorTypeConnectionTimeout: true,
	ErrorTypeConnectionRefused: true,
	ErrorTypeQueryTimeout:      true,
}

// Classifyable is implemented by errors that already know their class.
type Classifyable interface {
	error
	Classify() DBErrorType
}

// DBError is a store failure that kept its driver error and class.
type DBError struct {
	Original error
	Type     DBErrorType
	Context  map[string]any
}

func NewDBError(err error, errType DBErrorType, ctx map[string]any) *DBError {
	return &DBError{Original: err, Type: errType, Context: ctx}
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database error: %s (%v)", e.Type, e.Original)
}

func (e *DBError) Classify() DBErrorType { return e.Type }

func (e *DBError) Unwrap() error { return e.Original }

// ClassifyError returns "" for nil. Cancellation gets its own class so that a
// client hanging up is never retried.
func ClassifyError(err error) DBErrorType {
	if err == nil {
		return ""
	}

	var classified Classifyable
	if stderrors.As(err, &classified) {
		return classified.Classify()
	}

	var mysqlErr *mysql.MySQLError
	switch {
	case stderrors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrorTypeQueryTimeout
	case stderrors.Is(err, sql.ErrConnDone), stderrors.Is(err, mysql.ErrInvalidConn):
		return ErrorTypeConnectionRefused
	case stderrors.As(err, &mysqlErr):
		if t, ok := mysqlCodes[mysqlErr.Number]; ok {
			return t
		}
	}
	return ErrorTypeUnknown
}

func IsTransientError(err error) bool {
	return transient[ClassifyError(err)]
}

// IsDuplicateKey reports a unique index violation.
func IsDuplicateKey(err error) bool {
	return ClassifyError(err) == ErrorTypeDuplicateKey
}

// LogDBError logs a failed statement. Transient failures are warnings since
// the retry policy usually absorbs them.
func LogDBError(ctx context.Context, logger *observability.Logger, err error, operation, query string) {
	if logger == nil {
		return
	}
	class := ClassifyError(err)
	fields := []zap.Field{
		zap.String("error_type", string(class)),
		zap.String("operation", operation),
		zap.String("query", query),
		zap.Error(err),
	}

	switch {
	case class == ErrorTypeCanceled:
		logger.Debug(ctx, "Database statement canceled", fields...)
	case transient[class]:
		logger.Warn(ctx, "Transient database error", fields...)
	default:
		logger.Error(ctx, "Persistent database error", fields...)
	}
}
