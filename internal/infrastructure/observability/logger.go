package observability

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TenantIDKey  contextKey = "tenant_id"
	TraceIDKey   contextKey = "trace_id"
)

// correlationKeys are copied from the request context onto every line.
var correlationKeys = []contextKey{RequestIDKey, UserIDKey, TenantIDKey, TraceIDKey}

// Logger is a zap logger that pulls correlation ids out of the context.
type Logger struct {
	zap *zap.Logger
}

// newEncoder returns a JSON encoder unless "console" is asked for.
func newEncoder(encoding string) zapcore.Encoder {
	if encoding == "console" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.StacktraceKey = "stack"
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	ec.EncodeDuration = zapcore.SecondsDurationEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(ec)
}

// NewLogger writes to stdout. An unknown level falls back to info.
func NewLogger(level string, encoding string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	core := zapcore.NewCore(newEncoder(encoding), zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(lvl))
	return &Logger{zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.ErrorOutput(zapcore.Lock(os.Stderr)))}, nil
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// NewLoggerFromZap wraps an existing zap logger, e.g. an observer core in tests.
func NewLoggerFromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Debug(msg, l.withContext(ctx, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Info(msg, l.withContext(ctx, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Warn(msg, l.withContext(ctx, fields)...)
}

// Error also attaches a stack trace.
func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Error(msg, l.withContext(ctx, append(fields, zap.Stack("stack")))...)
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// ContextWithActor tags ctx with the acting principal and tenant for log correlation.
func ContextWithActor(ctx context.Context, actorID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, actorID)
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

func (l *Logger) withContext(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	out := make([]zap.Field, 0, len(correlationKeys)+len(fields))
	for _, key := range correlationKeys {
		// Values of any other type are ignored.
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			out = append(out, zap.String(string(key), v))
		}
	}
	return append(out, fields...)
}
