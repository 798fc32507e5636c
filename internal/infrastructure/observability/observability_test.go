package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type auditSink struct {
	records []*domain.AuditRecord
	err     error
}

func (s *auditSink) AppendAudit(_ context.Context, r *domain.AuditRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func TestLogger(t *testing.T) {
	logger, err := NewLogger("info", "json")
	assert.NoError(t, err)
	assert.NotNil(t, logger)

	consoleLogger, err := NewLogger("debug", "console")
	assert.NoError(t, err)
	assert.NotNil(t, consoleLogger)

	badLevelLogger, err := NewLogger("invalid_level", "json")
	assert.NoError(t, err)
	assert.NotNil(t, badLevelLogger)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")
	ctx = context.WithValue(ctx, UserIDKey, "emp-55")

	logger.Info(ctx, "test info")
	logger.Error(ctx, "test error")
	_ = logger.Sync()
}

func TestLogger_ContextFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := NewLoggerFromZap(zap.New(core))

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, TenantIDKey, "tenant-1")
	ctx = context.WithValue(ctx, UserIDKey, 42) // wrong type is ignored

	logger.Info(ctx, "hello", zap.String("k", "v"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "tenant-1", fields["tenant_id"])
	assert.Equal(t, "v", fields["k"])
	assert.NotContains(t, fields, "user_id")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithConfig(MetricsConfig{Namespace: "test", Registry: reg, Gatherer: reg})

	m.CheckInsTotal.WithLabelValues("late").Inc()
	m.RecordNotification("redis", nil)
	m.RecordNotification("redis", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckInsTotal.WithLabelValues("late")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("redis", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("redis", "failed")))
	assert.Equal(t, reg, m.Registry())

	m.Unregister()
	// Re-registering after Unregister must not collide.
	assert.NotPanics(t, func() {
		NewMetricsWithConfig(MetricsConfig{Namespace: "test", Registry: reg, Gatherer: reg})
	})
}

func TestTracer(t *testing.T) {
	tracer := NewTracer("test-service")
	assert.NotNil(t, tracer)

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()
	assert.NotNil(t, span)
	assert.NotNil(t, ctx)
}

func TestLogger_Levels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}

	for _, lvl := range levels {
		l, err := NewLogger(lvl, "json")
		assert.NoError(t, err)
		assert.NotNil(t, l)
	}
}

func TestAuditLogger_Record(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := &auditSink{}
	audit := NewAuditLogger(NewLoggerFromZap(zap.New(core)), sink)

	rec := &domain.AuditRecord{
		TenantID:   "t1",
		EntityType: domain.EntityAttendance,
		EntityID:   "att-1",
		Action:     domain.AuditCreate,
		ActorID:    "emp-1",
		ActorKind:  domain.ActorEmployee,
	}
	require.NoError(t, audit.Record(context.Background(), rec))

	require.Len(t, sink.records, 1)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "AUDIT", logs.All()[0].Message)
	assert.Equal(t, true, logs.All()[0].ContextMap()["persisted"])
}

func TestAuditLogger_RecordFailureStillLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	audit := NewAuditLogger(NewLoggerFromZap(zap.New(core)), &auditSink{err: errors.New("disk full")})

	err := audit.Record(context.Background(), &domain.AuditRecord{EntityType: "attendance", EntityID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, false, logs.All()[0].ContextMap()["persisted"])
}

func TestAuditLogger_SecurityEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	audit := NewAuditLogger(NewLoggerFromZap(zap.New(core)), nil)

	audit.LogSecurityEvent(context.Background(), SecurityEvent{
		Type:      "authorization",
		Action:    "forbidden_role",
		UserID:    "emp-1",
		Resource:  "POST /api/v1/corrections/:id/approve",
		IPAddress: "10.0.0.1",
	})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "forbidden_role", fields["action"])
	assert.Equal(t, false, fields["success"])
	assert.Equal(t, "1.0", fields["audit_version"])
}

func TestDedicatedAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	audit, err := NewDedicatedAuditLogger(path, "json", nil)
	require.NoError(t, err)

	require.NoError(t, audit.Record(context.Background(), &domain.AuditRecord{EntityType: "tenant", EntityID: "t-1", Action: domain.AuditCreate}))
	require.NoError(t, audit.Close())
	assert.NoError(t, audit.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &line))
	assert.Equal(t, "AUDIT", line["message"])
	assert.Equal(t, "t-1", line["entity_id"])
}

func TestDedicatedAuditLogger_BadPath(t *testing.T) {
	_, err := NewDedicatedAuditLogger(filepath.Join(t.TempDir(), "missing", "audit.log"), "json", nil)
	assert.Error(t, err)
}
