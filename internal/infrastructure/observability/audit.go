package observability

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const auditVersion = "1.0"

// AuditLogger appends audit records to the record store and mirrors each one
// as an "AUDIT" log line, optionally into its own file.
type AuditLogger struct {
	logger *Logger
	repo   domain.AuditRepository
	now    func() time.Time

	mu   sync.Mutex
	file *os.File
}

// SecurityEvent is a rejected or notable request at the API edge.
type SecurityEvent struct {
	Type      string
	Action    string
	UserID    string
	TenantID  string
	Resource  string
	Success   bool
	IPAddress string
}

// NewAuditLogger logs through logger. repo may be nil, in which case records
// are only logged.
func NewAuditLogger(logger *Logger, repo domain.AuditRepository) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewDedicatedAuditLogger writes audit lines to filePath at info level
// regardless of the application log level.
func NewDedicatedAuditLogger(filePath, format string, repo domain.AuditRepository) (*AuditLogger, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", filePath, err)
	}

	core := zapcore.NewCore(newEncoder(format), zapcore.AddSync(file), zapcore.InfoLevel)
	a := NewAuditLogger(NewLoggerFromZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))), repo)
	a.file = file
	return a, nil
}

// Close is safe to call more than once.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Record appends rec to the audit trail. ID and CreatedAt are filled in when
// empty. The log line is written even when the append fails.
func (a *AuditLogger) Record(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now()
	}

	var err error
	if a.repo != nil {
		if appendErr := a.repo.AppendAudit(ctx, rec); appendErr != nil {
			err = fmt.Errorf("append audit record %s/%s: %w", rec.EntityType, rec.EntityID, appendErr)
		}
	}

	a.write(ctx,
		zap.String("audit_id", rec.ID),
		zap.String("tenant_id", rec.TenantID),
		zap.String("entity_type", rec.EntityType),
		zap.String("entity_id", rec.EntityID),
		zap.String("action", rec.Action),
		zap.String("actor_id", rec.ActorID),
		zap.String("actor_kind", string(rec.ActorKind)),
		zap.Bool("persisted", err == nil),
		zap.Time("event_time", rec.CreatedAt),
	)
	return err
}

// LogSecurityEvent writes event to the audit log only; it is not persisted.
func (a *AuditLogger) LogSecurityEvent(ctx context.Context, event SecurityEvent) {
	a.write(ctx,
		zap.String("event_type", event.Type),
		zap.String("user_id", event.UserID),
		zap.String("tenant_id", event.TenantID),
		zap.String("action", event.Action),
		zap.String("resource", event.Resource),
		zap.Bool("success", event.Success),
		zap.String("ip_address", event.IPAddress),
		zap.Time("event_time", a.now()),
	)
}

func (a *AuditLogger) write(ctx context.Context, fields ...zap.Field) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger.Info(ctx, "AUDIT", append(fields, zap.String("audit_version", auditVersion))...)
}
