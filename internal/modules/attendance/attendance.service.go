package attendance

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"github.com/waqasmani/attendance-scheduler/internal/shared/keylock"
	"github.com/waqasmani/attendance-scheduler/internal/shared/validator"
	"go.uber.org/zap"
)

// Service owns the check-in/check-out state machine of the attendance ledger.
type Service struct {
	store       domain.Store
	auditLogger *observability.AuditLogger
	notifier    domain.Notifier
	clock       calendar.Clock
	locks       *keylock.KeyLock
	validator   *validator.Validator
	logger      *observability.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// NewService creates a new attendance service. locks serializes work per
// employee and is shared with every other writer of ledger entries.
func NewService(
	store domain.Store,
	auditLogger *observability.AuditLogger,
	notifier domain.Notifier,
	clock calendar.Clock,
	locks *keylock.KeyLock,
	validator *validator.Validator,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		store:       store,
		auditLogger: auditLogger,
		notifier:    notifier,
		clock:       clock,
		locks:       locks,
		validator:   validator,
		logger:      logger,
		metrics:     metrics,
		tracer:      observability.NewTracer("attendance"),
	}
}

// CheckIn opens today's ledger entry for the employee.
func (s *Service) CheckIn(ctx context.Context, p domain.EmployeePrincipal, req PunchRequest) (*domain.Attendance, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.CheckIn")
	defer span.End()

	tenant, loc, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(p.EmployeeID)
	entry, err := s.recordCheckIn(ctx, p, req, tenant, loc)
	unlock()
	if err != nil {
		return nil, err
	}

	// The employee's lock is not held while notifying.
	if entry.IsLate {
		s.notify(ctx, domain.Notification{
			RecipientID:   entry.TenantID,
			RecipientKind: domain.RecipientAdmin,
			Type:          domain.NotifyLateArrival,
			Title:         "Late arrival",
			Message:       fmt.Sprintf("Employee %s checked in %d minutes late", entry.EmployeeID, entry.LateByMinutes),
			Data: map[string]any{
				"employee_id":     entry.EmployeeID,
				"attendance_id":   entry.ID,
				"late_by_minutes": entry.LateByMinutes,
			},
			CreatedAt: entry.CheckIn.Time,
		})
	}

	return entry, nil
}

// recordCheckIn persists and audits the check-in. Callers hold the
// employee's lock.
func (s *Service) recordCheckIn(ctx context.Context, p domain.EmployeePrincipal, req PunchRequest, tenant *domain.Tenant, loc *time.Location) (*domain.Attendance, error) {
	now := s.clock.Now().UTC()
	workDate := calendar.DateKey(now, loc)

	existing, err := s.store.GetAttendanceForDay(ctx, p.EmployeeID, workDate)
	if err != nil && !stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, WrapAttendanceError(err, "Failed to load today's attendance")
	}
	if existing != nil && existing.CheckIn != nil {
		return nil, ErrAlreadyCheckedIn
	}

	if tenant.AttendanceCloseEnabled {
		closeAt, err := calendar.Combine(now, tenant.AttendanceCloseTime, loc)
		if err != nil {
			return nil, WrapAttendanceError(err, "Invalid attendance close time")
		}
		if now.After(closeAt) {
			return nil, ErrAttendanceClosed
		}
	}

	entry := existing
	if entry == nil {
		entry = &domain.Attendance{
			ID:         uuid.NewString(),
			EmployeeID: p.EmployeeID,
			TenantID:   p.TenantID,
			WorkDate:   workDate,
			CreatedAt:  now,
		}
	}
	before := entry.Clone()
	entry.CheckIn = &domain.Punch{Time: now, Location: req.location(), Note: req.Note}
	entry.UpdatedAt = now
	if err := ApplyLateness(entry, tenant); err != nil {
		return nil, WrapAttendanceError(err, "Failed to evaluate lateness")
	}

	if existing == nil {
		err = s.store.CreateAttendance(ctx, entry)
	} else {
		err = s.store.UpdateAttendance(ctx, entry)
	}
	switch {
	case stderrors.Is(err, domain.ErrDuplicateRecord):
		return nil, ErrAlreadyCheckedIn
	case stderrors.Is(err, domain.ErrStaleRecord):
		return nil, ErrConcurrentUpdate
	case err != nil:
		return nil, WrapAttendanceError(err, "Failed to record check-in")
	}

	if s.metrics != nil {
		s.metrics.CheckInsTotal.WithLabelValues(string(entry.Status)).Inc()
	}

	var auditBefore any
	if existing != nil {
		auditBefore = before
	}
	s.recordAudit(ctx, &domain.AuditRecord{
		TenantID:   entry.TenantID,
		EntityType: domain.EntityAttendance,
		EntityID:   entry.ID,
		Action:     domain.AuditCreate,
		Before:     auditBefore,
		After:      entry.Clone(),
		ActorID:    p.EmployeeID,
		ActorKind:  domain.ActorEmployee,
	})

	return entry, nil
}

// CheckOut closes today's ledger entry for the employee.
func (s *Service) CheckOut(ctx context.Context, p domain.EmployeePrincipal, req PunchRequest) (*domain.Attendance, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.CheckOut")
	defer span.End()

	tenant, loc, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(p.EmployeeID)
	defer unlock()

	now := s.clock.Now().UTC()
	entry, err := s.store.GetAttendanceForDay(ctx, p.EmployeeID, calendar.DateKey(now, loc))
	if stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, ErrNotCheckedIn
	}
	if err != nil {
		return nil, WrapAttendanceError(err, "Failed to load today's attendance")
	}
	if entry.CheckIn == nil {
		return nil, ErrNotCheckedIn
	}
	if entry.CheckOut != nil {
		return nil, ErrAlreadyCheckedOut
	}

	before := entry.Clone()
	entry.CheckOut = &domain.Punch{Time: now, Location: req.location(), Note: req.Note}
	entry.UpdatedAt = now
	if err := ApplyCheckOut(entry, tenant); err != nil {
		return nil, WrapAttendanceError(err, "Failed to compute overtime")
	}

	if err := s.store.UpdateAttendance(ctx, entry); err != nil {
		if stderrors.Is(err, domain.ErrStaleRecord) {
			return nil, ErrConcurrentUpdate
		}
		return nil, WrapAttendanceError(err, "Failed to record check-out")
	}

	s.observeCheckOut(entry, "employee")
	s.recordAudit(ctx, &domain.AuditRecord{
		TenantID:   entry.TenantID,
		EntityType: domain.EntityAttendance,
		EntityID:   entry.ID,
		Action:     domain.AuditUpdate,
		Before:     before,
		After:      entry.Clone(),
		ActorID:    p.EmployeeID,
		ActorKind:  domain.ActorEmployee,
	})

	return entry, nil
}

// GetToday returns today's entry for the employee, or nil when there is none.
func (s *Service) GetToday(ctx context.Context, p domain.EmployeePrincipal) (string, *domain.Attendance, error) {
	tenant, err := s.store.GetTenant(ctx, p.TenantID)
	if err != nil {
		if stderrors.Is(err, domain.ErrRecordNotFound) {
			return "", nil, ErrTenantNotFound
		}
		return "", nil, WrapAttendanceError(err, "Failed to load tenant")
	}
	loc, err := tenant.Location()
	if err != nil {
		return "", nil, WrapAttendanceError(err, "Invalid tenant timezone")
	}

	workDate := calendar.DateKey(s.clock.Now(), loc)
	entry, err := s.store.GetAttendanceForDay(ctx, p.EmployeeID, workDate)
	if stderrors.Is(err, domain.ErrRecordNotFound) {
		return workDate, nil, nil
	}
	if err != nil {
		return "", nil, WrapAttendanceError(err, "Failed to load today's attendance")
	}
	return workDate, entry, nil
}

// resolve loads the caller's tenant and checks the employee belongs to it.
func (s *Service) resolve(ctx context.Context, p domain.EmployeePrincipal) (*domain.Tenant, *time.Location, error) {
	tenant, err := s.store.GetTenant(ctx, p.TenantID)
	if stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, nil, WrapAttendanceError(err, "Failed to load tenant")
	}
	if !tenant.Active {
		return nil, nil, ErrTenantInactive
	}

	employee, err := s.store.GetEmployee(ctx, p.EmployeeID)
	if stderrors.Is(err, domain.ErrRecordNotFound) || (err == nil && employee.TenantID != tenant.ID) {
		return nil, nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, nil, WrapAttendanceError(err, "Failed to load employee")
	}
	if !employee.Active {
		return nil, nil, ErrEmployeeInactive
	}

	loc, err := tenant.Location()
	if err != nil {
		return nil, nil, WrapAttendanceError(err, "Invalid tenant timezone")
	}
	return tenant, loc, nil
}

func (s *Service) observeCheckOut(entry *domain.Attendance, source string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CheckOutsTotal.WithLabelValues(source).Inc()
	s.metrics.WorkingHours.Observe(entry.WorkingHours.InexactFloat64())
}

// recordAudit appends to the audit trail. Failures never undo the write they describe.
func (s *Service) recordAudit(ctx context.Context, rec *domain.AuditRecord) {
	if err := s.auditLogger.Record(ctx, rec); err != nil {
		s.logger.Error(ctx, "Failed to append audit record",
			zap.String("entity_id", rec.EntityID),
			zap.String("action", rec.Action),
			zap.Error(err),
		)
	}
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn(ctx, "Failed to deliver notification",
			zap.String("type", n.Type),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err),
		)
	}
}
