package tenants

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sort"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
	"github.com/waqasmani/attendance-scheduler/internal/shared/keylock"
	"github.com/waqasmani/attendance-scheduler/internal/shared/validator"
	"go.uber.org/zap"
)

// Rescheduler is the part of the tenant scheduler settings changes drive.
type Rescheduler interface {
	Reschedule(ctx context.Context, tenant *domain.Tenant) error
	Cancel(tenantID string)
}

type Service struct {
	store       domain.Store
	auditLogger *observability.AuditLogger
	scheduler   Rescheduler
	clock       calendar.Clock
	locks       *keylock.KeyLock
	validator   *validator.Validator
	logger      *observability.Logger
	tracer      *observability.Tracer
}

func NewService(
	store domain.Store,
	auditLogger *observability.AuditLogger,
	scheduler Rescheduler,
	clock calendar.Clock,
	validator *validator.Validator,
	logger *observability.Logger,
) *Service {
	return &Service{
		store:       store,
		auditLogger: auditLogger,
		scheduler:   scheduler,
		clock:       clock,
		locks:       keylock.New(),
		validator:   validator,
		logger:      logger,
		tracer:      observability.NewTracer("tenants"),
	}
}

func (s *Service) GetSettings(ctx context.Context, admin domain.AdminPrincipal) (*domain.Tenant, error) {
	return s.load(ctx, admin.TenantID)
}

// UpdateSettings applies a partial settings update. Changes to anything the
// absentee timer depends on reschedule the tenant immediately.
func (s *Service) UpdateSettings(ctx context.Context, admin domain.AdminPrincipal, req UpdateSettingsRequest) (*domain.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenants.UpdateSettings")
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return nil, errors.WithDetails(errors.ErrCodeValidation, "Validation failed", validator.TranslateValidationErrors(err))
	}

	unlock := s.locks.Lock(admin.TenantID)
	defer unlock()

	tenant, err := s.load(ctx, admin.TenantID)
	if err != nil {
		return nil, err
	}
	before := tenant.Clone()
	apply(tenant, req)
	if err := checkSettings(tenant); err != nil {
		return nil, err
	}

	tenant.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateTenant(ctx, tenant); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to update tenant settings")
	}

	s.recordAudit(ctx, admin, domain.AuditTenantSettingsUpdate, before, tenant)
	if schedulingChanged(before, tenant) {
		s.reschedule(ctx, tenant)
	}
	return tenant, nil
}

func (s *Service) Activate(ctx context.Context, admin domain.AdminPrincipal) (*domain.Tenant, error) {
	return s.setActive(ctx, admin, true)
}

// Deactivate soft-disables the tenant and drops its timer.
func (s *Service) Deactivate(ctx context.Context, admin domain.AdminPrincipal) (*domain.Tenant, error) {
	return s.setActive(ctx, admin, false)
}

func (s *Service) setActive(ctx context.Context, admin domain.AdminPrincipal, active bool) (*domain.Tenant, error) {
	unlock := s.locks.Lock(admin.TenantID)
	defer unlock()

	tenant, err := s.load(ctx, admin.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Active == active {
		return tenant, nil
	}

	before := tenant.Clone()
	tenant.Active = active
	tenant.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateTenant(ctx, tenant); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to update tenant")
	}

	action := domain.AuditTenantDeactivate
	if active {
		action = domain.AuditTenantActivate
	}
	s.recordAudit(ctx, admin, action, before, tenant)

	if active {
		s.reschedule(ctx, tenant)
	} else {
		s.scheduler.Cancel(tenant.ID)
	}
	return tenant, nil
}

// ListHolidays returns the caller's tenant holidays for a calendar year.
func (s *Service) ListHolidays(ctx context.Context, p domain.Principal, year int) ([]domain.Holiday, error) {
	if year < 1970 || year > 9999 {
		return nil, ErrInvalidYear
	}
	holidays, err := s.store.ListHolidays(ctx, p.Tenant(),
		fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to list holidays")
	}
	return holidays, nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Tenant, error) {
	tenant, err := s.store.GetTenant(ctx, id)
	if stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to load tenant")
	}
	return tenant, nil
}

func (s *Service) reschedule(ctx context.Context, tenant *domain.Tenant) {
	if err := s.scheduler.Reschedule(ctx, tenant); err != nil {
		s.logger.Error(ctx, "Failed to reschedule tenant",
			zap.String("tenant_id", tenant.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) recordAudit(ctx context.Context, admin domain.AdminPrincipal, action string, before, after *domain.Tenant) {
	err := s.auditLogger.Record(ctx, &domain.AuditRecord{
		TenantID:   after.ID,
		EntityType: domain.EntityTenant,
		EntityID:   after.ID,
		Action:     action,
		Before:     before,
		After:      after.Clone(),
		ActorID:    admin.AdminID,
		ActorKind:  domain.ActorAdmin,
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to append audit record",
			zap.String("tenant_id", after.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func apply(t *domain.Tenant, req UpdateSettingsRequest) {
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Timezone != nil {
		t.Timezone = *req.Timezone
	}
	if req.WorkingDays != nil {
		days := slices.Clone(req.WorkingDays)
		sort.Ints(days)
		t.WorkingDays = days
	}
	if req.WorkStart != nil {
		t.WorkStart = *req.WorkStart
	}
	if req.WorkEnd != nil {
		t.WorkEnd = *req.WorkEnd
	}
	if req.GraceMinutes != nil {
		t.GraceMinutes = *req.GraceMinutes
	}
	if req.AttendanceCloseEnabled != nil {
		t.AttendanceCloseEnabled = *req.AttendanceCloseEnabled
	}
	if req.AttendanceCloseTime != nil {
		t.AttendanceCloseTime = *req.AttendanceCloseTime
	}
	if req.AdminEmail != nil {
		t.AdminEmail = *req.AdminEmail
	}
}

// checkSettings validates the merged settings as a whole.
func checkSettings(t *domain.Tenant) error {
	startH, startM, err := calendar.ParseHHMM(t.WorkStart)
	if err != nil {
		return ErrInvalidWorkingHours
	}
	endH, endM, err := calendar.ParseHHMM(t.WorkEnd)
	if err != nil {
		return ErrInvalidWorkingHours
	}
	if endH*60+endM <= startH*60+startM {
		return ErrInvalidWorkingHours
	}
	if t.AttendanceCloseEnabled && t.AttendanceCloseTime == "" {
		return ErrCloseTimeRequired
	}
	return nil
}

func schedulingChanged(before, after *domain.Tenant) bool {
	return before.Timezone != after.Timezone ||
		before.WorkStart != after.WorkStart ||
		before.Active != after.Active ||
		!slices.Equal(before.WorkingDays, after.WorkingDays)
}
