package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"go.uber.org/zap"
)

// checkAbsentees reminds every active employee of the tenant without an
// attendance entry for the tenant-local today. Tenant settings are read
// fresh so a timer never acts on a stale copy.
func (s *Scheduler) checkAbsentees(ctx context.Context, tenantID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.checkAbsentees")
	defer span.End()

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		if stderrors.Is(err, domain.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load tenant: %w", err)
	}
	if !tenant.Active {
		return 0, nil
	}
	loc, err := tenant.Location()
	if err != nil {
		return 0, fmt.Errorf("tenant timezone: %w", err)
	}

	now := s.clock.Now()
	working, err := s.calendar.IsWorkingDay(ctx, tenant, now)
	if err != nil {
		return 0, err
	}
	if !working {
		return 0, nil
	}
	date := calendar.DateKey(now, loc)

	employees, err := s.store.ListActiveEmployees(ctx, tenant.ID)
	if err != nil {
		return 0, fmt.Errorf("list employees: %w", err)
	}
	entries, err := s.store.ListAttendanceForDay(ctx, tenant.ID, date)
	if err != nil {
		return 0, fmt.Errorf("list attendance for %s: %w", date, err)
	}
	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		present[e.EmployeeID] = struct{}{}
	}

	sent := 0
	for _, emp := range employees {
		if _, ok := present[emp.ID]; ok {
			continue
		}
		err := s.notifier.Notify(ctx, domain.Notification{
			RecipientID:   emp.ID,
			RecipientKind: domain.RecipientEmployee,
			Type:          domain.NotifyCheckInReminder,
			Title:         "Please check in",
			Message:       fmt.Sprintf("Your working day started at %s and you have not checked in yet.", tenant.WorkStart),
			Data: map[string]any{
				"tenant_id": tenant.ID,
				"work_date": date,
			},
			CreatedAt: now.UTC(),
		})
		if err != nil {
			s.logger.Warn(ctx, "Failed to deliver check-in reminder",
				zap.String("tenant_id", tenant.ID),
				zap.String("employee_id", emp.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
		if s.metrics != nil {
			s.metrics.AbsenteeNotifications.Inc()
		}
	}
	return sent, nil
}
