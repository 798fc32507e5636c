package sweep

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"go.uber.org/zap"
)

// Start runs Tick at the top of every hour until ctx is cancelled.
func (j *Job) Start(ctx context.Context) {
	j.logger.Info(ctx, "Sweep job started",
		zap.Int("reminder_hour", j.opts.ReminderHour),
		zap.Int("auto_complete_hour", j.opts.AutoCompleteHour),
		zap.Int("rollover_hour", j.opts.RolloverHour),
	)

	for {
		now := j.clock.Now()
		next := now.Truncate(time.Hour).Add(time.Hour)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info(context.Background(), "Sweep job stopped")
			return
		case <-timer.C:
			if err := j.Tick(ctx, j.clock.Now()); err != nil {
				j.logger.Error(ctx, "Sweep tick finished with errors", zap.Error(err))
			}
		}
	}
}

// Tick runs whatever is due at instant. Per tenant-local hour: the reminder
// pass for today at ReminderHour, the auto-complete pass for yesterday at
// AutoCompleteHour, and a reschedule at midnight. The scheduler's daily
// rollover runs at RolloverHour of the reference clock.
func (j *Job) Tick(ctx context.Context, at time.Time) error {
	ctx, span := j.tracer.Start(ctx, "sweep.Tick")
	defer span.End()

	tenants, err := j.store.ListActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	var errs []error
	for i := range tenants {
		if err := j.tickTenant(ctx, &tenants[i], at); err != nil {
			j.logger.Error(ctx, "Sweep tick failed for tenant",
				zap.String("tenant_id", tenants[i].ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenants[i].ID, err))
		}
	}

	if at.In(j.opts.Reference).Hour() == j.opts.RolloverHour {
		start := time.Now()
		err := j.scheduler.DailyRollover(ctx)
		j.recordJob("rollover", start, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("daily rollover: %w", err))
		}
	}
	return stderrors.Join(errs...)
}

func (j *Job) tickTenant(ctx context.Context, tenant *domain.Tenant, at time.Time) error {
	loc, err := tenant.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	local := at.In(loc)

	var errs []error
	if local.Hour() == j.opts.ReminderHour {
		if _, err := j.remindTenant(ctx, tenant, calendar.DateKey(at, loc)); err != nil {
			errs = append(errs, err)
		}
	}
	if local.Hour() == j.opts.AutoCompleteHour {
		if _, err := j.autoCompleteTenant(ctx, tenant, previousDay(at, loc)); err != nil {
			errs = append(errs, err)
		}
	}
	if local.Hour() == 0 {
		if err := j.scheduler.Reschedule(ctx, tenant); err != nil {
			errs = append(errs, fmt.Errorf("reschedule: %w", err))
		}
	}
	return stderrors.Join(errs...)
}
