// Package sweep runs the nightly passes over open attendance entries and
// drives the scheduler's day boundaries.
package sweep

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	PassReminder     = "reminder"
	PassAutoComplete = "auto_complete"
)

// AutoCompleter closes an entry left open at the end of its day.
type AutoCompleter interface {
	AutoComplete(ctx context.Context, tenant *domain.Tenant, attendanceID string) (*domain.Attendance, bool, error)
}

// Rescheduler is the part of the tenant scheduler the sweep drives.
type Rescheduler interface {
	Reschedule(ctx context.Context, tenant *domain.Tenant) error
	DailyRollover(ctx context.Context) error
}

type Options struct {
	// ReminderHour is the tenant-local hour open entries of the current day
	// get a reminder. AutoCompleteHour is the tenant-local hour at which the
	// previous day's open entries are closed.
	ReminderHour     int
	AutoCompleteHour int
	// RolloverHour is an hour of Reference.
	RolloverHour int
	Reference    *time.Location
	Parallelism  int
}

type Job struct {
	store     domain.Store
	completer AutoCompleter
	scheduler Rescheduler
	notifier  domain.Notifier
	clock     calendar.Clock
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	opts      Options
}

func NewJob(
	store domain.Store,
	completer AutoCompleter,
	scheduler Rescheduler,
	notifier domain.Notifier,
	clock calendar.Clock,
	logger *observability.Logger,
	metrics *observability.Metrics,
	opts Options,
) *Job {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Reference == nil {
		opts.Reference = time.UTC
	}
	return &Job{
		store:     store,
		completer: completer,
		scheduler: scheduler,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		tracer:    observability.NewTracer("sweep"),
		opts:      opts,
	}
}

// RunReminderPass reminds every employee with an open entry for their
// tenant's today. Re-running may remind the same entries again.
func (j *Job) RunReminderPass(ctx context.Context) error {
	return j.runPass(ctx, PassReminder, func(ctx context.Context, tenant *domain.Tenant, loc *time.Location) error {
		_, err := j.remindTenant(ctx, tenant, calendar.DateKey(j.clock.Now(), loc))
		return err
	})
}

// RunAutoCompletePass closes every entry still open for its tenant's
// previous day, the latest day that has ended. Entries closed by an earlier
// run are left alone.
func (j *Job) RunAutoCompletePass(ctx context.Context) error {
	return j.runPass(ctx, PassAutoComplete, func(ctx context.Context, tenant *domain.Tenant, loc *time.Location) error {
		_, err := j.autoCompleteTenant(ctx, tenant, previousDay(j.clock.Now(), loc))
		return err
	})
}

// previousDay is the date key of the tenant-local day before the one at
// instant falls on.
func previousDay(at time.Time, loc *time.Location) string {
	return calendar.DateKey(calendar.StartOfDay(at.In(loc), loc).Add(-time.Hour), loc)
}

// runPass applies fn to every active tenant with bounded parallelism. One
// tenant failing does not stop the others.
func (j *Job) runPass(ctx context.Context, name string, fn func(context.Context, *domain.Tenant, *time.Location) error) error {
	ctx, span := j.tracer.Start(ctx, "sweep."+name)
	defer span.End()
	start := time.Now()

	tenants, err := j.store.ListActiveTenants(ctx)
	if err != nil {
		err = fmt.Errorf("list active tenants: %w", err)
		j.recordJob(name, start, err)
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Parallelism)
	for i := range tenants {
		tenant := &tenants[i]
		g.Go(func() error {
			loc, err := tenant.Location()
			if err == nil {
				err = fn(gctx, tenant, loc)
			}
			if err != nil {
				j.logger.Error(gctx, "Sweep pass failed for tenant",
					zap.String("pass", name),
					zap.String("tenant_id", tenant.ID),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	err = stderrors.Join(errs...)
	j.recordJob(name, start, err)
	return err
}

func (j *Job) remindTenant(ctx context.Context, tenant *domain.Tenant, date string) (int, error) {
	open, err := j.store.ListOpenAttendance(ctx, tenant.ID, date)
	if err != nil {
		return 0, fmt.Errorf("list open attendance for %s: %w", date, err)
	}

	sent := 0
	for _, entry := range open {
		err := j.notifier.Notify(ctx, domain.Notification{
			RecipientID:   entry.EmployeeID,
			RecipientKind: domain.RecipientEmployee,
			Type:          domain.NotifyCheckoutReminder,
			Title:         "Don't forget to check out",
			Message:       fmt.Sprintf("You checked in on %s but have not checked out yet.", entry.WorkDate),
			Data: map[string]any{
				"attendance_id": entry.ID,
				"work_date":     entry.WorkDate,
			},
			CreatedAt: j.clock.Now().UTC(),
		})
		if err != nil {
			j.countEntry(PassReminder, "failed")
			j.logger.Warn(ctx, "Failed to deliver checkout reminder",
				zap.String("tenant_id", tenant.ID),
				zap.String("employee_id", entry.EmployeeID),
				zap.Error(err),
			)
			continue
		}
		j.countEntry(PassReminder, "sent")
		sent++
	}

	j.logger.Info(ctx, "Checkout reminders sent",
		zap.String("tenant_id", tenant.ID),
		zap.String("date", date),
		zap.Int("open", len(open)),
		zap.Int("sent", sent),
	)
	return sent, nil
}

// autoCompleteTenant closes the tenant's open entries for date one at a
// time. A failing entry is reported but does not stop the rest.
func (j *Job) autoCompleteTenant(ctx context.Context, tenant *domain.Tenant, date string) (int, error) {
	open, err := j.store.ListOpenAttendance(ctx, tenant.ID, date)
	if err != nil {
		return 0, fmt.Errorf("list open attendance for %s: %w", date, err)
	}

	closed := 0
	var errs []error
	for _, entry := range open {
		_, done, err := j.completer.AutoComplete(ctx, tenant, entry.ID)
		switch {
		case err != nil:
			j.countEntry(PassAutoComplete, "failed")
			j.logger.Error(ctx, "Failed to auto-complete attendance",
				zap.String("tenant_id", tenant.ID),
				zap.String("attendance_id", entry.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
		case done:
			j.countEntry(PassAutoComplete, "closed")
			closed++
		default:
			j.countEntry(PassAutoComplete, "skipped")
		}
	}

	if len(open) > 0 {
		j.logger.Info(ctx, "Open attendance auto-completed",
			zap.String("tenant_id", tenant.ID),
			zap.String("date", date),
			zap.Int("closed", closed),
			zap.Int("failed", len(errs)),
		)
	}
	return closed, stderrors.Join(errs...)
}

func (j *Job) countEntry(pass, outcome string) {
	if j.metrics != nil {
		j.metrics.SweepEntries.WithLabelValues(pass, outcome).Inc()
	}
}

func (j *Job) recordJob(name string, start time.Time, err error) {
	if j.metrics != nil {
		j.metrics.RecordBackgroundJob("sweep_"+name, time.Since(start), err)
	}
}
