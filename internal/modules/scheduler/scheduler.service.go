// Package scheduler keeps one absentee-check wake-up per active tenant,
// firing at the tenant's working-hours start on working days.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"github.com/waqasmani/attendance-scheduler/internal/shared/keylock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const recoverParallelism = 8

type Scheduler struct {
	store    domain.Store
	calendar *calendar.Calendar
	notifier domain.Notifier
	clock    calendar.Clock
	timers   TimerFactory
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	// tenants serializes operations per tenant; mu only guards slots and is
	// never held across I/O.
	tenants *keylock.KeyLock
	mu      sync.Mutex
	slots   map[string]*slot
	gen     uint64
	closed  bool

	fireCtx    context.Context
	cancelFire context.CancelFunc
	inflight   sync.WaitGroup
}

func New(
	store domain.Store,
	cal *calendar.Calendar,
	notifier domain.Notifier,
	clock calendar.Clock,
	timers TimerFactory,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:      store,
		calendar:   cal,
		notifier:   notifier,
		clock:      clock,
		timers:     timers,
		logger:     logger,
		metrics:    metrics,
		tracer:     observability.NewTracer("scheduler"),
		tenants:    keylock.New(),
		slots:      make(map[string]*slot),
		fireCtx:    ctx,
		cancelFire: cancel,
	}
}

// ScheduleForToday installs the tenant's timer for working-hours start of the
// tenant-local today. Inactive tenants lose any timer they had. Nothing is
// installed on non-working days, on holidays, or once the start has passed.
func (s *Scheduler) ScheduleForToday(ctx context.Context, tenant *domain.Tenant) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.ScheduleForToday")
	defer span.End()

	unlock := s.tenants.Lock(tenant.ID)
	defer unlock()
	return s.schedule(ctx, tenant)
}

// Reschedule cancels the tenant's timer and schedules it again from its
// current settings.
func (s *Scheduler) Reschedule(ctx context.Context, tenant *domain.Tenant) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.Reschedule")
	defer span.End()

	unlock := s.tenants.Lock(tenant.ID)
	defer unlock()
	s.clear(tenant.ID)
	return s.schedule(ctx, tenant)
}

// Cancel drops the tenant's timer if it has one.
func (s *Scheduler) Cancel(tenantID string) {
	unlock := s.tenants.Lock(tenantID)
	defer unlock()
	s.clear(tenantID)
}

// State reports the tenant's timer state and, when scheduled or fired, the
// instant it was set for.
func (s *Scheduler) State(tenantID string) (TimerState, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[tenantID]
	if !ok {
		return Unscheduled, time.Time{}
	}
	return sl.state, sl.fireAt
}

// RecoverAll drops every timer and schedules each active tenant again. A
// failing tenant does not stop the others; their errors are joined.
func (s *Scheduler) RecoverAll(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.RecoverAll")
	defer span.End()

	s.mu.Lock()
	for id, sl := range s.slots {
		if sl.timer != nil {
			sl.timer.Stop()
		}
		delete(s.slots, id)
	}
	s.updateGauge()
	s.mu.Unlock()

	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	var (
		errMu sync.Mutex
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoverParallelism)
	for i := range tenants {
		tenant := &tenants[i]
		g.Go(func() error {
			if err := s.ScheduleForToday(gctx, tenant); err != nil {
				s.logger.Error(gctx, "Failed to schedule tenant",
					zap.String("tenant_id", tenant.ID),
					zap.Error(err),
				)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info(ctx, "Scheduler recovered",
		zap.Int("tenants", len(tenants)),
		zap.Int("failed", len(errs)),
	)
	return stderrors.Join(errs...)
}

// DailyRollover is run once per reference-clock day. Timers that already
// fired are replaced by fresh ones for the new day.
func (s *Scheduler) DailyRollover(ctx context.Context) error {
	start := time.Now()
	err := s.RecoverAll(ctx)
	if s.metrics != nil {
		s.metrics.RecordBackgroundJob("daily_rollover", time.Since(start), err)
	}
	return err
}

// Shutdown stops every timer and waits for absentee checks already running.
// Later calls on the scheduler are no-ops.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, sl := range s.slots {
		if sl.timer != nil {
			sl.timer.Stop()
		}
		delete(s.slots, id)
	}
	s.updateGauge()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancelFire()
		return nil
	case <-ctx.Done():
		s.cancelFire()
		return ctx.Err()
	}
}

// schedule requires the tenant's key lock.
func (s *Scheduler) schedule(ctx context.Context, tenant *domain.Tenant) error {
	if !tenant.Active {
		s.clear(tenant.ID)
		return nil
	}
	loc, err := tenant.Location()
	if err != nil {
		return fmt.Errorf("tenant %s timezone: %w", tenant.ID, err)
	}

	now := s.clock.Now()
	working, err := s.calendar.IsWorkingDay(ctx, tenant, now)
	if err != nil {
		return err
	}
	if !working {
		s.logger.Debug(ctx, "No timer on non-working day",
			zap.String("tenant_id", tenant.ID),
			zap.String("date", calendar.DateKey(now, loc)),
		)
		return nil
	}

	fireAt, err := calendar.Combine(now, tenant.WorkStart, loc)
	if err != nil {
		return fmt.Errorf("tenant %s work start: %w", tenant.ID, err)
	}
	if !fireAt.After(now) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if old, ok := s.slots[tenant.ID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	s.gen++
	gen, tenantID := s.gen, tenant.ID
	s.slots[tenantID] = &slot{
		state:  Scheduled,
		fireAt: fireAt.UTC(),
		gen:    gen,
		timer:  s.timers.AfterFunc(fireAt.Sub(now), func() { s.fire(tenantID, gen) }),
	}
	s.updateGauge()

	s.logger.Debug(ctx, "Absentee check scheduled",
		zap.String("tenant_id", tenantID),
		zap.Time("fire_at", fireAt),
	)
	return nil
}

// clear requires the tenant's key lock.
func (s *Scheduler) clear(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[tenantID]; ok {
		if sl.timer != nil {
			sl.timer.Stop()
		}
		delete(s.slots, tenantID)
		s.updateGauge()
	}
}

// fire runs on the timer's goroutine.
func (s *Scheduler) fire(tenantID string, gen uint64) {
	s.mu.Lock()
	sl, ok := s.slots[tenantID]
	if s.closed || !ok || sl.gen != gen || sl.state != Scheduled {
		s.mu.Unlock()
		s.countFire("stale")
		return
	}
	sl.state = Fired
	sl.timer = nil
	s.updateGauge()
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	start := time.Now()
	sent, err := s.checkAbsentees(s.fireCtx, tenantID)
	if s.metrics != nil {
		s.metrics.RecordBackgroundJob("absentee_check", time.Since(start), err)
	}
	if err != nil {
		s.countFire("error")
		s.logger.Error(s.fireCtx, "Absentee check failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return
	}
	s.countFire("fired")
	s.logger.Info(s.fireCtx, "Absentee check completed",
		zap.String("tenant_id", tenantID),
		zap.Int("reminders", sent),
	)
}

// updateGauge requires mu.
func (s *Scheduler) updateGauge() {
	if s.metrics == nil {
		return
	}
	n := 0
	for _, sl := range s.slots {
		if sl.state == Scheduled {
			n++
		}
	}
	s.metrics.SchedulerTimers.Set(float64(n))
}

func (s *Scheduler) countFire(outcome string) {
	if s.metrics != nil {
		s.metrics.SchedulerFires.WithLabelValues(outcome).Inc()
	}
}
