package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/store/memstore"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
)

var (
	// Monday 2 March 2026.
	monday   = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	saturday = monday.AddDate(0, 0, -2)
)

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

// Fire runs the callback even if the timer was stopped, like a real timer
// whose callback had already started.
func (t *fakeTimer) Fire() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{d: d, f: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) all() []*fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTimer(nil), f.timers...)
}

func (f *fakeTimers) live() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range f.all() {
		if t.live() {
			out = append(out, t)
		}
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, n := range r.sent {
		ids = append(ids, n.RecipientID)
	}
	return ids
}

type testEnv struct {
	store     *memstore.Store
	clock     *calendar.ManualClock
	timers    *fakeTimers
	notifier  *recordingNotifier
	metrics   *observability.Metrics
	scheduler *Scheduler
}

func testTenant() domain.Tenant {
	return domain.Tenant{
		ID:           "tenant-1",
		Timezone:     "UTC",
		WorkingDays:  []int{1, 2, 3, 4, 5},
		WorkStart:    "09:00",
		WorkEnd:      "17:00",
		GraceMinutes: 15,
		Active:       true,
	}
}

func newTestEnv(t *testing.T, now time.Time, tenants ...domain.Tenant) *testEnv {
	t.Helper()
	store := memstore.New()
	for _, tn := range tenants {
		store.PutTenant(tn)
	}
	for _, id := range []string{"emp-1", "emp-2", "emp-3"} {
		store.PutEmployee(domain.Employee{ID: id, TenantID: "tenant-1", Active: true})
	}
	store.PutEmployee(domain.Employee{ID: "emp-gone", TenantID: "tenant-1", Active: false})

	env := &testEnv{
		store:    store,
		clock:    calendar.NewManualClock(now),
		timers:   &fakeTimers{},
		notifier: &recordingNotifier{},
		metrics: observability.NewMetricsWithConfig(observability.MetricsConfig{
			Namespace: "test",
			Registry:  prometheus.NewRegistry(),
		}),
	}
	env.scheduler = New(store, calendar.New(store), env.notifier, env.clock, env.timers,
		observability.NewNopLogger(), env.metrics)
	t.Cleanup(func() { _ = env.scheduler.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) tenant(t *testing.T, id string) *domain.Tenant {
	t.Helper()
	tn, err := e.store.GetTenant(context.Background(), id)
	require.NoError(t, err)
	return tn
}

func TestScheduleForToday_InstallsTimerAtWorkStart(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())

	require.NoError(t, env.scheduler.ScheduleForToday(context.Background(), env.tenant(t, "tenant-1")))

	live := env.timers.live()
	require.Len(t, live, 1)
	assert.Equal(t, 2*time.Hour, live[0].d)

	state, fireAt := env.scheduler.State("tenant-1")
	assert.Equal(t, Scheduled, state)
	assert.Equal(t, monday.Add(9*time.Hour), fireAt)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SchedulerTimers))
}

func TestScheduleForToday_UsesTenantLocalDay(t *testing.T) {
	tokyo := testTenant()
	tokyo.Timezone = "Asia/Tokyo"
	// Sunday 22:00 UTC is Monday 07:00 in Tokyo.
	env := newTestEnv(t, monday.Add(-2*time.Hour), tokyo)

	require.NoError(t, env.scheduler.ScheduleForToday(context.Background(), env.tenant(t, "tenant-1")))

	state, fireAt := env.scheduler.State("tenant-1")
	require.Equal(t, Scheduled, state)
	assert.Equal(t, monday, fireAt, "09:00 JST is midnight UTC")
	assert.Equal(t, 2*time.Hour, env.timers.live()[0].d)
}

func TestScheduleForToday_NoTimer(t *testing.T) {
	inactive := testTenant()
	inactive.Active = false

	tests := []struct {
		name    string
		now     time.Time
		tenant  domain.Tenant
		holiday bool
	}{
		{"saturday", saturday.Add(7 * time.Hour), testTenant(), false},
		{"holiday on a weekday", monday.Add(7 * time.Hour), testTenant(), true},
		{"start already passed", monday.Add(9 * time.Hour), testTenant(), false},
		{"inactive tenant", monday.Add(7 * time.Hour), inactive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.now, tt.tenant)
			if tt.holiday {
				require.NoError(t, env.store.UpsertHoliday(context.Background(), domain.Holiday{
					TenantID: "tenant-1", Date: "2026-03-02", Description: "Founders day",
				}))
			}

			require.NoError(t, env.scheduler.ScheduleForToday(context.Background(), env.tenant(t, "tenant-1")))

			assert.Empty(t, env.timers.all())
			state, _ := env.scheduler.State("tenant-1")
			assert.Equal(t, Unscheduled, state)
		})
	}
}

func TestFire_RemindsEmployeesWithoutEntry(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	ctx := context.Background()
	require.NoError(t, env.scheduler.ScheduleForToday(ctx, env.tenant(t, "tenant-1")))

	require.NoError(t, env.store.CreateAttendance(ctx, &domain.Attendance{
		ID: "a1", EmployeeID: "emp-2", TenantID: "tenant-1", WorkDate: "2026-03-02",
		CheckIn: &domain.Punch{Time: monday.Add(8 * time.Hour)},
	}))
	// Yesterday's entry does not count.
	require.NoError(t, env.store.CreateAttendance(ctx, &domain.Attendance{
		ID: "a0", EmployeeID: "emp-3", TenantID: "tenant-1", WorkDate: "2026-03-01",
	}))

	env.clock.Set(monday.Add(9 * time.Hour))
	env.timers.live()[0].Fire()

	assert.ElementsMatch(t, []string{"emp-1", "emp-3"}, env.notifier.recipients())
	for _, n := range env.notifier.sent {
		assert.Equal(t, domain.NotifyCheckInReminder, n.Type)
		assert.Equal(t, domain.RecipientEmployee, n.RecipientKind)
		assert.Equal(t, "2026-03-02", n.Data["work_date"])
	}

	state, fireAt := env.scheduler.State("tenant-1")
	assert.Equal(t, Fired, state)
	assert.Equal(t, monday.Add(9*time.Hour), fireAt)
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.SchedulerTimers))
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.AbsenteeNotifications))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SchedulerFires.WithLabelValues("fired")))
}

func TestFire_NotifyFailuresAreLogged(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	env.notifier.err = stderrors.New("push down")
	require.NoError(t, env.scheduler.ScheduleForToday(context.Background(), env.tenant(t, "tenant-1")))

	env.clock.Set(monday.Add(9 * time.Hour))
	env.timers.live()[0].Fire()

	assert.Len(t, env.notifier.recipients(), 3, "every employee is still attempted")
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.AbsenteeNotifications))
	state, _ := env.scheduler.State("tenant-1")
	assert.Equal(t, Fired, state)
}

func TestFire_ReadsCurrentSettings(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	ctx := context.Background()
	require.NoError(t, env.scheduler.ScheduleForToday(ctx, env.tenant(t, "tenant-1")))

	// Deactivated without going through the scheduler.
	tn := env.tenant(t, "tenant-1")
	tn.Active = false
	require.NoError(t, env.store.UpdateTenant(ctx, tn))

	env.clock.Set(monday.Add(9 * time.Hour))
	env.timers.live()[0].Fire()
	assert.Empty(t, env.notifier.recipients())
}

func TestReschedule_ReplacesTimer(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	ctx := context.Background()
	require.NoError(t, env.scheduler.ScheduleForToday(ctx, env.tenant(t, "tenant-1")))
	first := env.timers.live()[0]

	tn := env.tenant(t, "tenant-1")
	tn.WorkStart = "10:30"
	require.NoError(t, env.store.UpdateTenant(ctx, tn))
	require.NoError(t, env.scheduler.Reschedule(ctx, tn))

	live := env.timers.live()
	require.Len(t, live, 1)
	assert.NotSame(t, first, live[0])
	assert.Equal(t, 3*time.Hour+30*time.Minute, live[0].d)
	_, fireAt := env.scheduler.State("tenant-1")
	assert.Equal(t, monday.Add(10*time.Hour+30*time.Minute), fireAt)

	// The superseded callback is ignored even if it runs.
	first.Fire()
	assert.Empty(t, env.notifier.recipients())
	state, _ := env.scheduler.State("tenant-1")
	assert.Equal(t, Scheduled, state)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SchedulerFires.WithLabelValues("stale")))
}

func TestReschedule_MovedToNonWorkingDayDropsTimer(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	ctx := context.Background()
	require.NoError(t, env.scheduler.ScheduleForToday(ctx, env.tenant(t, "tenant-1")))

	tn := env.tenant(t, "tenant-1")
	tn.WorkingDays = []int{2, 3, 4, 5, 6}
	require.NoError(t, env.scheduler.Reschedule(ctx, tn))

	assert.Empty(t, env.timers.live())
	state, _ := env.scheduler.State("tenant-1")
	assert.Equal(t, Unscheduled, state)
}

func TestReschedule_ConcurrentCallsLeaveOneTimer(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	tn := env.tenant(t, "tenant-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_ = env.scheduler.Reschedule(context.Background(), tn)
			case 1:
				_ = env.scheduler.ScheduleForToday(context.Background(), tn)
			default:
				env.scheduler.Cancel(tn.ID)
			}
		}(i)
	}
	wg.Wait()

	state, _ := env.scheduler.State(tn.ID)
	live := env.timers.live()
	if state == Scheduled {
		assert.Len(t, live, 1)
	} else {
		assert.Empty(t, live)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	require.NoError(t, env.scheduler.ScheduleForToday(context.Background(), env.tenant(t, "tenant-1")))

	env.scheduler.Cancel("tenant-1")
	env.scheduler.Cancel("tenant-1")
	env.scheduler.Cancel("unknown")

	assert.Empty(t, env.timers.live())
	state, _ := env.scheduler.State("tenant-1")
	assert.Equal(t, Unscheduled, state)
}

func TestRecoverAll(t *testing.T) {
	second := testTenant()
	second.ID = "tenant-2"
	second.WorkStart = "08:00"
	broken := testTenant()
	broken.ID = "tenant-broken"
	broken.Timezone = "Mars/Olympus_Mons"
	off := testTenant()
	off.ID = "tenant-off"
	off.Active = false

	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant(), second, broken, off)

	err := env.scheduler.RecoverAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant-broken")

	for _, id := range []string{"tenant-1", "tenant-2"} {
		state, _ := env.scheduler.State(id)
		assert.Equal(t, Scheduled, state, id)
	}
	for _, id := range []string{"tenant-broken", "tenant-off"} {
		state, _ := env.scheduler.State(id)
		assert.Equal(t, Unscheduled, state, id)
	}
	assert.Len(t, env.timers.live(), 2)
}

func TestRecoverAll_AfterStartDoesNotRefire(t *testing.T) {
	// Restart at 10:00, after the 09:00 timer already fired in the old process.
	env := newTestEnv(t, monday.Add(10*time.Hour), testTenant())

	require.NoError(t, env.scheduler.RecoverAll(context.Background()))

	assert.Empty(t, env.timers.all())
	assert.Empty(t, env.notifier.recipients())
}

func TestDailyRollover_SchedulesTheNewDay(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	ctx := context.Background()
	require.NoError(t, env.scheduler.RecoverAll(ctx))

	env.clock.Set(monday.Add(9 * time.Hour))
	env.timers.live()[0].Fire()
	state, _ := env.scheduler.State("tenant-1")
	require.Equal(t, Fired, state)

	env.clock.Set(monday.Add(24 * time.Hour))
	require.NoError(t, env.scheduler.DailyRollover(ctx))

	state, fireAt := env.scheduler.State("tenant-1")
	assert.Equal(t, Scheduled, state)
	assert.Equal(t, monday.Add(33*time.Hour), fireAt)
	assert.Len(t, env.timers.live(), 1)
}

func TestShutdown(t *testing.T) {
	env := newTestEnv(t, monday.Add(7*time.Hour), testTenant())
	ctx := context.Background()
	require.NoError(t, env.scheduler.ScheduleForToday(ctx, env.tenant(t, "tenant-1")))
	timer := env.timers.live()[0]

	require.NoError(t, env.scheduler.Shutdown(ctx))
	assert.Empty(t, env.timers.live())

	require.NoError(t, env.scheduler.ScheduleForToday(ctx, env.tenant(t, "tenant-1")))
	assert.Empty(t, env.timers.live())

	timer.Fire()
	assert.Empty(t, env.notifier.recipients())
}

func TestTimerState_String(t *testing.T) {
	assert.Equal(t, "unscheduled", Unscheduled.String())
	assert.Equal(t, "scheduled", Scheduled.String())
	assert.Equal(t, "fired", Fired.String())
}
