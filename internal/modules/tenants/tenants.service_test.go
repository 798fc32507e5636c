package tenants

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/store/memstore"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
	"github.com/waqasmani/attendance-scheduler/internal/shared/validator"
)

var admin = domain.AdminPrincipal{AdminID: "adm-1", TenantID: "tenant-1"}

type fakeScheduler struct {
	mu          sync.Mutex
	rescheduled []domain.Tenant
	cancelled   []string
	err         error
}

func (f *fakeScheduler) Reschedule(_ context.Context, t *domain.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled = append(f.rescheduled, *t.Clone())
	return f.err
}

func (f *fakeScheduler) Cancel(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, tenantID)
}

type testEnv struct {
	store     *memstore.Store
	scheduler *fakeScheduler
	service   *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	store.PutTenant(domain.Tenant{
		ID:           "tenant-1",
		Name:         "Acme",
		Timezone:     "UTC",
		WorkingDays:  []int{1, 2, 3, 4, 5},
		WorkStart:    "09:00",
		WorkEnd:      "17:00",
		GraceMinutes: 15,
		Active:       true,
	})
	logger := observability.NewNopLogger()
	sched := &fakeScheduler{}
	clock := calendar.NewManualClock(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC))
	return &testEnv{
		store:     store,
		scheduler: sched,
		service:   NewService(store, observability.NewAuditLogger(logger, store), sched, clock, validator.New(), logger),
	}
}

func str(s string) *string { return &s }
func num(n int) *int       { return &n }

func TestUpdateSettings_ReschedulesOnTimingChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	updated, err := env.service.UpdateSettings(ctx, admin, UpdateSettingsRequest{
		WorkStart:   str("08:30"),
		Timezone:    str("Asia/Karachi"),
		WorkingDays: []int{6, 0, 1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "08:30", updated.WorkStart)
	assert.Equal(t, []int{0, 1, 2, 3, 6}, updated.WorkingDays)

	stored, err := env.store.GetTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Karachi", stored.Timezone)

	require.Len(t, env.scheduler.rescheduled, 1)
	assert.Equal(t, "08:30", env.scheduler.rescheduled[0].WorkStart)

	trail := env.store.AuditTrail()
	require.Len(t, trail, 1)
	assert.Equal(t, domain.AuditTenantSettingsUpdate, trail[0].Action)
	assert.Equal(t, "09:00", trail[0].Before.(*domain.Tenant).WorkStart)
	assert.Equal(t, "08:30", trail[0].After.(*domain.Tenant).WorkStart)
}

func TestUpdateSettings_OtherFieldsDoNotReschedule(t *testing.T) {
	env := newTestEnv(t)

	updated, err := env.service.UpdateSettings(context.Background(), admin, UpdateSettingsRequest{
		Name:         str("Acme Ltd"),
		GraceMinutes: num(0),
		WorkEnd:      str("18:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", updated.Name)
	assert.Zero(t, updated.GraceMinutes)
	assert.Empty(t, env.scheduler.rescheduled)
}

func TestUpdateSettings_Validation(t *testing.T) {
	env := newTestEnv(t)
	enabled := true

	tests := []struct {
		name string
		req  UpdateSettingsRequest
		want error
	}{
		{"bad timezone", UpdateSettingsRequest{Timezone: str("Mars/Base")}, nil},
		{"bad time", UpdateSettingsRequest{WorkStart: str("9am")}, nil},
		{"weekday out of range", UpdateSettingsRequest{WorkingDays: []int{1, 7}}, nil},
		{"duplicate weekdays", UpdateSettingsRequest{WorkingDays: []int{1, 1}}, nil},
		{"no weekdays", UpdateSettingsRequest{WorkingDays: []int{}}, nil},
		{"grace too long", UpdateSettingsRequest{GraceMinutes: num(500)}, nil},
		{"end before start", UpdateSettingsRequest{WorkEnd: str("08:00")}, ErrInvalidWorkingHours},
		{"close without time", UpdateSettingsRequest{AttendanceCloseEnabled: &enabled}, ErrCloseTimeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.UpdateSettings(context.Background(), admin, tt.req)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				assert.True(t, errors.HasCode(err, errors.ErrCodeValidation), err.Error())
			}
		})
	}

	stored, err := env.store.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "17:00", stored.WorkEnd)
	assert.Empty(t, env.scheduler.rescheduled)
	assert.Empty(t, env.store.AuditTrail())
}

func TestUpdateSettings_RescheduleFailureIsLogged(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.err = stderrors.New("boom")

	_, err := env.service.UpdateSettings(context.Background(), admin, UpdateSettingsRequest{WorkStart: str("10:00")})
	require.NoError(t, err)
}

func TestUpdateSettings_UnknownTenant(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.UpdateSettings(context.Background(),
		domain.AdminPrincipal{AdminID: "x", TenantID: "nope"}, UpdateSettingsRequest{})
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestActivateDeactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, err := env.service.Deactivate(ctx, admin)
	require.NoError(t, err)
	assert.False(t, tenant.Active)
	assert.Equal(t, []string{"tenant-1"}, env.scheduler.cancelled)

	// No-op when already inactive.
	_, err = env.service.Deactivate(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, env.scheduler.cancelled, 1)

	tenant, err = env.service.Activate(ctx, admin)
	require.NoError(t, err)
	assert.True(t, tenant.Active)
	require.Len(t, env.scheduler.rescheduled, 1)

	var actions []string
	for _, r := range env.store.AuditTrail() {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []string{domain.AuditTenantDeactivate, domain.AuditTenantActivate}, actions)
}

func TestListHolidays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, h := range []domain.Holiday{
		{TenantID: "tenant-1", Date: "2025-12-25", Description: "Christmas"},
		{TenantID: "tenant-1", Date: "2026-03-23", Description: "Pakistan Day"},
		{TenantID: "tenant-1", Date: "2026-01-01", Description: "New Year"},
		{TenantID: "tenant-2", Date: "2026-05-01", Description: "Labour Day"},
	} {
		require.NoError(t, env.store.UpsertHoliday(ctx, h))
	}

	holidays, err := env.service.ListHolidays(ctx, domain.EmployeePrincipal{EmployeeID: "e", TenantID: "tenant-1"}, 2026)
	require.NoError(t, err)
	require.Len(t, holidays, 2)
	assert.Equal(t, "2026-01-01", holidays[0].Date)
	assert.Equal(t, "2026-03-23", holidays[1].Date)

	_, err = env.service.ListHolidays(ctx, admin, 12)
	assert.ErrorIs(t, err, ErrInvalidYear)
}
