package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

func TestAttendance_UniquePerEmployeeDay(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := &domain.Attendance{ID: "a1", EmployeeID: "e1", TenantID: "t1", WorkDate: "2024-05-07"}
	require.NoError(t, s.CreateAttendance(ctx, a))
	assert.Equal(t, 1, a.Version)

	dup := &domain.Attendance{ID: "a2", EmployeeID: "e1", TenantID: "t1", WorkDate: "2024-05-07"}
	assert.ErrorIs(t, s.CreateAttendance(ctx, dup), domain.ErrDuplicateRecord)

	got, err := s.GetAttendanceForDay(ctx, "e1", "2024-05-07")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	_, err = s.GetAttendanceForDay(ctx, "e1", "2024-05-08")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestAttendance_OptimisticUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateAttendance(ctx, &domain.Attendance{ID: "a1", EmployeeID: "e1", WorkDate: "2024-05-07"}))

	first, _ := s.GetAttendance(ctx, "a1")
	second, _ := s.GetAttendance(ctx, "a1")

	first.Status = domain.StatusLate
	require.NoError(t, s.UpdateAttendance(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = domain.StatusPresent
	assert.ErrorIs(t, s.UpdateAttendance(ctx, second), domain.ErrStaleRecord)

	stored, _ := s.GetAttendance(ctx, "a1")
	assert.Equal(t, domain.StatusLate, stored.Status)
}

func TestAttendance_ReadsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateAttendance(ctx, &domain.Attendance{
		ID: "a1", EmployeeID: "e1", TenantID: "t1", WorkDate: "2024-05-07",
		CheckIn: &domain.Punch{Time: in, Location: &domain.GeoPoint{Latitude: 1, Longitude: 2}},
	}))

	got, _ := s.GetAttendance(ctx, "a1")
	got.CheckIn.Location.Latitude = 99

	again, _ := s.GetAttendance(ctx, "a1")
	assert.Equal(t, 1.0, again.CheckIn.Location.Latitude)
}

func TestListOpenAttendance(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC)
	out := in.Add(8 * time.Hour)

	require.NoError(t, s.CreateAttendance(ctx, &domain.Attendance{ID: "a1", EmployeeID: "e1", TenantID: "t1", WorkDate: "2024-05-07", CheckIn: &domain.Punch{Time: in}}))
	require.NoError(t, s.CreateAttendance(ctx, &domain.Attendance{ID: "a2", EmployeeID: "e2", TenantID: "t1", WorkDate: "2024-05-07", CheckIn: &domain.Punch{Time: in}, CheckOut: &domain.Punch{Time: out}}))
	require.NoError(t, s.CreateAttendance(ctx, &domain.Attendance{ID: "a3", EmployeeID: "e3", TenantID: "t2", WorkDate: "2024-05-07", CheckIn: &domain.Punch{Time: in}}))

	open, err := s.ListOpenAttendance(ctx, "t1", "2024-05-07")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a1", open[0].ID)

	all, err := s.ListAttendanceForDay(ctx, "t1", "2024-05-07")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCorrections_SinglePending(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateCorrection(ctx, &domain.Correction{ID: "c1", AttendanceID: "a1", TenantID: "t1", Status: domain.CorrectionPending}))
	assert.ErrorIs(t, s.CreateCorrection(ctx, &domain.Correction{ID: "c2", AttendanceID: "a1", Status: domain.CorrectionPending}), domain.ErrDuplicateRecord)
	// Resolved corrections do not count.
	require.NoError(t, s.CreateCorrection(ctx, &domain.Correction{ID: "c3", AttendanceID: "a1", Status: domain.CorrectionApproved}))

	pending, err := s.FindPendingCorrection(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "c1", pending.ID)

	pending.Status = domain.CorrectionRejected
	require.NoError(t, s.ResolveCorrection(ctx, pending))
	assert.ErrorIs(t, s.ResolveCorrection(ctx, pending), domain.ErrStaleRecord)

	_, err = s.FindPendingCorrection(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	list, err := s.ListPendingCorrections(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWithinTx_RollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.CreateAttendance(ctx, &domain.Attendance{ID: "a1", EmployeeID: "e1", WorkDate: "2024-05-07"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetAttendance(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	require.NoError(t, s.WithinTx(ctx, func(tx domain.Store) error {
		return tx.CreateAttendance(ctx, &domain.Attendance{ID: "a1", EmployeeID: "e1", WorkDate: "2024-05-07"})
	}))
	_, err = s.GetAttendance(ctx, "a1")
	assert.NoError(t, err)
}

func TestWithinTx_RollbackKeepsOutsideWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	entered := make(chan struct{})
	written := make(chan error, 1)
	err := s.WithinTx(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.CreateAttendance(ctx, &domain.Attendance{ID: "a1", EmployeeID: "e1", WorkDate: "2024-05-07"}))
		close(entered)
		go func() {
			written <- s.AppendAudit(ctx, &domain.AuditRecord{EntityID: "x"})
		}()
		return errors.New("boom")
	})
	require.Error(t, err)
	<-entered
	require.NoError(t, <-written)

	assert.Len(t, s.AuditTrail(), 1)
	_, err = s.GetAttendance(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestTenantsHolidaysEmployees(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTenant(domain.Tenant{ID: "t2", Active: true, WorkingDays: []int{1}})
	s.PutTenant(domain.Tenant{ID: "t1", Active: true})
	s.PutTenant(domain.Tenant{ID: "t3", Active: false})
	s.PutEmployee(domain.Employee{ID: "e1", TenantID: "t1", Active: true})
	s.PutEmployee(domain.Employee{ID: "e2", TenantID: "t1", Active: false})

	tenants, err := s.ListActiveTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "t1", tenants[0].ID)

	tenants[1].WorkingDays[0] = 5
	stored, _ := s.GetTenant(ctx, "t2")
	assert.Equal(t, []int{1}, stored.WorkingDays)

	assert.ErrorIs(t, s.UpdateTenant(ctx, &domain.Tenant{ID: "missing"}), domain.ErrRecordNotFound)

	emps, err := s.ListActiveEmployees(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, emps, 1)

	require.NoError(t, s.UpsertHoliday(ctx, domain.Holiday{TenantID: "t1", Date: "2024-12-25", Description: "Christmas"}))
	require.NoError(t, s.UpsertHoliday(ctx, domain.Holiday{TenantID: "t1", Date: "2024-01-01", Description: "New Year"}))
	ok, _ := s.IsHoliday(ctx, "t1", "2024-12-25")
	assert.True(t, ok)
	ok, _ = s.IsHoliday(ctx, "t2", "2024-12-25")
	assert.False(t, ok)

	hs, err := s.ListHolidays(ctx, "t1", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "2024-01-01", hs[0].Date)
}
