package attendance

import (
	"fmt"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
)

// Lateness applies the grace rule to a check-in at checkIn. A check-in up to
// GraceMinutes after the tenant's start is on time; past that, lateBy is the
// full number of minutes since the start, not the minutes beyond grace.
func Lateness(tenant *domain.Tenant, checkIn time.Time) (isLate bool, lateBy int, err error) {
	loc, err := tenant.Location()
	if err != nil {
		return false, 0, fmt.Errorf("tenant %s timezone: %w", tenant.ID, err)
	}
	expected, err := calendar.Combine(checkIn, tenant.WorkStart, loc)
	if err != nil {
		return false, 0, err
	}
	minutesLate := calendar.WholeMinutes(checkIn.Sub(expected))
	if minutesLate <= tenant.GraceMinutes {
		return false, 0, nil
	}
	return true, minutesLate, nil
}

// Overtime is the number of whole minutes checkOut falls after the tenant's
// end of work on workDate.
func Overtime(tenant *domain.Tenant, workDate string, checkOut time.Time) (int, error) {
	loc, err := tenant.Location()
	if err != nil {
		return 0, fmt.Errorf("tenant %s timezone: %w", tenant.ID, err)
	}
	day, err := calendar.ParseDateKey(workDate, loc)
	if err != nil {
		return 0, err
	}
	end, err := calendar.Combine(day, tenant.WorkEnd, loc)
	if err != nil {
		return 0, err
	}
	return calendar.WholeMinutes(checkOut.Sub(end)), nil
}

// ApplyLateness re-derives the lateness fields of a from its check-in.
func ApplyLateness(a *domain.Attendance, tenant *domain.Tenant) error {
	if a.CheckIn == nil {
		a.IsLate, a.LateByMinutes = false, 0
		return nil
	}
	isLate, lateBy, err := Lateness(tenant, a.CheckIn.Time)
	if err != nil {
		return err
	}
	a.IsLate, a.LateByMinutes = isLate, lateBy
	switch a.Status {
	case "", domain.StatusPresent, domain.StatusLate:
		if isLate {
			a.Status = domain.StatusLate
		} else {
			a.Status = domain.StatusPresent
		}
	}
	return nil
}

// ApplyCheckOut recomputes working hours and overtime after the check-out changed.
func ApplyCheckOut(a *domain.Attendance, tenant *domain.Tenant) error {
	a.RecomputeWorkingHours()
	if a.CheckOut == nil {
		a.OvertimeMinutes = 0
		return nil
	}
	overtime, err := Overtime(tenant, a.WorkDate, a.CheckOut.Time)
	if err != nil {
		return err
	}
	a.OvertimeMinutes = overtime
	return nil
}
