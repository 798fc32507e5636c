package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
	StatusHalfDay AttendanceStatus = "half-day"
	StatusOnLeave AttendanceStatus = "on-leave"
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Punch is one side of a ledger entry.
type Punch struct {
	Time     time.Time `json:"time"`
	Location *GeoPoint `json:"location,omitempty"`
	Note     string    `json:"note,omitempty"`
}

func (p *Punch) Clone() *Punch {
	if p == nil {
		return nil
	}
	c := *p
	if p.Location != nil {
		loc := *p.Location
		c.Location = &loc
	}
	return &c
}

// Attendance is the ledger entry for one employee on one tenant-local day.
// (EmployeeID, WorkDate) is unique.
type Attendance struct {
	ID              string           `json:"id"`
	EmployeeID      string           `json:"employee_id"`
	TenantID        string           `json:"tenant_id"`
	WorkDate        string           `json:"work_date"`
	CheckIn         *Punch           `json:"check_in,omitempty"`
	CheckOut        *Punch           `json:"check_out,omitempty"`
	Status          AttendanceStatus `json:"status"`
	IsLate          bool             `json:"is_late"`
	LateByMinutes   int              `json:"late_by_minutes"`
	OvertimeMinutes int              `json:"overtime_minutes"`
	WorkingHours    decimal.Decimal  `json:"working_hours"`
	// Version is bumped by every successful update and guards against lost writes.
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Attendance) Clone() *Attendance {
	c := *a
	c.CheckIn = a.CheckIn.Clone()
	c.CheckOut = a.CheckOut.Clone()
	return &c
}

// RecomputeWorkingHours sets WorkingHours from the two punches, rounded to 2 decimals.
func (a *Attendance) RecomputeWorkingHours() {
	if a.CheckIn == nil || a.CheckOut == nil {
		a.WorkingHours = decimal.Zero
		return
	}
	elapsed := a.CheckOut.Time.Sub(a.CheckIn.Time)
	a.WorkingHours = decimal.NewFromFloat(elapsed.Hours()).Round(2)
}

// IsOpen reports whether the entry has a check-in but no check-out.
func (a *Attendance) IsOpen() bool {
	return a.CheckIn != nil && a.CheckOut == nil
}
