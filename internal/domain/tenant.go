package domain

import (
	"slices"
	"time"
)

// Tenant is an organization with its own working calendar.
type Tenant struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Timezone               string    `json:"timezone"`
	WorkingDays            []int     `json:"working_days"`
	WorkStart              string    `json:"work_start"`
	WorkEnd                string    `json:"work_end"`
	GraceMinutes           int       `json:"grace_minutes"`
	AttendanceCloseEnabled bool      `json:"attendance_close_enabled"`
	AttendanceCloseTime    string    `json:"attendance_close_time,omitempty"`
	AdminEmail             string    `json:"admin_email,omitempty"`
	Active                 bool      `json:"active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Location resolves the tenant's IANA timezone.
func (t *Tenant) Location() (*time.Location, error) {
	return time.LoadLocation(t.Timezone)
}

func (t *Tenant) WorksOn(day time.Weekday) bool {
	return slices.Contains(t.WorkingDays, int(day))
}

func (t *Tenant) Clone() *Tenant {
	c := *t
	c.WorkingDays = slices.Clone(t.WorkingDays)
	return &c
}

// Holiday is unique per tenant and date. Date is "YYYY-MM-DD" in the tenant's calendar.
type Holiday struct {
	TenantID    string `json:"tenant_id" yaml:"-"`
	Date        string `json:"date" yaml:"date"`
	Description string `json:"description" yaml:"description"`
}

type Employee struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email,omitempty"`
	Active   bool   `json:"active"`
}
