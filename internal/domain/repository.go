package domain

import (
	"context"
	"errors"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	// ErrStaleRecord is returned when a conditional update matched no row.
	ErrStaleRecord = errors.New("stale record")
)

type TenantRepository interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListActiveTenants(ctx context.Context) ([]Tenant, error)
	UpdateTenant(ctx context.Context, t *Tenant) error
}

type HolidayRepository interface {
	IsHoliday(ctx context.Context, tenantID, date string) (bool, error)
	// ListHolidays returns holidays with from <= date <= to, ordered by date.
	ListHolidays(ctx context.Context, tenantID, from, to string) ([]Holiday, error)
	UpsertHoliday(ctx context.Context, h Holiday) error
}

type EmployeeRepository interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListActiveEmployees(ctx context.Context, tenantID string) ([]Employee, error)
}

type AttendanceRepository interface {
	GetAttendance(ctx context.Context, id string) (*Attendance, error)
	GetAttendanceForDay(ctx context.Context, employeeID, workDate string) (*Attendance, error)
	// CreateAttendance fails with ErrDuplicateRecord when the employee already has an entry for the day.
	CreateAttendance(ctx context.Context, a *Attendance) error
	// UpdateAttendance writes a only if the stored version equals a.Version,
	// then bumps a.Version. Otherwise it returns ErrStaleRecord.
	UpdateAttendance(ctx context.Context, a *Attendance) error
	ListAttendanceForDay(ctx context.Context, tenantID, workDate string) ([]Attendance, error)
	// ListOpenAttendance returns entries for the day with a check-in and no check-out.
	ListOpenAttendance(ctx context.Context, tenantID, workDate string) ([]Attendance, error)
}

type CorrectionRepository interface {
	// CreateCorrection fails with ErrDuplicateRecord when c is pending and
	// another pending correction exists for the same attendance entry.
	CreateCorrection(ctx context.Context, c *Correction) error
	GetCorrection(ctx context.Context, id string) (*Correction, error)
	FindPendingCorrection(ctx context.Context, attendanceID string) (*Correction, error)
	// ResolveCorrection persists the review of a correction that is still
	// pending in the store, or returns ErrStaleRecord.
	ResolveCorrection(ctx context.Context, c *Correction) error
	ListPendingCorrections(ctx context.Context, tenantID string) ([]Correction, error)
}

type AuditRepository interface {
	AppendAudit(ctx context.Context, r *AuditRecord) error
}

// Store is the record store used by the services.
type Store interface {
	TenantRepository
	HolidayRepository
	EmployeeRepository
	AttendanceRepository
	CorrectionRepository
	AuditRepository

	// WithinTx runs fn against a transactional view of the store. A non-nil
	// error from fn rolls back everything fn wrote.
	WithinTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}
