package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

const attendanceColumns = `id, employee_id, tenant_id, work_date,
	check_in_at, check_in_lat, check_in_lng, check_in_note,
	check_out_at, check_out_lat, check_out_lng, check_out_note,
	status, is_late, late_by_minutes, overtime_minutes, working_hours, version, created_at, updated_at`

type punchColumns struct {
	at   sql.NullTime
	lat  sql.NullFloat64
	lng  sql.NullFloat64
	note sql.NullString
}

func (p *punchColumns) punch() *domain.Punch {
	if !p.at.Valid {
		return nil
	}
	out := &domain.Punch{Time: p.at.Time.UTC(), Note: p.note.String}
	if p.lat.Valid && p.lng.Valid {
		out.Location = &domain.GeoPoint{Latitude: p.lat.Float64, Longitude: p.lng.Float64}
	}
	return out
}

func punchArgs(p *domain.Punch) []any {
	if p == nil {
		return []any{nil, nil, nil, nil}
	}
	var lat, lng sql.NullFloat64
	if p.Location != nil {
		lat = sql.NullFloat64{Float64: p.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: p.Location.Longitude, Valid: true}
	}
	return []any{p.Time.UTC(), lat, lng, nullString(p.Note)}
}

func scanAttendance(row rowScanner) (*domain.Attendance, error) {
	var (
		a        domain.Attendance
		workDate time.Time
		in, out  punchColumns
		status   string
	)
	if err := row.Scan(&a.ID, &a.EmployeeID, &a.TenantID, &workDate,
		&in.at, &in.lat, &in.lng, &in.note,
		&out.at, &out.lat, &out.lng, &out.note,
		&status, &a.IsLate, &a.LateByMinutes, &a.OvertimeMinutes, &a.WorkingHours, &a.Version,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.WorkDate = workDate.Format(dateLayout)
	a.CheckIn = in.punch()
	a.CheckOut = out.punch()
	a.Status = domain.AttendanceStatus(status)
	return &a, nil
}

func (s *Store) GetAttendance(ctx context.Context, id string) (*domain.Attendance, error) {
	a, err := scanAttendance(s.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err, "get attendance")
	}
	return a, nil
}

func (s *Store) GetAttendanceForDay(ctx context.Context, employeeID, workDate string) (*domain.Attendance, error) {
	a, err := scanAttendance(s.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = ? AND work_date = ?`, employeeID, workDate))
	if err != nil {
		return nil, translate(err, "get attendance for day")
	}
	return a, nil
}

func (s *Store) CreateAttendance(ctx context.Context, a *domain.Attendance) error {
	args := []any{a.ID, a.EmployeeID, a.TenantID, a.WorkDate}
	args = append(args, punchArgs(a.CheckIn)...)
	args = append(args, punchArgs(a.CheckOut)...)
	args = append(args, string(a.Status), a.IsLate, a.LateByMinutes, a.OvertimeMinutes, a.WorkingHours,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())

	_, err := s.db.ExecContext(ctx, `INSERT INTO attendance (id, employee_id, tenant_id, work_date,
		check_in_at, check_in_lat, check_in_lng, check_in_note,
		check_out_at, check_out_lat, check_out_lng, check_out_note,
		status, is_late, late_by_minutes, overtime_minutes, working_hours, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`, args...)
	if err != nil {
		return translate(err, "create attendance")
	}
	a.Version = 1
	return nil
}

func (s *Store) UpdateAttendance(ctx context.Context, a *domain.Attendance) error {
	args := punchArgs(a.CheckIn)
	args = append(args, punchArgs(a.CheckOut)...)
	args = append(args, string(a.Status), a.IsLate, a.LateByMinutes, a.OvertimeMinutes, a.WorkingHours,
		a.UpdatedAt.UTC(), a.ID, a.Version)

	res, err := s.db.ExecContext(ctx, `UPDATE attendance SET
		check_in_at = ?, check_in_lat = ?, check_in_lng = ?, check_in_note = ?,
		check_out_at = ?, check_out_lat = ?, check_out_lng = ?, check_out_note = ?,
		status = ?, is_late = ?, late_by_minutes = ?, overtime_minutes = ?, working_hours = ?,
		version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`, args...)
	if err != nil {
		return translate(err, "update attendance")
	}
	if err := expectOne(res, domain.ErrStaleRecord); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (s *Store) ListAttendanceForDay(ctx context.Context, tenantID, workDate string) ([]domain.Attendance, error) {
	return s.listAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance
		WHERE tenant_id = ? AND work_date = ? ORDER BY employee_id`, tenantID, workDate)
}

func (s *Store) ListOpenAttendance(ctx context.Context, tenantID, workDate string) ([]domain.Attendance, error) {
	return s.listAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance
		WHERE tenant_id = ? AND work_date = ? AND check_in_at IS NOT NULL AND check_out_at IS NULL
		ORDER BY employee_id`, tenantID, workDate)
}

func (s *Store) listAttendance(ctx context.Context, query string, args ...any) ([]domain.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list attendance")
	}
	defer rows.Close()

	var out []domain.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, translate(err, "scan attendance")
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
