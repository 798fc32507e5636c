package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

const tenantColumns = `id, name, timezone, working_days, work_start, work_end, grace_minutes,
	attendance_close_enabled, attendance_close_time, admin_email, active, created_at, updated_at`

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var (
		t          domain.Tenant
		days       []byte
		closeTime  sql.NullString
		adminEmail sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Timezone, &days, &t.WorkStart, &t.WorkEnd, &t.GraceMinutes,
		&t.AttendanceCloseEnabled, &closeTime, &adminEmail, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(days, &t.WorkingDays); err != nil {
		return nil, fmt.Errorf("decode working_days of tenant %s: %w", t.ID, err)
	}
	t.AttendanceCloseTime = closeTime.String
	t.AdminEmail = adminEmail.String
	return &t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err != nil {
		return nil, translate(err, "get tenant")
	}
	return t, nil
}

func (s *Store) ListActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, translate(err, "list active tenants")
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, translate(err, "scan tenant")
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTenant(ctx context.Context, t *domain.Tenant) error {
	days, err := json.Marshal(t.WorkingDays)
	if err != nil {
		return fmt.Errorf("encode working_days: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET name = ?, timezone = ?, working_days = ?, work_start = ?,
		work_end = ?, grace_minutes = ?, attendance_close_enabled = ?, attendance_close_time = ?, admin_email = ?,
		active = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Timezone, string(days), t.WorkStart, t.WorkEnd, t.GraceMinutes, t.AttendanceCloseEnabled,
		nullString(t.AttendanceCloseTime), nullString(t.AdminEmail), t.Active, t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		return translate(err, "update tenant")
	}
	return expectOne(res, domain.ErrRecordNotFound)
}

// Holidays

func (s *Store) IsHoliday(ctx context.Context, tenantID, date string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM holidays WHERE tenant_id = ? AND holiday_date = ?`, tenantID, date).Scan(&n)
	if err != nil {
		return false, translate(err, "holiday lookup")
	}
	return n > 0, nil
}

func (s *Store) ListHolidays(ctx context.Context, tenantID, from, to string) ([]domain.Holiday, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id, holiday_date, description FROM holidays
		WHERE tenant_id = ? AND holiday_date BETWEEN ? AND ? ORDER BY holiday_date`, tenantID, from, to)
	if err != nil {
		return nil, translate(err, "list holidays")
	}
	defer rows.Close()

	var out []domain.Holiday
	for rows.Next() {
		var (
			h    domain.Holiday
			date time.Time
		)
		if err := rows.Scan(&h.TenantID, &date, &h.Description); err != nil {
			return nil, translate(err, "scan holiday")
		}
		h.Date = date.Format(dateLayout)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) UpsertHoliday(ctx context.Context, h domain.Holiday) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO holidays (tenant_id, holiday_date, description) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE description = VALUES(description)`, h.TenantID, h.Date, h.Description)
	return translate(err, "upsert holiday")
}

// Employees

func (s *Store) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	var e domain.Employee
	err := s.db.QueryRowContext(ctx, `SELECT id, tenant_id, email, active FROM employees WHERE id = ?`, id).
		Scan(&e.ID, &e.TenantID, &e.Email, &e.Active)
	if err != nil {
		return nil, translate(err, "get employee")
	}
	return &e, nil
}

func (s *Store) ListActiveEmployees(ctx context.Context, tenantID string) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, email, active FROM employees WHERE tenant_id = ? AND active = 1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, translate(err, "list employees")
	}
	defer rows.Close()

	var out []domain.Employee
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Email, &e.Active); err != nil {
			return nil, translate(err, "scan employee")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
