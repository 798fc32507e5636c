package store

import (
	"context"
	"database/sql"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

const correctionColumns = `id, attendance_id, employee_id, tenant_id, request_type,
	original_check_in, original_check_out, requested_check_in, requested_check_out,
	reason, status, reviewed_by, reviewed_at, review_notes, created_at, updated_at`

func scanCorrection(row rowScanner) (*domain.Correction, error) {
	var (
		c                              domain.Correction
		requestType, status            string
		origIn, origOut, reqIn, reqOut sql.NullTime
		reviewedBy, reviewNotes        sql.NullString
		reviewedAt                     sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.AttendanceID, &c.EmployeeID, &c.TenantID, &requestType,
		&origIn, &origOut, &reqIn, &reqOut,
		&c.Reason, &status, &reviewedBy, &reviewedAt, &reviewNotes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.RequestType = domain.CorrectionType(requestType)
	c.Status = domain.CorrectionStatus(status)
	c.OriginalCheckIn = timePtr(origIn)
	c.OriginalCheckOut = timePtr(origOut)
	c.RequestedCheckIn = timePtr(reqIn)
	c.RequestedCheckOut = timePtr(reqOut)
	c.ReviewedBy = reviewedBy.String
	c.ReviewedAt = timePtr(reviewedAt)
	c.ReviewNotes = reviewNotes.String
	return &c, nil
}

// CreateCorrection relies on the unique pending_key column to reject a
// second pending correction for the same entry.
func (s *Store) CreateCorrection(ctx context.Context, c *domain.Correction) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO corrections (id, attendance_id, employee_id, tenant_id, request_type,
		original_check_in, original_check_out, requested_check_in, requested_check_out,
		reason, status, reviewed_by, reviewed_at, review_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AttendanceID, c.EmployeeID, c.TenantID, string(c.RequestType),
		nullTime(c.OriginalCheckIn), nullTime(c.OriginalCheckOut), nullTime(c.RequestedCheckIn), nullTime(c.RequestedCheckOut),
		c.Reason, string(c.Status), nullString(c.ReviewedBy), nullTime(c.ReviewedAt), nullString(c.ReviewNotes),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return translate(err, "create correction")
}

func (s *Store) GetCorrection(ctx context.Context, id string) (*domain.Correction, error) {
	c, err := scanCorrection(s.db.QueryRowContext(ctx, `SELECT `+correctionColumns+` FROM corrections WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err, "get correction")
	}
	return c, nil
}

func (s *Store) FindPendingCorrection(ctx context.Context, attendanceID string) (*domain.Correction, error) {
	c, err := scanCorrection(s.db.QueryRowContext(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE pending_key = ?`, attendanceID))
	if err != nil {
		return nil, translate(err, "find pending correction")
	}
	return c, nil
}

func (s *Store) ResolveCorrection(ctx context.Context, c *domain.Correction) error {
	res, err := s.db.ExecContext(ctx, `UPDATE corrections SET status = ?, reviewed_by = ?, reviewed_at = ?,
		review_notes = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		string(c.Status), nullString(c.ReviewedBy), nullTime(c.ReviewedAt), nullString(c.ReviewNotes),
		c.UpdatedAt.UTC(), c.ID)
	if err != nil {
		return translate(err, "resolve correction")
	}
	return expectOne(res, domain.ErrStaleRecord)
}

func (s *Store) ListPendingCorrections(ctx context.Context, tenantID string) ([]domain.Correction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+correctionColumns+` FROM corrections
		WHERE tenant_id = ? AND status = 'pending' ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, translate(err, "list pending corrections")
	}
	defer rows.Close()

	var out []domain.Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, translate(err, "scan correction")
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
