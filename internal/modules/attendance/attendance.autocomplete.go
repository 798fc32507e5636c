package attendance

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
)

const (
	autoCompleteNote   = "Closed automatically at end of day"
	autoCompleteReason = "Check-out was not recorded and the day was closed automatically"
)

var (
	errAlreadyClosed = stderrors.New("attendance entry already closed")
	errDayNotOver    = stderrors.New("attendance day has not ended")
)

// AutoComplete closes an entry still open at the end of its day. The
// synthesized check-out is tenant-local 23:59:59 of the entry's date and
// reuses the check-in location; no overtime is credited. An approved
// forgot-checkout correction reviewed by the system is stored alongside.
// It reports false when the entry was already closed or its day has not
// ended yet; a check-out is never stamped in the future.
func (s *Service) AutoComplete(ctx context.Context, tenant *domain.Tenant, attendanceID string) (*domain.Attendance, bool, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.AutoComplete")
	defer span.End()

	loc, err := tenant.Location()
	if err != nil {
		return nil, false, fmt.Errorf("tenant %s timezone: %w", tenant.ID, err)
	}

	entry, err := s.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		if stderrors.Is(err, domain.ErrRecordNotFound) {
			return nil, false, ErrAttendanceNotFound
		}
		return nil, false, err
	}

	unlock := s.locks.Lock(entry.EmployeeID)

	now := s.clock.Now().UTC()
	var before *domain.Attendance
	var correction *domain.Correction

	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		current, err := tx.GetAttendance(ctx, attendanceID)
		if err != nil {
			return err
		}
		entry = current
		if !current.IsOpen() {
			return errAlreadyClosed
		}

		day, err := calendar.ParseDateKey(current.WorkDate, loc)
		if err != nil {
			return err
		}
		checkOut := calendar.EndOfDay(day, loc).UTC()
		if checkOut.After(now) {
			return errDayNotOver
		}

		before = current.Clone()
		current.CheckOut = &domain.Punch{
			Time:     checkOut,
			Location: current.CheckIn.Clone().Location,
			Note:     autoCompleteNote,
		}
		current.RecomputeWorkingHours()
		current.OvertimeMinutes = 0
		current.UpdatedAt = now
		if err := tx.UpdateAttendance(ctx, current); err != nil {
			return err
		}

		checkIn := before.CheckIn.Time
		correction = &domain.Correction{
			ID:                uuid.NewString(),
			AttendanceID:      current.ID,
			EmployeeID:        current.EmployeeID,
			TenantID:          current.TenantID,
			RequestType:       domain.CorrectionForgotCheckout,
			OriginalCheckIn:   &checkIn,
			RequestedCheckOut: &checkOut,
			Reason:            autoCompleteReason,
			Status:            domain.CorrectionApproved,
			ReviewedBy:        domain.SystemReviewer,
			ReviewedAt:        &now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return tx.CreateCorrection(ctx, correction)
	})
	unlock()
	if stderrors.Is(err, errAlreadyClosed) || stderrors.Is(err, errDayNotOver) {
		return entry, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("auto-complete attendance %s: %w", attendanceID, err)
	}

	s.observeCheckOut(entry, "auto")
	s.recordAudit(ctx, &domain.AuditRecord{
		TenantID:   entry.TenantID,
		EntityType: domain.EntityAttendance,
		EntityID:   entry.ID,
		Action:     domain.AuditAutoComplete,
		Before:     before,
		After:      entry.Clone(),
		ActorID:    domain.SystemReviewer,
		ActorKind:  domain.ActorSystem,
		Metadata:   map[string]any{"correction_id": correction.ID},
	})
	s.notify(ctx, domain.Notification{
		RecipientID:   entry.EmployeeID,
		RecipientKind: domain.RecipientEmployee,
		Type:          domain.NotifyAutoCheckout,
		Title:         "Your day was closed automatically",
		Message: fmt.Sprintf("You did not check out on %s, so your check-out was set to %s. "+
			"If that is wrong, please submit a correction request.",
			entry.WorkDate, entry.CheckOut.Time.In(loc).Format("15:04")),
		Data: map[string]any{
			"attendance_id": entry.ID,
			"correction_id": correction.ID,
			"work_date":     entry.WorkDate,
		},
		CreatedAt: now,
	})

	return entry, true, nil
}
