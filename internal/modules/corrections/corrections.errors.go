package corrections

import "github.com/waqasmani/attendance-scheduler/internal/shared/errors"

var (
	// Validation errors
	ErrInvalidRequestType = errors.New(errors.ErrCodeValidation, "Request type must be one of: check-in, check-out, both, forgot-checkout")
	ErrInvalidReason      = errors.New(errors.ErrCodeValidation, "Reason must be at least 10 characters")
	ErrInvalidNotes       = errors.New(errors.ErrCodeValidation, "Rejection notes must be at least 5 characters")
	ErrMissingCheckIn     = errors.New(errors.ErrCodeValidation, "A requested check-in time is required for this request type")
	ErrMissingCheckOut    = errors.New(errors.ErrCodeValidation, "A requested check-out time is required for this request type")
	ErrDifferentDay       = errors.New(errors.ErrCodeValidation, "Requested times must fall on the same day as the attendance entry")
	ErrCheckOutBeforeIn   = errors.New(errors.ErrCodeValidation, "Check-out must be after check-in")
	ErrAttendanceNotFound = errors.New(errors.ErrCodeNotFound, "Attendance entry not found")
	ErrCorrectionNotFound = errors.New(errors.ErrCodeNotFound, "Correction request not found")
	ErrTenantNotFound     = errors.New(errors.ErrCodeNotFound, "Tenant not found")
	ErrForbidden          = errors.New(errors.ErrCodeForbidden, "Correction belongs to another tenant")
	ErrDuplicatePending   = errors.New(errors.ErrCodeConflict, "A correction request is already pending for this attendance entry")
	ErrNotPending         = errors.New(errors.ErrInvalidStatus, "Correction request has already been reviewed")
	ErrConcurrentUpdate   = errors.New(errors.ErrCodeConflict, "Attendance entry was modified concurrently, please retry")
)

func wrapInternal(err error, message string) *errors.AppError {
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
