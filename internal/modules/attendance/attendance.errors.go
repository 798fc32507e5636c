package attendance

import "github.com/waqasmani/attendance-scheduler/internal/shared/errors"

// Domain-specific attendance errors
var (
	// Check-in/out state errors
	ErrAlreadyCheckedIn  = errors.New(errors.ErrCodeConflict, "Already checked in today")
	ErrNotCheckedIn      = errors.New(errors.ErrCodeConflict, "No check-in found for today")
	ErrAlreadyCheckedOut = errors.New(errors.ErrCodeConflict, "Already checked out today")
	ErrAttendanceClosed  = errors.New(errors.ErrCodeConflict, "Attendance is closed for today")
	ErrConcurrentUpdate  = errors.New(errors.ErrCodeConflict, "Attendance entry was modified concurrently, please retry")

	// Lookup errors
	ErrTenantNotFound     = errors.New(errors.ErrCodeNotFound, "Tenant not found")
	ErrEmployeeNotFound   = errors.New(errors.ErrCodeNotFound, "Employee not found")
	ErrAttendanceNotFound = errors.New(errors.ErrCodeNotFound, "Attendance entry not found")

	// Authorization errors
	ErrTenantInactive   = errors.New(errors.ErrCodeForbidden, "Tenant is not active")
	ErrEmployeeInactive = errors.New(errors.ErrCodeForbidden, "Employee is not active")
)

// WrapAttendanceError wraps a generic error with context
func WrapAttendanceError(err error, message string) *errors.AppError {
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}

// ValidationError creates a validation error with details
func ValidationError(field, message string) *errors.AppError {
	return errors.WithDetails(
		errors.ErrCodeValidation,
		"Validation failed",
		map[string]string{field: message},
	)
}
