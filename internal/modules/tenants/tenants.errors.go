package tenants

import "github.com/waqasmani/attendance-scheduler/internal/shared/errors"

var (
	ErrTenantNotFound      = errors.New(errors.ErrCodeNotFound, "Tenant not found")
	ErrInvalidWorkingHours = errors.New(errors.ErrCodeValidation, "Working hours must end after they start")
	ErrCloseTimeRequired   = errors.New(errors.ErrCodeValidation, "Attendance close time is required when closing is enabled")
	ErrInvalidYear         = errors.New(errors.ErrCodeBadRequest, "Year must be between 1970 and 9999")
)
