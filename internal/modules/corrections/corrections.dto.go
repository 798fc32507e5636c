package corrections

import (
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

// SubmitRequest proposes new check-in and/or check-out times for an entry.
type SubmitRequest struct {
	AttendanceID      string     `json:"attendance_id" validate:"required,max=64"`
	RequestType       string     `json:"request_type"`
	RequestedCheckIn  *time.Time `json:"requested_check_in,omitempty"`
	RequestedCheckOut *time.Time `json:"requested_check_out,omitempty"`
	Reason            string     `json:"reason" validate:"max=1000"`
}

type ReviewRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type CorrectionResponse struct {
	ID                string     `json:"id"`
	AttendanceID      string     `json:"attendance_id"`
	EmployeeID        string     `json:"employee_id"`
	RequestType       string     `json:"request_type"`
	OriginalCheckIn   *time.Time `json:"original_check_in,omitempty"`
	OriginalCheckOut  *time.Time `json:"original_check_out,omitempty"`
	RequestedCheckIn  *time.Time `json:"requested_check_in,omitempty"`
	RequestedCheckOut *time.Time `json:"requested_check_out,omitempty"`
	Reason            string     `json:"reason"`
	Status            string     `json:"status"`
	ReviewedBy        string     `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes       string     `json:"review_notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func ToCorrectionResponse(c *domain.Correction) *CorrectionResponse {
	return &CorrectionResponse{
		ID:                c.ID,
		AttendanceID:      c.AttendanceID,
		EmployeeID:        c.EmployeeID,
		RequestType:       string(c.RequestType),
		OriginalCheckIn:   c.OriginalCheckIn,
		OriginalCheckOut:  c.OriginalCheckOut,
		RequestedCheckIn:  c.RequestedCheckIn,
		RequestedCheckOut: c.RequestedCheckOut,
		Reason:            c.Reason,
		Status:            string(c.Status),
		ReviewedBy:        c.ReviewedBy,
		ReviewedAt:        c.ReviewedAt,
		ReviewNotes:       c.ReviewNotes,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func toCorrectionResponses(list []domain.Correction) []*CorrectionResponse {
	out := make([]*CorrectionResponse, 0, len(list))
	for i := range list {
		out = append(out, ToCorrectionResponse(&list[i]))
	}
	return out
}
