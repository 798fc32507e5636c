package domain

import "time"

type CorrectionType string

const (
	CorrectionCheckIn        CorrectionType = "check-in"
	CorrectionCheckOut       CorrectionType = "check-out"
	CorrectionBoth           CorrectionType = "both"
	CorrectionForgotCheckout CorrectionType = "forgot-checkout"
)

func (t CorrectionType) Valid() bool {
	switch t {
	case CorrectionCheckIn, CorrectionCheckOut, CorrectionBoth, CorrectionForgotCheckout:
		return true
	}
	return false
}

func (t CorrectionType) TouchesCheckIn() bool {
	return t == CorrectionCheckIn || t == CorrectionBoth
}

func (t CorrectionType) TouchesCheckOut() bool {
	return t == CorrectionCheckOut || t == CorrectionBoth || t == CorrectionForgotCheckout
}

type CorrectionStatus string

const (
	CorrectionPending  CorrectionStatus = "pending"
	CorrectionApproved CorrectionStatus = "approved"
	CorrectionRejected CorrectionStatus = "rejected"
)

// SystemReviewer marks corrections resolved by a background job.
const SystemReviewer = "system"

// Correction is a proposed amendment to a ledger entry. It is resolved once
// and never changes afterwards.
type Correction struct {
	ID                string           `json:"id"`
	AttendanceID      string           `json:"attendance_id"`
	EmployeeID        string           `json:"employee_id"`
	TenantID          string           `json:"tenant_id"`
	RequestType       CorrectionType   `json:"request_type"`
	OriginalCheckIn   *time.Time       `json:"original_check_in,omitempty"`
	OriginalCheckOut  *time.Time       `json:"original_check_out,omitempty"`
	RequestedCheckIn  *time.Time       `json:"requested_check_in,omitempty"`
	RequestedCheckOut *time.Time       `json:"requested_check_out,omitempty"`
	Reason            string           `json:"reason"`
	Status            CorrectionStatus `json:"status"`
	ReviewedBy        string           `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNotes       string           `json:"review_notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (c *Correction) Clone() *Correction {
	cp := *c
	return &cp
}
