package attendance

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

// PunchRequest is the body of a check-in or check-out.
type PunchRequest struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Note      string   `json:"note,omitempty" validate:"max=500"`
}

func (r PunchRequest) location() *domain.GeoPoint {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &domain.GeoPoint{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

type PunchResponse struct {
	Time      time.Time `json:"time"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// AttendanceResponse represents a ledger entry
type AttendanceResponse struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employee_id"`
	WorkDate        string          `json:"work_date"`
	CheckIn         *PunchResponse  `json:"check_in,omitempty"`
	CheckOut        *PunchResponse  `json:"check_out,omitempty"`
	Status          string          `json:"status"`
	IsLate          bool            `json:"is_late"`
	LateByMinutes   int             `json:"late_by_minutes"`
	OvertimeMinutes int             `json:"overtime_minutes"`
	WorkingHours    decimal.Decimal `json:"working_hours"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TodayResponse wraps the possibly missing entry for today.
type TodayResponse struct {
	WorkDate   string              `json:"work_date"`
	Attendance *AttendanceResponse `json:"attendance"`
}

func toPunchResponse(p *domain.Punch) *PunchResponse {
	if p == nil {
		return nil
	}
	resp := &PunchResponse{Time: p.Time, Note: p.Note}
	if p.Location != nil {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		resp.Latitude = &lat
		resp.Longitude = &lng
	}
	return resp
}

func ToAttendanceResponse(a *domain.Attendance) *AttendanceResponse {
	if a == nil {
		return nil
	}
	return &AttendanceResponse{
		ID:              a.ID,
		EmployeeID:      a.EmployeeID,
		WorkDate:        a.WorkDate,
		CheckIn:         toPunchResponse(a.CheckIn),
		CheckOut:        toPunchResponse(a.CheckOut),
		Status:          string(a.Status),
		IsLate:          a.IsLate,
		LateByMinutes:   a.LateByMinutes,
		OvertimeMinutes: a.OvertimeMinutes,
		WorkingHours:    a.WorkingHours,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}
