package tenants

import (
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

// UpdateSettingsRequest is a partial update; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	Name                   *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Timezone               *string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	WorkingDays            []int   `json:"working_days,omitempty" validate:"omitempty,min=1,max=7,unique,dive,min=0,max=6"`
	WorkStart              *string `json:"work_start,omitempty" validate:"omitempty,hhmm"`
	WorkEnd                *string `json:"work_end,omitempty" validate:"omitempty,hhmm"`
	GraceMinutes           *int    `json:"grace_minutes,omitempty" validate:"omitempty,min=0,max=240"`
	AttendanceCloseEnabled *bool   `json:"attendance_close_enabled,omitempty"`
	AttendanceCloseTime    *string `json:"attendance_close_time,omitempty" validate:"omitempty,hhmm"`
	AdminEmail             *string `json:"admin_email,omitempty" validate:"omitempty,email"`
}

type SettingsResponse struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Timezone               string    `json:"timezone"`
	WorkingDays            []int     `json:"working_days"`
	WorkStart              string    `json:"work_start"`
	WorkEnd                string    `json:"work_end"`
	GraceMinutes           int       `json:"grace_minutes"`
	AttendanceCloseEnabled bool      `json:"attendance_close_enabled"`
	AttendanceCloseTime    string    `json:"attendance_close_time,omitempty"`
	AdminEmail             string    `json:"admin_email,omitempty"`
	Active                 bool      `json:"active"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func ToSettingsResponse(t *domain.Tenant) *SettingsResponse {
	return &SettingsResponse{
		ID:                     t.ID,
		Name:                   t.Name,
		Timezone:               t.Timezone,
		WorkingDays:            t.WorkingDays,
		WorkStart:              t.WorkStart,
		WorkEnd:                t.WorkEnd,
		GraceMinutes:           t.GraceMinutes,
		AttendanceCloseEnabled: t.AttendanceCloseEnabled,
		AttendanceCloseTime:    t.AttendanceCloseTime,
		AdminEmail:             t.AdminEmail,
		Active:                 t.Active,
		UpdatedAt:              t.UpdatedAt,
	}
}

type HolidayResponse struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

type HolidaysResponse struct {
	Year     int               `json:"year"`
	Holidays []HolidayResponse `json:"holidays"`
}
