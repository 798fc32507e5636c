package attendance

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
	"github.com/waqasmani/attendance-scheduler/internal/shared/utils"
	"github.com/waqasmani/attendance-scheduler/internal/shared/validator"
)

// Handler handles HTTP requests for attendance
type Handler struct {
	service *Service
}

// NewHandler creates a new attendance handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) bindPunch(c *gin.Context) (PunchRequest, bool) {
	var req PunchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body"))
			return req, false
		}
	}
	if err := h.service.validator.Validate(req); err != nil {
		validationErrors := validator.TranslateValidationErrors(err)
		utils.Error(c, errors.WithDetails(errors.ErrCodeValidation, "Validation failed", validationErrors))
		return req, false
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		utils.Error(c, ValidationError("latitude", "Latitude and longitude must be sent together"))
		return req, false
	}
	return req, true
}

// CheckIn records the caller's check-in for today.
func (h *Handler) CheckIn(c *gin.Context) {
	employee, err := middleware.GetEmployee(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	req, ok := h.bindPunch(c)
	if !ok {
		return
	}

	entry, err := h.service.CheckIn(c.Request.Context(), employee, req)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusCreated, ToAttendanceResponse(entry))
}

// CheckOut records the caller's check-out for today.
func (h *Handler) CheckOut(c *gin.Context) {
	employee, err := middleware.GetEmployee(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	req, ok := h.bindPunch(c)
	if !ok {
		return
	}

	entry, err := h.service.CheckOut(c.Request.Context(), employee, req)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, ToAttendanceResponse(entry))
}

// Today returns the caller's entry for today; attendance is null when absent.
func (h *Handler) Today(c *gin.Context) {
	employee, err := middleware.GetEmployee(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	workDate, entry, err := h.service.GetToday(c.Request.Context(), employee)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, TodayResponse{WorkDate: workDate, Attendance: ToAttendanceResponse(entry)})
}
