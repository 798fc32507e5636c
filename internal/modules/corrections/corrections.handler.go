package corrections

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
	"github.com/waqasmani/attendance-scheduler/internal/modules/attendance"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
	"github.com/waqasmani/attendance-scheduler/internal/shared/utils"
	"github.com/waqasmani/attendance-scheduler/internal/shared/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.Error(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body"))
		return false
	}
	if err := h.service.validator.Validate(req); err != nil {
		validationErrors := validator.TranslateValidationErrors(err)
		utils.Error(c, errors.WithDetails(errors.ErrCodeValidation, "Validation failed", validationErrors))
		return false
	}
	return true
}

// Submit files a correction for one of the caller's entries.
func (h *Handler) Submit(c *gin.Context) {
	employee, err := middleware.GetEmployee(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	var req SubmitRequest
	if !h.bind(c, &req) {
		return
	}

	correction, err := h.service.Submit(c.Request.Context(), employee, req)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusCreated, ToCorrectionResponse(correction))
}

func (h *Handler) ListPending(c *gin.Context) {
	admin, err := middleware.GetAdmin(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	list, err := h.service.ListPending(c.Request.Context(), admin)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, toCorrectionResponses(list))
}

func (h *Handler) Get(c *gin.Context) {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	correction, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, ToCorrectionResponse(correction))
}

// Approve applies the correction to its attendance entry.
func (h *Handler) Approve(c *gin.Context) {
	admin, err := middleware.GetAdmin(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	var req ReviewRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}

	correction, entry, err := h.service.Approve(c.Request.Context(), admin, c.Param("id"), req.Notes)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"correction": ToCorrectionResponse(correction),
		"attendance": attendance.ToAttendanceResponse(entry),
	})
}

func (h *Handler) Reject(c *gin.Context) {
	admin, err := middleware.GetAdmin(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	var req ReviewRequest
	if !h.bind(c, &req) {
		return
	}

	correction, err := h.service.Reject(c.Request.Context(), admin, c.Param("id"), req.Notes)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, ToCorrectionResponse(correction))
}
