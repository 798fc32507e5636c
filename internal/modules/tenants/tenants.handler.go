package tenants

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
	"github.com/waqasmani/attendance-scheduler/internal/shared/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GetSettings(c *gin.Context) {
	admin, err := middleware.GetAdmin(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	tenant, err := h.service.GetSettings(c.Request.Context(), admin)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, ToSettingsResponse(tenant))
}

// UpdateSettings applies a partial update to the caller's tenant.
func (h *Handler) UpdateSettings(c *gin.Context) {
	admin, err := middleware.GetAdmin(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body"))
		return
	}

	tenant, err := h.service.UpdateSettings(c.Request.Context(), admin, req)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, ToSettingsResponse(tenant))
}

func (h *Handler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	admin, err := middleware.GetAdmin(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	toggle := h.service.Deactivate
	if active {
		toggle = h.service.Activate
	}
	tenant, err := toggle(c.Request.Context(), admin)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, ToSettingsResponse(tenant))
}

// ListHolidays defaults to the current year of the server clock.
func (h *Handler) ListHolidays(c *gin.Context) {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	year := h.service.clock.Now().Year()
	if raw := c.Query("year"); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil {
			utils.Error(c, ErrInvalidYear)
			return
		}
	}

	holidays, err := h.service.ListHolidays(c.Request.Context(), principal, year)
	if err != nil {
		utils.Error(c, err)
		return
	}

	resp := HolidaysResponse{Year: year, Holidays: make([]HolidayResponse, 0, len(holidays))}
	for _, hd := range holidays {
		resp.Holidays = append(resp.Holidays, HolidayResponse{Date: hd.Date, Description: hd.Description})
	}
	utils.Success(c, http.StatusOK, resp)
}
