package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
)

type Response struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Version string         `json:"version"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Type    string `json:"type"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Version: "v1",
	})
}

func Error(c *gin.Context, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrCodeInternal, "An unexpected error occurred")
	}
	// Sentinels are shared; never decorate them in place.
	appErr = appErr.Clone()

	traceID := c.GetString(string(observability.TraceIDKey))
	requestID := c.GetString(string(observability.RequestIDKey))

	if appErr.Details == nil && (traceID != "" || requestID != "") {
		details := make(map[string]string)
		if traceID != "" {
			details["trace_id"] = traceID
		}
		if requestID != "" {
			details["request_id"] = requestID
		}
		appErr.Details = details
	}

	statusCode := StatusCode(appErr.Code)
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorResponse{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
			Type:    string(appErr.ErrorType),
		},
		Version: "v1",
	})
}

var statusByCode = map[errors.ErrorCode]int{
	errors.ErrCodeNotFound:           http.StatusNotFound,
	errors.ErrCodeBadRequest:         http.StatusBadRequest,
	errors.ErrCodeValidation:         http.StatusBadRequest,
	errors.ErrCodeUnauthorized:       http.StatusUnauthorized,
	errors.ErrCodeInvalidToken:       http.StatusUnauthorized,
	errors.ErrCodeExpiredToken:       http.StatusUnauthorized,
	errors.ErrCodeForbidden:          http.StatusForbidden,
	errors.ErrCodeConflict:           http.StatusConflict,
	errors.ErrInvalidStatus:          http.StatusConflict,
	errors.ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	errors.ErrCodeTimeout:            http.StatusGatewayTimeout,
}

// StatusCode maps an error code onto the HTTP status returned to clients.
// Unknown codes are 500.
func StatusCode(code errors.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
