package middleware

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
	"github.com/waqasmani/attendance-scheduler/internal/shared/utils"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// ErrorHandlingMiddleware renders errors attached with c.Error when the
// handler did not write a response itself.
func ErrorHandlingMiddleware(logger *observability.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := errors.AsAppError(err)
		if !ok {
			code, msg := errors.ErrCodeBadRequest, "Request processing error"
			if c.Writer.Status() >= http.StatusInternalServerError {
				code, msg = errors.ErrCodeInternal, "Internal server error"
			}
			appErr = errors.Wrap(err, code, msg)
		}

		if metrics != nil {
			metrics.RecordError(appErr.ErrorType, appErr.Code, c.Request.Method, c.FullPath())
		}

		fields := []zap.Field{
			zap.String("route", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Int("status_code", c.Writer.Status()),
			zap.String("error_code", string(appErr.Code)),
		}
		if appErr.Err != nil {
			fields = append(fields, zap.NamedError("cause", appErr.Err))
		}
		if appErr.ErrorType == errors.ErrorTypeServer {
			logger.Error(c.Request.Context(), "Request failed", fields...)
		} else {
			logger.Warn(c.Request.Context(), "Request rejected", fields...)
		}

		if !c.Writer.Written() {
			utils.Error(c, appErr)
		}
	}
}

// TracingMiddleware opens one span per request named after the matched route.
// The trace id falls back to the request id when no tracer provider is set.
func TracingMiddleware(tracer *observability.Tracer, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route)
		defer span.End()

		traceID := c.GetString(string(observability.RequestIDKey))
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		ctx = context.WithValue(ctx, observability.TraceIDKey, traceID)
		c.Set(string(observability.TraceIDKey), traceID)
		c.Request = c.Request.WithContext(ctx)

		logger.Debug(ctx, "Trace started", zap.String("route", route))
		c.Next()
	}
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), observability.RequestIDKey, requestID))
		c.Set(string(observability.RequestIDKey), requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()
	}
}

// TimeoutMiddleware bounds the request context. Store calls made with it are
// cancelled once the deadline passes.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// NewCORSMiddleware allows the configured origins. A "*" entry opens every
// origin and drops credentials, which browsers refuse to combine with it.
func NewCORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")
	corsCfg := cors.Config{
		AllowAllOrigins:  wildcard,
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     append(slices.Clone(cfg.AllowedHeaders), requestIDHeader),
		ExposeHeaders:    []string{requestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           24 * time.Hour,
	}
	if !wildcard {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(corsCfg)
}

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Cache-Control", "no-store"},
}

// SecurityHeadersMiddleware sets headers for a JSON-only API.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}

// LoggerMiddleware writes one access line per request: info for success,
// warn for 4xx, error for 5xx.
func LoggerMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		// The request context carries the principal, so actor ids come along.
		log, msg := logger.Info, "HTTP request completed"
		if status >= http.StatusInternalServerError {
			log, msg = logger.Error, "HTTP request failed"
		} else if status >= http.StatusBadRequest {
			log, msg = logger.Warn, "HTTP request rejected"
		}
		log(c.Request.Context(), msg, fields...)
	}
}

func MetricsMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method

		metrics.HttpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HttpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if c.Request.ContentLength > 0 {
			metrics.HttpRequestSize.WithLabelValues(method, route).Observe(float64(c.Request.ContentLength))
		}
		if size := c.Writer.Size(); size > 0 {
			metrics.HttpResponseSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}

// PanicRecoveryMiddleware turns a handler panic into the standard error envelope.
func PanicRecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(c.Request.Context(), "Panic recovered",
					zap.Any("panic", rec),
					zap.String("route", c.FullPath()),
					zap.String("method", c.Request.Method),
					zap.Stack("stack"),
				)
				utils.Error(c, errors.New(errors.ErrCodeInternal, "Internal server error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// BodyLimitMiddleware caps request bodies; punches and corrections are small.
func BodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
