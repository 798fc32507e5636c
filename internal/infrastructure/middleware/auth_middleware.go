package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/security"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
	"github.com/waqasmani/attendance-scheduler/internal/shared/utils"
)

type AuthMiddleware struct {
	jwtService *security.JWTService
	metrics    *observability.Metrics
	audit      *observability.AuditLogger
}

func NewAuthMiddleware(jwtService *security.JWTService, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		metrics:    metrics,
	}
}

// WithAudit records rejected requests as security events.
func (m *AuthMiddleware) WithAudit(audit *observability.AuditLogger) *AuthMiddleware {
	m.audit = audit
	return m
}

func (m *AuthMiddleware) fail(c *gin.Context, reason string, err error) {
	if m.metrics != nil {
		m.metrics.AuthenticationFailures.WithLabelValues(reason).Inc()
	}
	if m.audit != nil {
		event := observability.SecurityEvent{
			Type:      "authentication",
			Action:    reason,
			Resource:  c.Request.Method + " " + c.FullPath(),
			IPAddress: c.ClientIP(),
		}
		if p, perr := GetPrincipal(c); perr == nil {
			event.Type = "authorization"
			event.UserID = p.ActorID()
			event.TenantID = p.Tenant()
		}
		m.audit.LogSecurityEvent(c.Request.Context(), event)
	}
	utils.Error(c, err)
	c.Abort()
}

// Authenticate resolves the bearer token into a domain.Principal stored on
// both the gin context and the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.fail(c, "missing_header", errors.ErrUnauthorized)
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			m.fail(c, "malformed_header", errors.Wrap(errors.ErrUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format"))
			return
		}
		tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
		if tokenString == "" {
			m.fail(c, "missing_token", errors.Wrap(errors.ErrUnauthorized, errors.ErrCodeUnauthorized, "Missing token"))
			return
		}

		claims, err := m.jwtService.ValidateAccessToken(c.Request.Context(), tokenString)
		if errors.HasCode(err, errors.ErrCodeExpiredToken) {
			m.fail(c, "expired_token", err)
			return
		}
		if err != nil {
			m.fail(c, "invalid_token", err)
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			m.fail(c, "invalid_claims", err)
			return
		}

		ctx := security.ContextWithPrincipal(c.Request.Context(), principal)
		ctx = observability.ContextWithActor(ctx, principal.ActorID(), principal.Tenant())
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(security.PrincipalKey), principal)

		c.Next()
	}
}

// RequireAdmin lets only AdminPrincipal callers through.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := GetAdmin(c); err != nil {
			m.fail(c, "forbidden", err)
			return
		}
		c.Next()
	}
}

// RequireEmployee lets only EmployeePrincipal callers through.
func (m *AuthMiddleware) RequireEmployee() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := GetEmployee(c); err != nil {
			m.fail(c, "forbidden", err)
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (domain.Principal, error) {
	value, exists := c.Get(string(security.PrincipalKey))
	if !exists {
		return nil, errors.ErrUnauthorized
	}
	p, ok := value.(domain.Principal)
	if !ok {
		return nil, errors.Wrap(errors.ErrUnauthorized, errors.ErrCodeInternal, "Invalid principal type in context")
	}
	return p, nil
}

func GetAdmin(c *gin.Context) (domain.AdminPrincipal, error) {
	p, err := GetPrincipal(c)
	if err != nil {
		return domain.AdminPrincipal{}, err
	}
	admin, ok := p.(domain.AdminPrincipal)
	if !ok {
		return domain.AdminPrincipal{}, errors.New(errors.ErrCodeForbidden, "Admin access required")
	}
	return admin, nil
}

func GetEmployee(c *gin.Context) (domain.EmployeePrincipal, error) {
	p, err := GetPrincipal(c)
	if err != nil {
		return domain.EmployeePrincipal{}, err
	}
	emp, ok := p.(domain.EmployeePrincipal)
	if !ok {
		return domain.EmployeePrincipal{}, errors.New(errors.ErrCodeForbidden, "Employee access required")
	}
	return emp, nil
}
