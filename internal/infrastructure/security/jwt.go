package security

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
)

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

type JWTService struct {
	accessSecret []byte
	accessExpiry time.Duration
	issuer       string
	audience     string
	now          func() time.Time
}

// Claims identify a principal: the subject is an admin or employee id scoped to TenantID.
type Claims struct {
	SubjectID string `json:"sub_id"`
	TenantID  string `json:"tenant_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Principal maps the role claim onto the matching principal variant.
func (c *Claims) Principal() (domain.Principal, error) {
	if c.SubjectID == "" || c.TenantID == "" {
		return nil, errors.New(errors.ErrCodeInvalidToken, "Token is missing subject or tenant")
	}
	switch c.Role {
	case RoleAdmin:
		return domain.AdminPrincipal{AdminID: c.SubjectID, TenantID: c.TenantID}, nil
	case RoleEmployee:
		return domain.EmployeePrincipal{EmployeeID: c.SubjectID, TenantID: c.TenantID}, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidToken, "Unknown role")
}

const (
	defaultIssuer   = "attendance-scheduler"
	defaultAudience = "attendance-scheduler-clients"
	clockSkew       = 30 * time.Second
)

func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{
		accessSecret: []byte(cfg.AccessSecret),
		accessExpiry: cfg.AccessExpiry,
		issuer:       cmp.Or(cfg.Issuer, defaultIssuer),
		audience:     cmp.Or(cfg.Audience, defaultAudience),
		now:          time.Now,
	}
}

// GenerateAccessToken issues an HS256 token for p.
func (j *JWTService) GenerateAccessToken(ctx context.Context, p domain.Principal) (string, error) {
	role := RoleEmployee
	if _, ok := p.(domain.AdminPrincipal); ok {
		role = RoleAdmin
	}

	now := j.now()
	claims := &Claims{
		SubjectID: p.ActorID(),
		TenantID:  p.Tenant(),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Audience:  jwt.ClaimStrings{j.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessExpiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken checks signature, lifetime, issuer and audience. Every
// failure is an INVALID_TOKEN error except expiry, which is EXPIRED_TOKEN.
func (j *JWTService) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return j.accessSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(j.now),
	)
	switch {
	case err == nil:
		return claims, nil
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.New(errors.ErrCodeExpiredToken, "Token expired")
	case stderrors.Is(err, jwt.ErrTokenInvalidAudience):
		return nil, errors.New(errors.ErrCodeInvalidToken, "Invalid token audience")
	case stderrors.Is(err, jwt.ErrTokenInvalidIssuer):
		return nil, errors.New(errors.ErrCodeInvalidToken, "Invalid token issuer")
	default:
		return nil, errors.New(errors.ErrCodeInvalidToken, "Authentication failed")
	}
}

func (j *JWTService) GetAccessExpiry() time.Duration {
	return j.accessExpiry
}
