package security

import (
	"context"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
)

// ContextWithPrincipal adds the authenticated principal to the context
func ContextWithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFromContext retrieves the authenticated principal from context
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(domain.Principal)
	return p, ok
}
