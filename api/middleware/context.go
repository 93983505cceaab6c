package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/maskball-tickets/pkg/auth"
)

type contextKey string

const (
	ctxStaff  contextKey = "staff"
	ctxRole   contextKey = "staff_role"
	ctxClaims contextKey = "staff_claims"
)

func StaffFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxStaff).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified staff token claims, or nil on public routes.
func ClaimsFromContext(ctx context.Context) *pkgAuth.StaffClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxClaims).(*pkgAuth.StaffClaims); ok {
		return v
	}
	return nil
}

// WithClaims seeds the context the way Auth does. Used by tests and internal callers.
func WithClaims(ctx context.Context, claims *pkgAuth.StaffClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if claims == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, ctxClaims, claims)
	ctx = context.WithValue(ctx, ctxStaff, claims.Staff)
	return context.WithValue(ctx, ctxRole, string(claims.Role))
}
