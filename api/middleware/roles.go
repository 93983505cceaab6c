package middleware

import (
	"net/http"

	"github.com/angelmondragon/maskball-tickets/api/responses"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

// RequireRole admits tokens carrying role. Admin tokens pass every role check, so the door
// routes stay usable from the admin console.
func RequireRole(role enums.StaffRole, logg *logger.Logger) func(http.Handler) http.Handler {
	denied := pkgerrors.Newf(pkgerrors.CodeForbidden, "%s role required", role)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims.Allows(role) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if logg != nil && claims != nil {
				ctx = logg.WithFields(ctx, map[string]any{"required_role": string(role), "path": r.URL.Path})
				logg.Warn(ctx, "auth.role_denied")
			}
			responses.WriteError(ctx, logg, w, denied)
		})
	}
}
