package controllers

import (
	"net/http"

	"github.com/angelmondragon/maskball-tickets/api/middleware"
	"github.com/angelmondragon/maskball-tickets/api/responses"
	"github.com/angelmondragon/maskball-tickets/api/validators"
	"github.com/angelmondragon/maskball-tickets/internal/auth"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

// StaffLogin exchanges a role password for a staff token.
func StaffLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}
		var payload auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.Login(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// StaffLogout revokes the caller's token.
func StaffLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}
		if err := svc.Logout(r.Context(), middleware.ClaimsFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
