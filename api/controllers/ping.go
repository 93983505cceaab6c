package controllers

import (
	"net/http"

	"github.com/angelmondragon/maskball-tickets/api/middleware"
	"github.com/angelmondragon/maskball-tickets/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// StaffPing echoes the caller's token identity.
func StaffPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope": "staff",
			"staff": middleware.StaffFromContext(r.Context()),
			"role":  middleware.RoleFromContext(r.Context()),
		})
	}
}
