package controllers

import (
	"net/http"

	"github.com/angelmondragon/maskball-tickets/api/middleware"
	"github.com/angelmondragon/maskball-tickets/api/responses"
	"github.com/angelmondragon/maskball-tickets/api/validators"
	"github.com/angelmondragon/maskball-tickets/internal/door"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

type doorValidateRequest struct {
	OrderNumber string `json:"order_number" validate:"required,max=32"`
	TicketID    string `json:"ticket_id" validate:"required,max=64"`
}

type doorQRRequest struct {
	Payload string `json:"payload" validate:"required,max=256"`
}

// DoorValidate admits a ticket by order number and ticket id. A refused ticket is still a 200;
// the verdict lives in the body.
func DoorValidate(svc door.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "door service unavailable"))
			return
		}
		var payload doorValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Validate(r.Context(), payload.OrderNumber, payload.TicketID, middleware.StaffFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// DoorValidateQR admits a ticket from the raw "orderNumber|ticketId" QR payload.
func DoorValidateQR(svc door.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "door service unavailable"))
			return
		}
		var payload doorQRRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.ValidateQR(r.Context(), payload.Payload, middleware.StaffFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
