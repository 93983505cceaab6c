package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/maskball-tickets/api/responses"
	"github.com/angelmondragon/maskball-tickets/api/validators"
	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

type ticketCatalog interface {
	List(ctx context.Context) ([]models.TicketType, error)
	CheckCartAvailability(ctx context.Context, items []inventory.Item) (inventory.CartCheck, error)
}

// TicketTypes lists every tier with live availability.
func TicketTypes(inv ticketCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory unavailable"))
			return
		}
		rows, err := inv.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]inventory.TicketTypeDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, inventory.ToDTO(row))
		}
		responses.WriteSuccess(w, out)
	}
}

type cartRequest struct {
	Items []inventory.Item `json:"items" validate:"required,min=1,dive"`
}

// TicketAvailability checks a cart against free stock without reserving anything.
func TicketAvailability(inv ticketCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory unavailable"))
			return
		}
		var payload cartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		check, err := inv.CheckCartAvailability(r.Context(), payload.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, check)
	}
}
