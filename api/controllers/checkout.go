package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/maskball-tickets/api/responses"
	"github.com/angelmondragon/maskball-tickets/api/validators"
	checkoutsvc "github.com/angelmondragon/maskball-tickets/internal/checkout"
	"github.com/angelmondragon/maskball-tickets/internal/checkout/helpers"
	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

const multipartOverhead = 1 << 20

type feesRequest struct {
	Items       []inventory.Item  `json:"items" validate:"required,min=1,dive"`
	PaymentRail enums.PaymentRail `json:"payment_rail" validate:"required,enum"`
}

type quoteResponse struct {
	PaymentRail enums.PaymentRail       `json:"payment_rail"`
	LineItems   []orders.LineItemDTO    `json:"line_items"`
	Fees        checkoutsvc.FeeBreakdown `json:"fees"`
}

// CheckoutFees previews the fee breakdown for a cart on a rail. Settlement uses the same math.
func CheckoutFees(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		var payload feesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Quote(r.Context(), payload.Items, payload.PaymentRail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := quoteResponse{PaymentRail: quote.Rail, Fees: quote.Fees, LineItems: make([]orders.LineItemDTO, 0, len(quote.LineItems))}
		for _, li := range quote.LineItems {
			resp.LineItems = append(resp.LineItems, orders.LineItemDTO{
				TicketTypeID:   li.TicketTypeID,
				TicketTypeName: li.TicketTypeName,
				Quantity:       li.Quantity,
				UnitPrice:      li.UnitPrice,
				Subtotal:       li.Subtotal(),
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

// CheckoutPayNow accepts a multipart PayNow submission: name, email, phone, items (JSON array)
// and the proof file under "proof".
func CheckoutPayNow(svc checkoutsvc.Service, proofMaxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, proofMaxBytes+multipartOverhead)
		if err := r.ParseMultipartForm(proofMaxBytes + multipartOverhead); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form").
				WithDetails(map[string]string{"proof": "Upload is too large"}))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		var items []inventory.Item
		if raw := strings.TrimSpace(r.FormValue("items")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "items must be a JSON array"))
				return
			}
		}
		if len(items) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
			return
		}

		req := checkoutsvc.PayNowRequest{
			Customer: helpers.CustomerDetails{
				Name:  r.FormValue("name"),
				Email: r.FormValue("email"),
				Phone: r.FormValue("phone"),
			},
			Items: items,
		}
		if file, header, err := r.FormFile("proof"); err == nil {
			data, readErr := io.ReadAll(io.LimitReader(file, proofMaxBytes+1))
			_ = file.Close()
			if readErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, readErr, "read payment proof"))
				return
			}
			req.Proof = &helpers.Proof{FileName: header.Filename, Data: data}
		}

		order, err := svc.SubmitPayNow(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orders.ToDTO(*order))
	}
}

type cardIntentRequest struct {
	helpers.CustomerDetails
	Items       []inventory.Item  `json:"items" validate:"required,min=1,dive"`
	PaymentRail enums.PaymentRail `json:"payment_rail" validate:"required,enum"`
}

// CheckoutCardIntent holds stock and opens a payment intent for an online rail.
func CheckoutCardIntent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		var payload cardIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.StartCardPayment(r.Context(), checkoutsvc.CardRequest{
			Customer: payload.CustomerDetails,
			Items:    payload.Items,
			Rail:     payload.PaymentRail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

type cardConfirmRequest struct {
	ProviderPaymentID string `json:"provider_payment_id" validate:"required"`
}

// CheckoutCardConfirm is the client-side completion call after the payment sheet closes. It
// asks the provider for the intent status; the webhook settles the same intent idempotently.
func CheckoutCardConfirm(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		var payload cardConfirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ConfirmCardPayment(r.Context(), strings.TrimSpace(payload.ProviderPaymentID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ToDTO(*order))
	}
}
