package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/api/responses"
	"github.com/stallside/stallside-backend/api/validators"
	checkoutsvc "github.com/stallside/stallside-backend/internal/checkout"
	"github.com/stallside/stallside-backend/internal/verification"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
	"github.com/stallside/stallside-backend/pkg/logger"
)

type checkoutLineRequest struct {
	ListingID uuid.UUID `json:"listingId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type checkoutRequest struct {
	BuyerID           uuid.UUID             `json:"buyerId" validate:"required"`
	CustomerEmail     string                `json:"customerEmail" validate:"omitempty,email"`
	FulfillmentMethod string                `json:"fulfillmentMethod" validate:"required"`
	Notes             string                `json:"notes" validate:"omitempty,max=500"`
	ShippingAddress   string                `json:"shippingAddress" validate:"omitempty,max=200"`
	Lines             []checkoutLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (p checkoutRequest) toInput() (checkoutsvc.CheckoutInput, error) {
	method, err := enums.ParseFulfillmentMethod(p.FulfillmentMethod)
	if err != nil {
		return checkoutsvc.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fulfillment method")
	}
	lines := make([]verification.CartLineRequest, len(p.Lines))
	for i, line := range p.Lines {
		lines[i] = verification.CartLineRequest{
			ListingID: line.ListingID,
			Quantity:  line.Quantity,
		}
	}
	return checkoutsvc.CheckoutInput{
		BuyerID:           p.BuyerID,
		CustomerEmail:     p.CustomerEmail,
		FulfillmentMethod: method,
		Notes:             p.Notes,
		ShippingAddress:   p.ShippingAddress,
		Lines:             lines,
	}, nil
}

// Checkout verifies the submitted cart and opens a hosted payment session.
// Nothing is persisted here; the order exists once the webhook confirms
// payment.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckoutStandard(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutEscrow verifies a single-seller cart and authorizes a manual-capture
// hold whose funds are released by the settlement worker.
func CheckoutEscrow(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckoutEscrow(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
