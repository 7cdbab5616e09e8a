package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/api/responses"
	"github.com/rafflehq/rafflehq-backend/api/validators"
	"github.com/rafflehq/rafflehq-backend/internal/purchase"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

type purchaseRequest struct {
	UserID   uuid.UUID `json:"user_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
}

type purchaseResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	TicketID      uuid.UUID `json:"ticket_id"`
	Numbers       []int     `json:"numbers"`
	TotalCents    int64     `json:"total_cents"`
}

type gatewayIntentResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reference     string    `json:"reference"`
	TotalCents    int64     `json:"total_cents"`
}

// PurchaseTickets buys tickets against the wallet balance.
func PurchaseTickets(svc purchase.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		raffleID, err := raffleIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload purchaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithRaffleID(r.Context(), raffleID.String())
		ctx = logg.WithUserID(ctx, payload.UserID.String())
		result, err := svc.Purchase(ctx, purchase.Input{
			RaffleID: raffleID,
			UserID:   payload.UserID,
			Quantity: payload.Quantity,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, purchaseResponse{
			TransactionID: result.Transaction.ID,
			TicketID:      result.Ticket.ID,
			Numbers:       result.Numbers,
			TotalCents:    result.TotalCents,
		})
	}
}

// BeginGatewayPurchase opens a purchase funded through the external
// payment provider. Tickets are only allocated once the provider's
// confirmation lands on the webhook.
func BeginGatewayPurchase(svc purchase.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		raffleID, err := raffleIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload purchaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithRaffleID(r.Context(), raffleID.String())
		intent, err := svc.BeginGatewayPurchase(ctx, purchase.Input{
			RaffleID: raffleID,
			UserID:   payload.UserID,
			Quantity: payload.Quantity,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, gatewayIntentResponse{
			TransactionID: intent.TransactionID,
			Reference:     intent.Reference,
			TotalCents:    intent.TotalCents,
		})
	}
}

func raffleIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "raffleID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid raffle id")
	}
	return id, nil
}
