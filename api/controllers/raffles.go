package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/api/responses"
	"github.com/rafflehq/rafflehq-backend/api/validators"
	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

type raffleStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active completed cancelled"`
}

type raffleResponse struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	PriceCents       int64     `json:"price_cents"`
	TotalTickets     int       `json:"total_tickets"`
	TicketsSold      int       `json:"tickets_sold"`
	TicketsRemaining int       `json:"tickets_remaining"`
	IsMultiPrize     bool      `json:"is_multi_prize"`
}

// GetRaffle returns a raffle with its live capacity counters.
func GetRaffle(svc raffles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "raffle service unavailable"))
			return
		}
		raffleID, err := raffleIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raffle, err := svc.GetByID(r.Context(), raffleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRaffleResponse(raffle))
	}
}

// TransitionRaffle moves a raffle along its status lifecycle. Illegal
// transitions come back as CONFLICT.
func TransitionRaffle(svc raffles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "raffle service unavailable"))
			return
		}
		raffleID, err := raffleIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload raffleStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithRaffleID(r.Context(), raffleID.String())
		raffle, err := svc.Transition(ctx, raffleID, enums.RaffleStatus(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRaffleResponse(raffle))
	}
}

func toRaffleResponse(raffle *models.Raffle) raffleResponse {
	return raffleResponse{
		ID:               raffle.ID,
		Title:            raffle.Title,
		Status:           string(raffle.Status),
		PriceCents:       raffle.PriceCents,
		TotalTickets:     raffle.TotalTickets,
		TicketsSold:      raffle.TicketsSold,
		TicketsRemaining: raffle.TicketsRemaining(),
		IsMultiPrize:     raffle.IsMultiPrize,
	}
}
