package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/api/responses"
	"github.com/rafflehq/rafflehq-backend/internal/draw"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

type winnerResponse struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	TicketNumber int       `json:"ticket_number"`
	Place        *int      `json:"place,omitempty"`
	PrizeTitle   string    `json:"prize_title,omitempty"`
}

type drawResponse struct {
	RaffleID uuid.UUID        `json:"raffle_id"`
	Winners  []winnerResponse `json:"winners"`
}

// DrawRaffle runs the prize draw. Drawing an already-completed raffle
// returns the recorded winners instead of an error, so operators can
// safely re-trigger.
func DrawRaffle(svc draw.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "draw service unavailable"))
			return
		}
		raffleID, err := raffleIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithRaffleID(r.Context(), raffleID.String())
		winners, err := svc.DrawWinners(ctx, raffleID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeRaffleCompleted) {
				recorded, listErr := svc.ListWinners(ctx, raffleID)
				if listErr != nil {
					responses.WriteError(ctx, logg, w, listErr)
					return
				}
				responses.WriteSuccess(w, toDrawResponse(raffleID, recorded))
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toDrawResponse(raffleID, winners))
	}
}

// ListRaffleWinners returns the winners recorded for a raffle.
func ListRaffleWinners(svc draw.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "draw service unavailable"))
			return
		}
		raffleID, err := raffleIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		winners, err := svc.ListWinners(r.Context(), raffleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDrawResponse(raffleID, winners))
	}
}

func toDrawResponse(raffleID uuid.UUID, winners []models.Winner) drawResponse {
	out := drawResponse{RaffleID: raffleID, Winners: make([]winnerResponse, 0, len(winners))}
	for _, win := range winners {
		out.Winners = append(out.Winners, winnerResponse{
			ID:           win.ID,
			UserID:       win.UserID,
			TicketNumber: win.TicketNumber,
			Place:        win.Place,
			PrizeTitle:   win.PrizeTitle,
		})
	}
	return out
}
