package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/api/responses"
	"github.com/rafflehq/rafflehq-backend/api/validators"
	"github.com/rafflehq/rafflehq-backend/internal/purchase"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

type paymentWebhookRequest struct {
	TransactionID uuid.UUID `json:"transaction_id" validate:"required"`
	Succeeded     bool      `json:"succeeded"`
	ProviderRef   string    `json:"provider_reference" validate:"required"`
}

type paymentWebhookResponse struct {
	TransactionID uuid.UUID  `json:"transaction_id"`
	Status        string     `json:"status"`
	TicketID      *uuid.UUID `json:"ticket_id,omitempty"`
	Numbers       []int      `json:"numbers,omitempty"`
}

// PaymentWebhook settles a pending gateway purchase from a provider
// callback. Redelivered events land on the dedup middleware or, past
// its TTL, on the idempotent settlement path, so the provider can
// retry freely.
func PaymentWebhook(svc purchase.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		var payload paymentWebhookRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithTransactionID(r.Context(), payload.TransactionID.String())
		result, err := svc.ConfirmPayment(ctx, purchase.PaymentEvent{
			TransactionID: payload.TransactionID,
			Succeeded:     payload.Succeeded,
			ProviderRef:   payload.ProviderRef,
		})
		if err != nil {
			// A declined payment is a normal outcome for the
			// provider; acknowledge it so they stop retrying.
			if pkgerrors.HasCode(err, pkgerrors.CodePaymentFailed) {
				responses.WriteSuccess(w, paymentWebhookResponse{
					TransactionID: payload.TransactionID,
					Status:        "failed",
				})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := paymentWebhookResponse{
			TransactionID: result.Transaction.ID,
			Status:        string(result.Transaction.Status),
		}
		if result.Ticket != nil {
			resp.TicketID = &result.Ticket.ID
			resp.Numbers = result.Numbers
		}
		responses.WriteSuccess(w, resp)
	}
}
