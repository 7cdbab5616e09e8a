package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/api/responses"
	"github.com/rafflehq/rafflehq-backend/api/validators"
	"github.com/rafflehq/rafflehq-backend/internal/ledger"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/pagination"
)

type topupRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,min=1"`
	Note        string `json:"note"`
}

type adjustmentRequest struct {
	AmountCents int64      `json:"amount_cents" validate:"required,min=1"`
	Operation   string     `json:"operation" validate:"required,oneof=add subtract"`
	Note        string     `json:"note"`
	ActorID     *uuid.UUID `json:"actor_id"`
}

type walletResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	BalanceCents int64     `json:"balance_cents"`
}

type transactionPageResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

type transactionResponse struct {
	ID          uuid.UUID  `json:"id"`
	RaffleID    *uuid.UUID `json:"raffle_id,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Operation   string     `json:"operation"`
}

// WalletTopup credits a user's balance.
func WalletTopup(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload topupRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithUserID(r.Context(), userID.String())
		txn, err := svc.Apply(ctx, ledger.ApplyInput{
			UserID:      userID,
			AmountCents: payload.AmountCents,
			Type:        enums.TransactionTypeDeposit,
			Operation:   enums.BalanceOperationAdd,
			Metadata:    ledger.AdjustmentMetadata{Note: validators.SanitizeString(payload.Note, 280)},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransactionResponse(*txn))
	}
}

// WalletAdjust applies an operator balance adjustment. Debits clamp at
// zero rather than rejecting, so an operator can always zero out a
// wallet.
func WalletAdjust(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := ledger.ApplyInput{
			UserID:      userID,
			AmountCents: payload.AmountCents,
			Type:        enums.TransactionTypeSystem,
			Operation:   enums.BalanceOperation(payload.Operation),
			Policy:      ledger.DebitClamp,
			Metadata:    ledger.AdjustmentMetadata{Note: validators.SanitizeString(payload.Note, 280), ActorID: payload.ActorID},
		}

		ctx := logg.WithUserID(r.Context(), userID.String())
		txn, err := svc.Apply(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransactionResponse(*txn))
	}
}

// GetWallet returns the cached balance for a user.
func GetWallet(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.GetUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletResponse{UserID: user.ID, BalanceCents: user.BalanceCents})
	}
}

// ListWalletTransactions returns one page of a user's ledger entries,
// newest first. The cursor in the response fetches the next page.
func ListWalletTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txns, next, err := svc.ListByUserPage(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := transactionPageResponse{
			Transactions: make([]transactionResponse, 0, len(txns)),
			NextCursor:   next,
		}
		for _, txn := range txns {
			out.Transactions = append(out.Transactions, toTransactionResponse(txn))
		}
		responses.WriteSuccess(w, out)
	}
}

// RecomputeWallet rebuilds the cached balance from completed ledger
// entries. Operator escape hatch for drift investigations.
func RecomputeWallet(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithUserID(r.Context(), userID.String())
		balance, err := svc.Recompute(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletResponse{UserID: userID, BalanceCents: balance})
	}
}

func toTransactionResponse(txn models.Transaction) transactionResponse {
	return transactionResponse{
		ID:          txn.ID,
		RaffleID:    txn.RaffleID,
		AmountCents: txn.AmountCents,
		Type:        string(txn.Type),
		Status:      string(txn.Status),
		Operation:   string(txn.Operation),
	}
}

func userIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "userID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id")
	}
	return id, nil
}
