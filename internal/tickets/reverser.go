package tickets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
)

// Reverser undoes the allocation attached to a transaction: the ticket
// is cancelled, its numbers are freed, and the raffle gets its capacity
// back. Used when a settlement is abandoned after allocation already
// committed.
type Reverser struct {
	tickets Repository
	raffles raffles.Repository
}

// NewReverser wires a reverser.
func NewReverser(ticketRepo Repository, raffleRepo raffles.Repository) (*Reverser, error) {
	if ticketRepo == nil || raffleRepo == nil {
		return nil, fmt.Errorf("reverser requires ticket and raffle repositories")
	}
	return &Reverser{tickets: ticketRepo, raffles: raffleRepo}, nil
}

// ReverseByTransaction cancels every active ticket created under the
// transaction and returns how many it touched. Tickets already used or
// cancelled are left alone.
func (r *Reverser) ReverseByTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (int, error) {
	if transactionID == uuid.Nil {
		return 0, fmt.Errorf("transaction id required")
	}
	ticketRepo := r.tickets.WithTx(tx)
	raffleRepo := r.raffles.WithTx(tx)

	owned, err := ticketRepo.ListByTransaction(ctx, transactionID)
	if err != nil {
		return 0, err
	}
	reversed := 0
	for _, ticket := range owned {
		if ticket.Status != enums.TicketStatusActive {
			continue
		}
		if err := ticketRepo.Cancel(ctx, ticket.ID); err != nil {
			return reversed, err
		}
		if err := raffleRepo.ReleaseCapacity(ctx, ticket.RaffleID, ticket.Quantity); err != nil {
			return reversed, err
		}
		reversed++
	}
	return reversed, nil
}
