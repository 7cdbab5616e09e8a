package tickets

import (
	"context"
	"fmt"
	"math/rand"

	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
)

// rejectionAttemptsPerPick bounds random probing before the allocator
// falls back to an explicit scan of the free numbers. Near-full raffles
// hit the fallback; sparse ones never do.
const rejectionAttemptsPerPick = 10

// Allocator picks distinct ticket numbers inside a caller-owned
// transaction. It reserves capacity first, so two purchases can never
// both pass the gate for the same remaining slot; the unique index on
// number rows backstops the pick itself.
type Allocator struct {
	raffles raffles.Repository
	tickets Repository
	rng     func(n int) int
}

// NewAllocator wires an allocator. rng may be nil, in which case the
// shared math/rand source is used; tests inject a seeded one.
func NewAllocator(raffleRepo raffles.Repository, ticketRepo Repository, rng func(n int) int) (*Allocator, error) {
	if raffleRepo == nil || ticketRepo == nil {
		return nil, fmt.Errorf("allocator requires raffle and ticket repositories")
	}
	if rng == nil {
		rng = rand.Intn
	}
	return &Allocator{raffles: raffleRepo, tickets: ticketRepo, rng: rng}, nil
}

// Allocate reserves quantity slots on the raffle and returns that many
// distinct numbers in [1, TotalTickets] not claimed by any live ticket.
// The returned numbers are not persisted; the caller inserts them with
// the ticket in the same transaction.
func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, raffle *models.Raffle, quantity int) ([]int, error) {
	if raffle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if err := a.raffles.WithTx(tx).ReserveCapacity(ctx, raffle.ID, quantity); err != nil {
		return nil, err
	}
	used, err := a.tickets.WithTx(tx).UsedNumbers(ctx, raffle.ID)
	if err != nil {
		return nil, err
	}
	return a.sample(raffle.TotalTickets, used, quantity)
}

func (a *Allocator) sample(total int, used map[int]struct{}, quantity int) ([]int, error) {
	free := total - len(used)
	if quantity > free {
		// Capacity was reserved but the number rows disagree; a
		// concurrent writer holds slots we cannot see yet.
		return nil, pkgerrors.New(pkgerrors.CodeAllocationConflict, "free numbers exhausted")
	}

	picked := make(map[int]struct{}, quantity)
	out := make([]int, 0, quantity)
	limit := quantity * rejectionAttemptsPerPick
	for attempts := 0; len(out) < quantity && attempts < limit; attempts++ {
		n := a.rng(total) + 1
		if _, taken := used[n]; taken {
			continue
		}
		if _, dup := picked[n]; dup {
			continue
		}
		picked[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == quantity {
		return out, nil
	}

	// Dense raffle: enumerate what is left and shuffle.
	rest := make([]int, 0, free-len(out))
	for n := 1; n <= total; n++ {
		if _, taken := used[n]; taken {
			continue
		}
		if _, dup := picked[n]; dup {
			continue
		}
		rest = append(rest, n)
	}
	for i := len(rest) - 1; i > 0; i-- {
		j := a.rng(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}
	return append(out, rest[:quantity-len(out)]...), nil
}
