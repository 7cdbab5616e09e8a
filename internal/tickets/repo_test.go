package tickets

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
)

func setupTicketTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:tickets_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	raffles := `
CREATE TABLE IF NOT EXISTS raffles (
  id TEXT PRIMARY KEY,
  company_id TEXT NOT NULL,
  title TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  total_tickets INTEGER NOT NULL,
  tickets_sold INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'draft',
  is_multi_prize INTEGER NOT NULL DEFAULT 0,
  ends_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	tickets := `
CREATE TABLE IF NOT EXISTS tickets (
  id TEXT PRIMARY KEY,
  raffle_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  transaction_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`
	ticketNumbers := `
CREATE TABLE IF NOT EXISTS ticket_numbers (
  id TEXT PRIMARY KEY,
  ticket_id TEXT NOT NULL,
  raffle_id TEXT NOT NULL,
  number INTEGER NOT NULL,
  CONSTRAINT idx_raffle_number UNIQUE (raffle_id, number)
);`
	prizePlaces := `
CREATE TABLE IF NOT EXISTS prize_places (
  id TEXT PRIMARY KEY,
  raffle_id TEXT NOT NULL,
  place INTEGER NOT NULL,
  range_start INTEGER,
  range_end INTEGER,
  prize_title TEXT NOT NULL
);`
	for _, stmt := range []string{raffles, tickets, ticketNumbers, prizePlaces} {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

func newTicket(raffleID, userID uuid.UUID, numbers ...int) *models.Ticket {
	ticket := &models.Ticket{
		RaffleID:      raffleID,
		UserID:        userID,
		TransactionID: uuid.New(),
	}
	for _, n := range numbers {
		ticket.Numbers = append(ticket.Numbers, models.TicketNumber{Number: n})
	}
	return ticket
}

func TestRepositoryCreateAndUsedNumbers(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupTicketTestDB(t))
	ctx := context.Background()
	raffleID := uuid.New()

	ticket := newTicket(raffleID, uuid.New(), 3, 7, 11)
	require.NoError(t, repo.Create(ctx, ticket))
	assert.Equal(t, 3, ticket.Quantity)

	used, err := repo.UsedNumbers(ctx, raffleID)
	require.NoError(t, err)
	assert.Len(t, used, 3)
	_, ok := used[7]
	assert.True(t, ok)

	found, err := repo.FindByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 7, 11}, found.NumberValues())
	assert.Equal(t, enums.TicketStatusActive, found.Status)
}

func TestRepositoryCreateDuplicateNumber(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupTicketTestDB(t))
	ctx := context.Background()
	raffleID := uuid.New()

	require.NoError(t, repo.Create(ctx, newTicket(raffleID, uuid.New(), 5)))

	err := repo.Create(ctx, newTicket(raffleID, uuid.New(), 5))
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "idx_raffle_number"))

	// Same number in a different raffle is fine.
	require.NoError(t, repo.Create(ctx, newTicket(uuid.New(), uuid.New(), 5)))
}

func TestRepositoryCancelFreesNumbers(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupTicketTestDB(t))
	ctx := context.Background()
	raffleID := uuid.New()

	ticket := newTicket(raffleID, uuid.New(), 1, 2)
	require.NoError(t, repo.Create(ctx, ticket))
	require.NoError(t, repo.Cancel(ctx, ticket.ID))

	used, err := repo.UsedNumbers(ctx, raffleID)
	require.NoError(t, err)
	assert.Empty(t, used)

	found, err := repo.FindByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusCancelled, found.Status)

	// The freed numbers can be claimed again.
	require.NoError(t, repo.Create(ctx, newTicket(raffleID, uuid.New(), 1, 2)))

	err = repo.Cancel(ctx, ticket.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestRepositoryMarkUsedByRaffle(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupTicketTestDB(t))
	ctx := context.Background()
	raffleID := uuid.New()

	require.NoError(t, repo.Create(ctx, newTicket(raffleID, uuid.New(), 1)))
	require.NoError(t, repo.Create(ctx, newTicket(raffleID, uuid.New(), 2)))
	cancelled := newTicket(raffleID, uuid.New(), 3)
	require.NoError(t, repo.Create(ctx, cancelled))
	require.NoError(t, repo.Cancel(ctx, cancelled.ID))

	flipped, err := repo.MarkUsedByRaffle(ctx, raffleID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), flipped)

	active, err := repo.ListActiveByRaffle(ctx, raffleID)
	require.NoError(t, err)
	assert.Empty(t, active)
}
