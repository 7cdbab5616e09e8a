package draw

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/internal/tickets"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

type testRunner struct {
	db *gorm.DB
}

func (r testRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

var testSchema = []string{`
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
);`, `
CREATE TABLE IF NOT EXISTS prize_places (
  id TEXT PRIMARY KEY,
  raffle_id TEXT NOT NULL,
  place INTEGER NOT NULL,
  prize_title TEXT NOT NULL,
  range_start INTEGER,
  range_end INTEGER
);`, `
CREATE TABLE IF NOT EXISTS tickets (
  id TEXT PRIMARY KEY,
  raffle_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  transaction_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS ticket_numbers (
  id TEXT PRIMARY KEY,
  ticket_id TEXT NOT NULL,
  raffle_id TEXT NOT NULL,
  number INTEGER NOT NULL,
  CONSTRAINT idx_raffle_number UNIQUE (raffle_id, number)
);`, `
CREATE TABLE IF NOT EXISTS winners (
  id TEXT PRIMARY KEY,
  raffle_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  ticket_number INTEGER NOT NULL,
  place INTEGER,
  prize_title TEXT,
  win_date DATETIME NOT NULL,
  created_at DATETIME
);`}

type fixture struct {
	db         *gorm.DB
	svc        Service
	raffleRepo raffles.Repository
	ticketRepo tickets.Repository
	winnerRepo Repository
}

func setupFixture(t *testing.T, seed int64) *fixture {
	t.Helper()

	dsn := "file:draw_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, stmt := range testSchema {
		require.NoError(t, gdb.Exec(stmt).Error)
	}

	raffleRepo := raffles.NewRepository(gdb)
	ticketRepo := tickets.NewRepository(gdb)
	winnerRepo := NewRepository(gdb)
	rng := rand.New(rand.NewSource(seed))
	svc, err := NewService(Params{
		Runner:  testRunner{db: gdb},
		Raffles: raffleRepo,
		Tickets: ticketRepo,
		Winners: winnerRepo,
		Logger:  logger.New(logger.Options{ServiceName: "draw-test"}),
		Rng:     rng.Intn,
		Now:     func() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &fixture{db: gdb, svc: svc, raffleRepo: raffleRepo, ticketRepo: ticketRepo, winnerRepo: winnerRepo}
}

func (f *fixture) seedRaffle(t *testing.T, total int, places []models.PrizePlace) *models.Raffle {
	t.Helper()
	raffle := &models.Raffle{
		CompanyID:    uuid.New(),
		Title:        "Draw Raffle",
		PriceCents:   100,
		TotalTickets: total,
		Status:       enums.RaffleStatusActive,
		IsMultiPrize: len(places) > 0,
		PrizePlaces:  places,
	}
	require.NoError(t, f.raffleRepo.Create(context.Background(), raffle))
	return raffle
}

func (f *fixture) seedTicket(t *testing.T, raffleID, userID uuid.UUID, numbers ...int) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{
		RaffleID:      raffleID,
		UserID:        userID,
		TransactionID: uuid.New(),
	}
	for _, n := range numbers {
		ticket.Numbers = append(ticket.Numbers, models.TicketNumber{Number: n})
	}
	require.NoError(t, f.ticketRepo.Create(context.Background(), ticket))
	return ticket
}

func TestDrawSingleWinner(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, 11)
	ctx := context.Background()
	raffle := f.seedRaffle(t, 100, nil)
	alice := uuid.New()
	bob := uuid.New()
	f.seedTicket(t, raffle.ID, alice, 1, 2, 3)
	f.seedTicket(t, raffle.ID, bob, 4)

	winners, err := f.svc.DrawWinners(ctx, raffle.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Nil(t, winners[0].Place)
	assert.Contains(t, []uuid.UUID{alice, bob}, winners[0].UserID)
	assert.Contains(t, []int{1, 2, 3, 4}, winners[0].TicketNumber)

	// The draw consumed every live ticket and completed the raffle.
	live, err := f.ticketRepo.ListActiveByRaffle(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	updated, err := f.raffleRepo.FindByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RaffleStatusCompleted, updated.Status)
}

func TestDrawIsTerminal(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, 3)
	ctx := context.Background()
	raffle := f.seedRaffle(t, 10, nil)
	f.seedTicket(t, raffle.ID, uuid.New(), 1, 2)

	first, err := f.svc.DrawWinners(ctx, raffle.ID)
	require.NoError(t, err)

	_, err = f.svc.DrawWinners(ctx, raffle.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeRaffleCompleted))

	// The recorded winners are untouched by the second call.
	recorded, err := f.svc.ListWinners(ctx, raffle.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, first[0].TicketNumber, recorded[0].TicketNumber)
}

func TestDrawNoTickets(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, 5)
	ctx := context.Background()
	raffle := f.seedRaffle(t, 10, nil)

	_, err := f.svc.DrawWinners(ctx, raffle.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNoTickets))

	// A failed draw must not complete the raffle.
	updated, err := f.raffleRepo.FindByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RaffleStatusActive, updated.Status)
}

func TestDrawNotFound(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, 5)
	_, err := f.svc.DrawWinners(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestDrawMultiPrizeRanges(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, 17)
	ctx := context.Background()

	firstStart, firstEnd := 1, 50
	secondStart, secondEnd := 51, 100
	thirdStart, thirdEnd := 101, 150
	raffle := f.seedRaffle(t, 150, []models.PrizePlace{
		{Place: 1, PrizeTitle: "Grand", RangeStart: &firstStart, RangeEnd: &firstEnd},
		{Place: 2, PrizeTitle: "Second", RangeStart: &secondStart, RangeEnd: &secondEnd},
		{Place: 3, PrizeTitle: "Third", RangeStart: &thirdStart, RangeEnd: &thirdEnd},
	})

	alice := uuid.New()
	bob := uuid.New()
	f.seedTicket(t, raffle.ID, alice, 10, 20, 60)
	f.seedTicket(t, raffle.ID, bob, 55)
	// Nobody bought inside the third place range.

	winners, err := f.svc.DrawWinners(ctx, raffle.ID)
	require.NoError(t, err)
	require.Len(t, winners, 2)

	require.NotNil(t, winners[0].Place)
	assert.Equal(t, 1, *winners[0].Place)
	assert.Equal(t, "Grand", winners[0].PrizeTitle)
	assert.Equal(t, alice, winners[0].UserID)
	assert.Contains(t, []int{10, 20}, winners[0].TicketNumber)

	require.NotNil(t, winners[1].Place)
	assert.Equal(t, 2, *winners[1].Place)
	assert.Contains(t, []int{55, 60}, winners[1].TicketNumber)
}

func TestDrawMultiPrizeUnrangedPlacesNeverRepeatNumbers(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, 29)
	ctx := context.Background()
	raffle := f.seedRaffle(t, 10, []models.PrizePlace{
		{Place: 1, PrizeTitle: "First"},
		{Place: 2, PrizeTitle: "Second"},
		{Place: 3, PrizeTitle: "Third"},
	})
	f.seedTicket(t, raffle.ID, uuid.New(), 1, 2, 3)

	winners, err := f.svc.DrawWinners(ctx, raffle.ID)
	require.NoError(t, err)
	require.Len(t, winners, 3)

	seen := map[int]bool{}
	for _, w := range winners {
		assert.False(t, seen[w.TicketNumber], "number %d won twice", w.TicketNumber)
		seen[w.TicketNumber] = true
	}
}

func TestDrawCancelledRaffle(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, 5)
	ctx := context.Background()
	raffle := f.seedRaffle(t, 10, nil)
	require.NoError(t, f.db.Model(&models.Raffle{}).
		Where("id = ?", raffle.ID).
		Update("status", enums.RaffleStatusCancelled).Error)

	_, err := f.svc.DrawWinners(ctx, raffle.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeRaffleNotActive))
}
