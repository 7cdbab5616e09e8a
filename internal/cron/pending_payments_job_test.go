package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/internal/ledger"
	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/internal/tickets"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

type gormRunner struct {
	db *gorm.DB
}

func (r gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

var reaperSchema = []string{`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  display_name TEXT,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
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
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  raffle_id TEXT,
  amount_cents INTEGER NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  operation TEXT NOT NULL,
  provider_ref TEXT,
  metadata TEXT,
  created_at DATETIME,
  completed_at DATETIME
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
CREATE TABLE IF NOT EXISTS prize_places (
  id TEXT PRIMARY KEY,
  raffle_id TEXT NOT NULL,
  place INTEGER NOT NULL,
  range_start INTEGER,
  range_end INTEGER,
  prize_title TEXT NOT NULL
);`}

func setupReaper(t *testing.T, ttl time.Duration, now time.Time) (Job, *gorm.DB, ledger.Service) {
	t.Helper()

	dsn := "file:reaper_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, stmt := range reaperSchema {
		require.NoError(t, gdb.Exec(stmt).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "reaper-test"})
	runner := gormRunner{db: gdb}
	ledgerRepo := ledger.NewRepository(gdb)
	ledgerSvc, err := ledger.NewService(ledgerRepo, runner, logg)
	require.NoError(t, err)

	reverser, err := tickets.NewReverser(tickets.NewRepository(gdb), raffles.NewRepository(gdb))
	require.NoError(t, err)

	job, err := NewPendingPaymentsJob(PendingPaymentsJobParams{
		Logger:  logg,
		DB:      runner,
		Reader:  ledgerRepo,
		Ledger:  ledgerSvc,
		Tickets: reverser,
		TTL:     ttl,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	return job, gdb, ledgerSvc
}

func seedPendingTransaction(t *testing.T, gdb *gorm.DB, age time.Duration, now time.Time) *models.Transaction {
	t.Helper()
	txn := &models.Transaction{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		AmountCents: 500,
		Type:        enums.TransactionTypePurchase,
		Status:      enums.TransactionStatusPending,
		Operation:   enums.BalanceOperationSubtract,
		CreatedAt:   now.Add(-age),
	}
	require.NoError(t, gdb.Create(txn).Error)
	return txn
}

func TestPendingPaymentsJobExpiresStaleEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	job, gdb, ledgerSvc := setupReaper(t, 30*time.Minute, now)
	ctx := context.Background()

	stale := seedPendingTransaction(t, gdb, time.Hour, now)
	fresh := seedPendingTransaction(t, gdb, time.Minute, now)

	require.NoError(t, job.Run(ctx))

	expired, err := ledgerSvc.GetTransaction(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusFailed, expired.Status)

	kept, err := ledgerSvc.GetTransaction(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, kept.Status)
}

func TestPendingPaymentsJobReversesOrphanedAllocation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	job, gdb, _ := setupReaper(t, 30*time.Minute, now)
	ctx := context.Background()

	raffleRepo := raffles.NewRepository(gdb)
	raffle := &models.Raffle{
		CompanyID:    uuid.New(),
		Title:        "Orphan Raffle",
		PriceCents:   100,
		TotalTickets: 10,
		Status:       enums.RaffleStatusActive,
	}
	require.NoError(t, raffleRepo.Create(ctx, raffle))
	require.NoError(t, raffleRepo.ReserveCapacity(ctx, raffle.ID, 2))

	stale := seedPendingTransaction(t, gdb, time.Hour, now)
	ticketRepo := tickets.NewRepository(gdb)
	ticket := &models.Ticket{
		RaffleID:      raffle.ID,
		UserID:        stale.UserID,
		TransactionID: stale.ID,
		Numbers: []models.TicketNumber{
			{Number: 1},
			{Number: 2},
		},
	}
	require.NoError(t, ticketRepo.Create(ctx, ticket))

	require.NoError(t, job.Run(ctx))

	updated, err := raffleRepo.FindByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.TicketsSold)

	found, err := ticketRepo.FindByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusCancelled, found.Status)
}

func TestPendingPaymentsJobNoStaleEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	job, gdb, _ := setupReaper(t, 30*time.Minute, now)

	seedPendingTransaction(t, gdb, time.Minute, now)
	require.NoError(t, job.Run(context.Background()))
}
