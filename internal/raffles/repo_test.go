package raffles

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
)

func setupRaffleTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:raffles_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	raffles := `
CREATE TABLE IF NOT EXISTS raffles (
  id TEXT PRIMARY KEY,
  company_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  price_cents INTEGER NOT NULL,
  total_tickets INTEGER NOT NULL,
  tickets_sold INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'draft',
  is_multi_prize INTEGER NOT NULL DEFAULT 0,
  ends_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	prizePlaces := `
CREATE TABLE IF NOT EXISTS prize_places (
  id TEXT PRIMARY KEY,
  raffle_id TEXT NOT NULL,
  place INTEGER NOT NULL,
  prize_title TEXT NOT NULL,
  range_start INTEGER,
  range_end INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(raffles).Error)
	require.NoError(t, db.Exec(prizePlaces).Error)
	return db
}

func seedRaffle(t *testing.T, repo Repository, total int, status enums.RaffleStatus) *models.Raffle {
	t.Helper()
	raffle := &models.Raffle{
		CompanyID:    uuid.New(),
		Title:        "Test Raffle",
		PriceCents:   500,
		TotalTickets: total,
		Status:       status,
	}
	require.NoError(t, repo.Create(context.Background(), raffle))
	return raffle
}

func TestRepositoryFindByID(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupRaffleTestDB(t))
	ctx := context.Background()

	start1, end1 := 1, 50
	start2, end2 := 51, 100
	raffle := &models.Raffle{
		CompanyID:    uuid.New(),
		Title:        "Multi Prize",
		PriceCents:   1000,
		TotalTickets: 100,
		Status:       enums.RaffleStatusActive,
		IsMultiPrize: true,
		PrizePlaces: []models.PrizePlace{
			{Place: 2, PrizeTitle: "Second", RangeStart: &start2, RangeEnd: &end2},
			{Place: 1, PrizeTitle: "First", RangeStart: &start1, RangeEnd: &end1},
		},
	}
	require.NoError(t, repo.Create(ctx, raffle))

	found, err := repo.FindByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, raffle.ID, found.ID)
	require.Len(t, found.PrizePlaces, 2)
	assert.Equal(t, 1, found.PrizePlaces[0].Place)
	assert.Equal(t, 2, found.PrizePlaces[1].Place)

	_, err = repo.FindByID(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryReserveCapacity(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupRaffleTestDB(t))
	ctx := context.Background()
	raffle := seedRaffle(t, repo, 10, enums.RaffleStatusActive)

	require.NoError(t, repo.ReserveCapacity(ctx, raffle.ID, 7))
	require.NoError(t, repo.ReserveCapacity(ctx, raffle.ID, 3))

	err := repo.ReserveCapacity(ctx, raffle.ID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCapacityExceeded))

	found, err := repo.FindByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, found.TicketsSold)
	assert.Equal(t, 0, found.TicketsRemaining())
}

func TestRepositoryReserveCapacityInactive(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupRaffleTestDB(t))
	ctx := context.Background()
	raffle := seedRaffle(t, repo, 10, enums.RaffleStatusDraft)

	err := repo.ReserveCapacity(ctx, raffle.ID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeRaffleNotActive))
}

func TestRepositoryReleaseCapacity(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupRaffleTestDB(t))
	ctx := context.Background()
	raffle := seedRaffle(t, repo, 10, enums.RaffleStatusActive)

	require.NoError(t, repo.ReserveCapacity(ctx, raffle.ID, 4))
	require.NoError(t, repo.ReleaseCapacity(ctx, raffle.ID, 4))

	err := repo.ReleaseCapacity(ctx, raffle.ID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestRepositoryUpdateStatus(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupRaffleTestDB(t))
	ctx := context.Background()
	raffle := seedRaffle(t, repo, 10, enums.RaffleStatusDraft)

	require.NoError(t, repo.UpdateStatus(ctx, raffle.ID, enums.RaffleStatusDraft, enums.RaffleStatusActive))

	err := repo.UpdateStatus(ctx, raffle.ID, enums.RaffleStatusDraft, enums.RaffleStatusActive)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	err = repo.UpdateStatus(ctx, raffle.ID, enums.RaffleStatusActive, enums.RaffleStatusDraft)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestServiceTransition(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupRaffleTestDB(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()
	raffle := seedRaffle(t, repo, 10, enums.RaffleStatusDraft)

	updated, err := svc.Transition(ctx, raffle.ID, enums.RaffleStatusActive)
	require.NoError(t, err)
	assert.Equal(t, enums.RaffleStatusActive, updated.Status)

	_, err = svc.Transition(ctx, raffle.ID, enums.RaffleStatusCompleted)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, raffle.ID, enums.RaffleStatusActive)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}
