package draw

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
)

// Repository persists draw results.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateWinners(ctx context.Context, winners []models.Winner) error
	ListByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Winner, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a winner repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWinners(ctx context.Context, winners []models.Winner) error {
	if len(winners) == 0 {
		return nil
	}
	for i := range winners {
		if winners[i].ID == uuid.Nil {
			winners[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&winners).Error
}

func (r *repository) ListByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Winner, error) {
	var out []models.Winner
	err := r.db.WithContext(ctx).
		Where("raffle_id = ?", raffleID).
		Order("place ASC, created_at ASC").
		Find(&out).Error
	return out, err
}
