package raffles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
)

// Repository manages raffle persistence. Capacity mutations go through
// conditional updates so concurrent purchases can never push
// tickets_sold past total_tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, raffle *models.Raffle) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.RaffleStatus) error
	ReserveCapacity(ctx context.Context, id uuid.UUID, quantity int) error
	ReleaseCapacity(ctx context.Context, id uuid.UUID, quantity int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a raffle repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, raffle *models.Raffle) error {
	if raffle.ID == uuid.Nil {
		raffle.ID = uuid.New()
	}
	for i := range raffle.PrizePlaces {
		if raffle.PrizePlaces[i].ID == uuid.Nil {
			raffle.PrizePlaces[i].ID = uuid.New()
		}
		raffle.PrizePlaces[i].RaffleID = raffle.ID
	}
	return r.db.WithContext(ctx).Create(raffle).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	var raffle models.Raffle
	err := r.db.WithContext(ctx).
		Preload("PrizePlaces", func(db *gorm.DB) *gorm.DB {
			return db.Order("place ASC")
		}).
		First(&raffle, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "raffle not found")
		}
		return nil, err
	}
	return &raffle, nil
}

// UpdateStatus flips the raffle status only when the current status
// still matches from. A stale from surfaces as CONFLICT.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.RaffleStatus) error {
	if !from.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeConflict, "raffle status transition disallowed").
			WithDetails(map[string]any{"from": from.String(), "to": to.String()})
	}
	res := r.db.WithContext(ctx).
		Model(&models.Raffle{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "raffle status changed concurrently")
	}
	return nil
}

// ReserveCapacity bumps tickets_sold by quantity when, and only when,
// the raffle is active and has room. This is the compare-and-swap gate
// that serializes allocation per raffle.
func (r *repository) ReserveCapacity(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Raffle{}).
		Where("id = ? AND status = ? AND tickets_sold + ? <= total_tickets",
			id, enums.RaffleStatusActive, quantity).
		Update("tickets_sold", gorm.Expr("tickets_sold + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	raffle, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if raffle.Status != enums.RaffleStatusActive {
		return pkgerrors.New(pkgerrors.CodeRaffleNotActive, "raffle is not active").
			WithDetails(map[string]any{"status": raffle.Status.String()})
	}
	return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "not enough tickets remaining").
		WithDetails(map[string]any{
			"requested": quantity,
			"remaining": raffle.TicketsRemaining(),
		})
}

// ReleaseCapacity hands reserved capacity back after a cancelled
// allocation. The guard keeps tickets_sold from going negative.
func (r *repository) ReleaseCapacity(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Raffle{}).
		Where("id = ? AND tickets_sold >= ?", id, quantity).
		Update("tickets_sold", gorm.Expr("tickets_sold - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "tickets_sold underflow prevented")
	}
	return nil
}
