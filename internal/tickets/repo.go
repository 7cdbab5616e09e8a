package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
)

// Repository persists tickets and their number rows. Number rows carry
// the (raffle_id, number) unique index, so Create is where a lost
// allocation race surfaces.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ticket *models.Ticket) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	ListActiveByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Ticket, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Ticket, error)
	UsedNumbers(ctx context.Context, raffleID uuid.UUID) (map[int]struct{}, error)
	MarkUsedByRaffle(ctx context.Context, raffleID uuid.UUID) (int64, error)
	Cancel(ctx context.Context, ticketID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ticket repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.Status == "" {
		ticket.Status = enums.TicketStatusActive
	}
	ticket.Quantity = len(ticket.Numbers)
	for i := range ticket.Numbers {
		if ticket.Numbers[i].ID == uuid.Nil {
			ticket.Numbers[i].ID = uuid.New()
		}
		ticket.Numbers[i].TicketID = ticket.ID
		ticket.Numbers[i].RaffleID = ticket.RaffleID
	}

	// Number rows are inserted explicitly rather than through the
	// association so a duplicate number fails the insert instead of
	// being absorbed by an upsert.
	numbers := ticket.Numbers
	ticket.Numbers = nil
	if err := r.db.WithContext(ctx).Create(ticket).Error; err != nil {
		ticket.Numbers = numbers
		return err
	}
	ticket.Numbers = numbers
	if len(numbers) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&ticket.Numbers).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Preload("Numbers").
		First(&ticket, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) ListActiveByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Ticket, error) {
	var out []models.Ticket
	err := r.db.WithContext(ctx).
		Preload("Numbers").
		Where("raffle_id = ? AND status = ?", raffleID, enums.TicketStatusActive).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	var out []models.Ticket
	err := r.db.WithContext(ctx).
		Preload("Numbers").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *repository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Ticket, error) {
	var out []models.Ticket
	err := r.db.WithContext(ctx).
		Preload("Numbers").
		Where("transaction_id = ?", transactionID).
		Find(&out).Error
	return out, err
}

// UsedNumbers returns every number currently claimed in the raffle.
// Cancelled tickets do not appear because Cancel deletes their rows.
func (r *repository) UsedNumbers(ctx context.Context, raffleID uuid.UUID) (map[int]struct{}, error) {
	var numbers []int
	err := r.db.WithContext(ctx).
		Model(&models.TicketNumber{}).
		Where("raffle_id = ?", raffleID).
		Pluck("number", &numbers).Error
	if err != nil {
		return nil, err
	}
	used := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		used[n] = struct{}{}
	}
	return used, nil
}

// MarkUsedByRaffle flips every active ticket in the raffle to used and
// returns how many were flipped.
func (r *repository) MarkUsedByRaffle(ctx context.Context, raffleID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("raffle_id = ? AND status = ?", raffleID, enums.TicketStatusActive).
		Update("status", enums.TicketStatusUsed)
	return res.RowsAffected, res.Error
}

// Cancel marks the ticket cancelled and frees its numbers for
// reallocation by deleting the child rows.
func (r *repository) Cancel(ctx context.Context, ticketID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketStatusActive).
		Update("status", enums.TicketStatusCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "ticket is not active")
	}
	return r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Delete(&models.TicketNumber{}).Error
}
