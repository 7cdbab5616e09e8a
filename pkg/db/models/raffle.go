package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/pkg/enums"
)

// Raffle is a sellable pool of numbered tickets with finite capacity.
// TotalTickets is fixed at creation; TicketsSold only moves through the
// allocator's conditional update, never a plain write.
type Raffle struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID    uuid.UUID          `gorm:"column:company_id;type:uuid;not null;index"`
	Title        string             `gorm:"column:title;not null"`
	PriceCents   int64              `gorm:"column:price_cents;not null"`
	TotalTickets int                `gorm:"column:total_tickets;not null"`
	TicketsSold  int                `gorm:"column:tickets_sold;not null;default:0"`
	Status       enums.RaffleStatus `gorm:"column:status;not null;default:'draft'"`
	IsMultiPrize bool               `gorm:"column:is_multi_prize;not null;default:false"`
	PrizePlaces  []PrizePlace       `gorm:"foreignKey:RaffleID"`
	EndsAt       *time.Time         `gorm:"column:ends_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TicketsRemaining returns the unsold capacity.
func (r Raffle) TicketsRemaining() int {
	remaining := r.TotalTickets - r.TicketsSold
	if remaining < 0 {
		return 0
	}
	return remaining
}
