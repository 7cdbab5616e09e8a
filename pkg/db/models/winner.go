package models

import (
	"time"

	"github.com/google/uuid"
)

// Winner records a drawn ticket number. Written only by the draw
// engine; Place is nil for single-prize raffles.
type Winner struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RaffleID     uuid.UUID `gorm:"column:raffle_id;type:uuid;not null;index"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	TicketNumber int       `gorm:"column:ticket_number;not null"`
	Place        *int      `gorm:"column:place"`
	PrizeTitle   string    `gorm:"column:prize_title"`
	WinDate      time.Time `gorm:"column:win_date;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
