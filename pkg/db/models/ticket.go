package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/pkg/enums"
)

// Ticket is a user's claim on one or more numbers within a raffle. It is
// created atomically with its owning transaction; after creation only
// its status changes (active to used during a draw, active to cancelled
// on compensation).
type Ticket struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	RaffleID      uuid.UUID          `gorm:"column:raffle_id;type:uuid;not null;index"`
	UserID        uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	TransactionID uuid.UUID          `gorm:"column:transaction_id;type:uuid;not null"`
	Quantity      int                `gorm:"column:quantity;not null"`
	Status        enums.TicketStatus `gorm:"column:status;not null;default:'active'"`
	Numbers       []TicketNumber     `gorm:"foreignKey:TicketID"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// NumberValues flattens the child rows into plain ints.
func (t Ticket) NumberValues() []int {
	out := make([]int, 0, len(t.Numbers))
	for _, n := range t.Numbers {
		out = append(out, n.Number)
	}
	return out
}
