package models

import (
	"github.com/google/uuid"
)

// TicketNumber is one allocated number. The unique index on
// (raffle_id, number) is the database-level duplicate guard: a lost
// allocation race surfaces as a unique violation instead of a silent
// double claim.
type TicketNumber struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TicketID uuid.UUID `gorm:"column:ticket_id;type:uuid;not null;index"`
	RaffleID uuid.UUID `gorm:"column:raffle_id;type:uuid;not null;uniqueIndex:idx_raffle_number"`
	Number   int       `gorm:"column:number;not null;uniqueIndex:idx_raffle_number"`
}
