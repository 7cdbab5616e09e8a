package models

import (
	"github.com/google/uuid"
)

// PrizePlace is one tier of a multi-prize raffle. A nil range means the
// place draws from the full remaining pool; a set range restricts the
// candidate pool to ticket numbers inside [RangeStart, RangeEnd].
type PrizePlace struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RaffleID   uuid.UUID `gorm:"column:raffle_id;type:uuid;not null;index"`
	Place      int       `gorm:"column:place;not null"`
	RangeStart *int      `gorm:"column:range_start"`
	RangeEnd   *int      `gorm:"column:range_end"`
	PrizeTitle string    `gorm:"column:prize_title;not null"`
}

// HasRange reports whether the place restricts its candidate pool.
func (p PrizePlace) HasRange() bool {
	return p.RangeStart != nil && p.RangeEnd != nil
}

// Contains reports whether the ticket number falls inside the place's
// inclusive range. Places without a range accept every number.
func (p PrizePlace) Contains(number int) bool {
	if !p.HasRange() {
		return true
	}
	return number >= *p.RangeStart && number <= *p.RangeEnd
}
