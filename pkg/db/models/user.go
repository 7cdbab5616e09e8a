package models

import (
	"time"

	"github.com/google/uuid"
)

// User holds the spendable wallet balance. The balance column is a
// derived cache over completed transactions; the ledger service owns
// every mutation and can rebuild it from the transaction log.
type User struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email        string    `gorm:"column:email;not null;unique"`
	DisplayName  string    `gorm:"column:display_name"`
	BalanceCents int64     `gorm:"column:balance_cents;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
