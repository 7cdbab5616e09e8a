package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/pkg/enums"
)

// Transaction is an immutable ledger entry and the source of truth for
// every balance change. AmountCents is always non-negative; Operation
// carries the direction. Once Status leaves pending only CompletedAt
// may be stamped.
type Transaction struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	RaffleID     *uuid.UUID              `gorm:"column:raffle_id;type:uuid;index"`
	AmountCents  int64                   `gorm:"column:amount_cents;not null"`
	Type         enums.TransactionType   `gorm:"column:type;not null"`
	Status       enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	Operation    enums.BalanceOperation  `gorm:"column:operation;not null"`
	ProviderRef  *string                 `gorm:"column:provider_ref"`
	Metadata     json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	CompletedAt  *time.Time              `gorm:"column:completed_at"`
}

// SignedAmount is the ledger-visible delta this entry contributes once
// completed.
func (t Transaction) SignedAmount() int64 {
	return t.AmountCents * t.Operation.Sign()
}
