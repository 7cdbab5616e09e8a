package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/pagination"
)

// balanceSwapAttempts bounds the compare-and-swap loop on the cached
// balance. Under Postgres row locking the second attempt nearly always
// lands; the bound exists so a pathological interleaving fails loudly.
const balanceSwapAttempts = 5

// DebitPolicy controls what happens when a debit would push the balance
// below zero.
type DebitPolicy int

const (
	// DebitStrict rejects the debit with INSUFFICIENT_FUNDS.
	DebitStrict DebitPolicy = iota
	// DebitClamp floors the balance at zero and records the full
	// requested amount on the ledger entry.
	DebitClamp
)

// ApplyInput describes one immediate ledger entry.
type ApplyInput struct {
	UserID      uuid.UUID
	RaffleID    *uuid.UUID
	AmountCents int64
	Type        enums.TransactionType
	Operation   enums.BalanceOperation
	Policy      DebitPolicy
	Metadata    any
	ProviderRef *string
}

// PendingInput describes a ledger entry created ahead of an external
// confirmation. It never touches the balance until completed.
type PendingInput struct {
	UserID      uuid.UUID
	RaffleID    *uuid.UUID
	AmountCents int64
	Type        enums.TransactionType
	Operation   enums.BalanceOperation
	Metadata    any
	ProviderRef *string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns every balance mutation. The transaction log is the
// source of truth; the users.balance_cents column is a cache the
// service keeps consistent with completed entries.
type Service interface {
	Apply(ctx context.Context, input ApplyInput) (*models.Transaction, error)
	ApplyInTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.Transaction, error)
	CreatePending(ctx context.Context, input PendingInput) (*models.Transaction, error)
	CompleteInTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, policy DebitPolicy) (*models.Transaction, bool, error)
	Fail(ctx context.Context, transactionID uuid.UUID) (bool, error)
	FailInTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (bool, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error)
	ListByUserPage(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, string, error)
	Recompute(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo   Repository
	runner txRunner
	logger *logger.Logger
	now    func() time.Time
}

// NewService wires the ledger service.
func NewService(repo Repository, runner txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil || runner == nil {
		return nil, fmt.Errorf("ledger service requires repository and tx runner")
	}
	if logg == nil {
		return nil, fmt.Errorf("ledger service requires logger")
	}
	return &service{repo: repo, runner: runner, logger: logg, now: time.Now}, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.ApplyInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyInTx records a completed entry and moves the balance inside the
// caller's transaction. The two writes commit or roll back together, so
// the cached balance can never drift from the log.
func (s *service) ApplyInTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.Transaction, error) {
	if err := validateEntry(input.UserID, input.AmountCents, input.Type, input.Operation); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	delta := input.AmountCents * input.Operation.Sign()
	if _, err := s.applyDelta(ctx, repo, input.UserID, delta, input.Policy); err != nil {
		return nil, err
	}

	metadata, err := encodeOptional(input.Metadata)
	if err != nil {
		return nil, err
	}
	completedAt := s.now().UTC()
	txn := &models.Transaction{
		UserID:      input.UserID,
		RaffleID:    input.RaffleID,
		AmountCents: input.AmountCents,
		Type:        input.Type,
		Status:      enums.TransactionStatusCompleted,
		Operation:   input.Operation,
		ProviderRef: input.ProviderRef,
		Metadata:    metadata,
		CompletedAt: &completedAt,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) CreatePending(ctx context.Context, input PendingInput) (*models.Transaction, error) {
	if err := validateEntry(input.UserID, input.AmountCents, input.Type, input.Operation); err != nil {
		return nil, err
	}
	metadata, err := encodeOptional(input.Metadata)
	if err != nil {
		return nil, err
	}
	txn := &models.Transaction{
		UserID:      input.UserID,
		RaffleID:    input.RaffleID,
		AmountCents: input.AmountCents,
		Type:        input.Type,
		Status:      enums.TransactionStatusPending,
		Operation:   input.Operation,
		ProviderRef: input.ProviderRef,
		Metadata:    metadata,
	}
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// CompleteInTx flips a pending entry to completed and applies its
// balance delta. The bool is false when the entry was already terminal,
// which callers treat as a duplicate delivery.
func (s *service) CompleteInTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, policy DebitPolicy) (*models.Transaction, bool, error) {
	repo := s.repo.WithTx(tx)
	txn, err := repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, false, err
	}
	if txn.Status.IsTerminal() {
		return txn, false, nil
	}

	flipped, err := repo.MarkCompleted(ctx, transactionID, s.now().UTC())
	if err != nil {
		return nil, false, err
	}
	if !flipped {
		return txn, false, nil
	}
	if _, err := s.applyDelta(ctx, repo, txn.UserID, txn.SignedAmount(), policy); err != nil {
		return nil, false, err
	}
	return txn, true, nil
}

func (s *service) Fail(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	return s.repo.MarkFailed(ctx, transactionID)
}

func (s *service) FailInTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (bool, error) {
	return s.repo.WithTx(tx).MarkFailed(ctx, transactionID)
}

func (s *service) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.repo.FindTransactionByID(ctx, id)
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.repo.FindUserByID(ctx, id)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.repo.ListTransactionsByUser(ctx, userID)
}

// ListByUserPage returns one page of ledger entries newest-first. The
// returned cursor is empty on the last page.
func (s *service) ListByUserPage(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	page, err := s.repo.ListTransactionsByUserPage(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(page) > limit {
		page = page[:limit]
		last := page[len(page)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, next, nil
}

// Recompute rebuilds the cached balance from completed entries. Debits
// recorded under the clamp policy can push the raw sum negative, so the
// rebuilt value is floored at zero the same way the live path floors it.
func (s *service) Recompute(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindUserByID(ctx, userID); err != nil {
			return err
		}
		entries, err := repo.ListCompletedByUser(ctx, userID)
		if err != nil {
			return err
		}
		balance = 0
		for _, entry := range entries {
			balance += entry.SignedAmount()
			if balance < 0 {
				balance = 0
			}
		}
		return repo.SetUserBalance(ctx, userID, balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *service) applyDelta(ctx context.Context, repo Repository, userID uuid.UUID, delta int64, policy DebitPolicy) (int64, error) {
	for attempt := 0; attempt < balanceSwapAttempts; attempt++ {
		user, err := repo.FindUserByID(ctx, userID)
		if err != nil {
			return 0, err
		}
		next := user.BalanceCents + delta
		if next < 0 {
			if policy == DebitStrict {
				return 0, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "balance too low").
					WithDetails(map[string]any{
						"balance_cents":  user.BalanceCents,
						"required_cents": -delta,
					})
			}
			next = 0
		}
		swapped, err := repo.SwapUserBalance(ctx, userID, user.BalanceCents, next)
		if err != nil {
			return 0, err
		}
		if swapped {
			return next, nil
		}
		retryCtx := s.logger.WithFields(ctx, map[string]any{
			"user_id": userID.String(),
			"attempt": attempt + 1,
		})
		s.logger.Warn(retryCtx, "balance swap lost race, retrying")
	}
	return 0, pkgerrors.New(pkgerrors.CodeConflict, "balance under contention")
}

func validateEntry(userID uuid.UUID, amount int64, txnType enums.TransactionType, op enums.BalanceOperation) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if amount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-negative")
	}
	if !txnType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", txnType))
	}
	if !op.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid balance operation %q", op))
	}
	return nil
}

func encodeOptional(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return EncodeMetadata(value)
}
