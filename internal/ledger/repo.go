package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/pagination"
)

// Repository persists ledger entries and the users' cached balances.
// Transactions are append-only: after creation only the status and
// completed_at columns ever change, and both flips are conditional.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SwapUserBalance(ctx context.Context, userID uuid.UUID, from, to int64) (bool, error)
	SetUserBalance(ctx context.Context, userID uuid.UUID, balance int64) error
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error)
	ListTransactionsByUserPage(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Transaction, error)
	ListCompletedByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// SwapUserBalance writes the new balance only when the stored balance
// still equals from. A false return means a concurrent writer got there
// first and the caller should re-read and retry.
func (r *repository) SwapUserBalance(ctx context.Context, userID uuid.UUID, from, to int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND balance_cents = ?", userID, from).
		Update("balance_cents", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetUserBalance overwrites the cached balance unconditionally. Only
// the recompute path uses it.
func (r *repository) SetUserBalance(ctx context.Context, userID uuid.UUID, balance int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance_cents", balance)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.Status == "" {
		txn.Status = enums.TransactionStatusPending
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	var out []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ListTransactionsByUserPage walks the ledger newest-first from the
// cursor position. Ties on created_at break on id so the walk never
// skips or repeats an entry.
func (r *repository) ListTransactionsByUserPage(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var out []models.Transaction
	err := query.Find(&out).Error
	return out, err
}

func (r *repository) ListCompletedByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	var out []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.TransactionStatusCompleted).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var out []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.TransactionStatusPending, cutoff).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// MarkCompleted flips pending to completed. A false return means the
// transaction was not pending, which callers treat as a duplicate
// delivery rather than an error.
func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(map[string]any{
			"status":       enums.TransactionStatusCompleted,
			"completed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Update("status", enums.TransactionStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
