package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/pagination"
)

type testRunner struct {
	db *gorm.DB
}

func (r testRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  display_name TEXT,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  raffle_id TEXT,
  amount_cents INTEGER NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  operation TEXT NOT NULL,
  provider_ref TEXT,
  metadata TEXT,
  created_at DATETIME,
  completed_at DATETIME
);`
	require.NoError(t, gdb.Exec(users).Error)
	require.NoError(t, gdb.Exec(transactions).Error)
	return gdb
}

func setupLedgerService(t *testing.T) (Service, Repository, *gorm.DB) {
	t.Helper()

	gdb := setupLedgerTestDB(t)
	repo := NewRepository(gdb)
	logg := logger.New(logger.Options{ServiceName: "ledger-test"})
	svc, err := NewService(repo, testRunner{db: gdb}, logg)
	require.NoError(t, err)
	return svc, repo, gdb
}

func seedUser(t *testing.T, repo Repository, balance int64) *models.User {
	t.Helper()
	user := &models.User{
		Email:        uuid.NewString() + "@example.com",
		BalanceCents: balance,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func TestApplyCreditAndDebit(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	ctx := context.Background()
	user := seedUser(t, repo, 0)

	txn, err := svc.Apply(ctx, ApplyInput{
		UserID:      user.ID,
		AmountCents: 2500,
		Type:        enums.TransactionTypeDeposit,
		Operation:   enums.BalanceOperationAdd,
		Metadata:    AdjustmentMetadata{Note: "signup bonus"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)
	require.NotNil(t, txn.CompletedAt)

	_, err = svc.Apply(ctx, ApplyInput{
		UserID:      user.ID,
		AmountCents: 1000,
		Type:        enums.TransactionTypePurchase,
		Operation:   enums.BalanceOperationSubtract,
		Policy:      DebitStrict,
	})
	require.NoError(t, err)

	refreshed, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), refreshed.BalanceCents)
}

func TestApplyStrictDebitRejectsOverdraft(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	ctx := context.Background()
	user := seedUser(t, repo, 1000)

	_, err := svc.Apply(ctx, ApplyInput{
		UserID:      user.ID,
		AmountCents: 1500,
		Type:        enums.TransactionTypePurchase,
		Operation:   enums.BalanceOperationSubtract,
		Policy:      DebitStrict,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	// The rejected debit leaves no ledger entry and no balance change.
	entries, err := svc.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	refreshed, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), refreshed.BalanceCents)
}

func TestApplyClampDebitFloorsAtZero(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	ctx := context.Background()
	user := seedUser(t, repo, 1000)

	txn, err := svc.Apply(ctx, ApplyInput{
		UserID:      user.ID,
		AmountCents: 1500,
		Type:        enums.TransactionTypeSystem,
		Operation:   enums.BalanceOperationSubtract,
		Policy:      DebitClamp,
		Metadata:    AdjustmentMetadata{Note: "chargeback"},
	})
	require.NoError(t, err)
	// The entry records the full requested amount even though only part
	// of it was covered.
	assert.Equal(t, int64(1500), txn.AmountCents)

	refreshed, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), refreshed.BalanceCents)
}

func TestPendingLifecycle(t *testing.T) {
	t.Parallel()

	svc, repo, gdb := setupLedgerService(t)
	ctx := context.Background()
	user := seedUser(t, repo, 5000)

	pending, err := svc.CreatePending(ctx, PendingInput{
		UserID:      user.ID,
		AmountCents: 2000,
		Type:        enums.TransactionTypePurchase,
		Operation:   enums.BalanceOperationSubtract,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, pending.Status)

	// Pending entries never move the balance.
	refreshed, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), refreshed.BalanceCents)

	err = gdb.Transaction(func(tx *gorm.DB) error {
		txn, applied, cerr := svc.CompleteInTx(ctx, tx, pending.ID, DebitStrict)
		require.NoError(t, cerr)
		require.True(t, applied)
		require.NotNil(t, txn.CompletedAt)
		return nil
	})
	require.NoError(t, err)

	refreshed, err = svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), refreshed.BalanceCents)

	// A duplicate completion is a no-op, not a second debit.
	err = gdb.Transaction(func(tx *gorm.DB) error {
		_, applied, cerr := svc.CompleteInTx(ctx, tx, pending.ID, DebitStrict)
		require.NoError(t, cerr)
		require.False(t, applied)
		return nil
	})
	require.NoError(t, err)

	refreshed, err = svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), refreshed.BalanceCents)
}

func TestFailPendingLeavesBalanceUntouched(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	ctx := context.Background()
	user := seedUser(t, repo, 1000)

	pending, err := svc.CreatePending(ctx, PendingInput{
		UserID:      user.ID,
		AmountCents: 400,
		Type:        enums.TransactionTypePurchase,
		Operation:   enums.BalanceOperationSubtract,
	})
	require.NoError(t, err)

	failed, err := svc.Fail(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, failed)

	// A second fail reports the entry already terminal.
	failed, err = svc.Fail(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, failed)

	refreshed, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), refreshed.BalanceCents)
}

func TestRecomputeMatchesCompletedEntries(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	ctx := context.Background()
	user := seedUser(t, repo, 0)

	for _, step := range []struct {
		amount int64
		op     enums.BalanceOperation
		typ    enums.TransactionType
	}{
		{amount: 3000, op: enums.BalanceOperationAdd, typ: enums.TransactionTypeDeposit},
		{amount: 1200, op: enums.BalanceOperationSubtract, typ: enums.TransactionTypePurchase},
		{amount: 500, op: enums.BalanceOperationAdd, typ: enums.TransactionTypeSystem},
	} {
		_, err := svc.Apply(ctx, ApplyInput{
			UserID:      user.ID,
			AmountCents: step.amount,
			Type:        step.typ,
			Operation:   step.op,
			Policy:      DebitStrict,
		})
		require.NoError(t, err)
	}

	// Failed and pending entries must not count.
	pending, err := svc.CreatePending(ctx, PendingInput{
		UserID:      user.ID,
		AmountCents: 9999,
		Type:        enums.TransactionTypePurchase,
		Operation:   enums.BalanceOperationSubtract,
	})
	require.NoError(t, err)
	_, err = svc.Fail(ctx, pending.ID)
	require.NoError(t, err)

	balance, err := svc.Recompute(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2300), balance)

	refreshed, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2300), refreshed.BalanceCents)
}

func TestApplyValidation(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	user := seedUser(t, repo, 0)

	cases := []struct {
		name  string
		input ApplyInput
	}{
		{
			name: "missing user",
			input: ApplyInput{
				AmountCents: 100,
				Type:        enums.TransactionTypeDeposit,
				Operation:   enums.BalanceOperationAdd,
			},
		},
		{
			name: "negative amount",
			input: ApplyInput{
				UserID:      user.ID,
				AmountCents: -1,
				Type:        enums.TransactionTypeDeposit,
				Operation:   enums.BalanceOperationAdd,
			},
		},
		{
			name: "bad type",
			input: ApplyInput{
				UserID:      user.ID,
				AmountCents: 100,
				Type:        enums.TransactionType("bogus"),
				Operation:   enums.BalanceOperationAdd,
			},
		},
		{
			name: "bad operation",
			input: ApplyInput{
				UserID:      user.ID,
				AmountCents: 100,
				Type:        enums.TransactionTypeDeposit,
				Operation:   enums.BalanceOperation("bogus"),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Apply(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestListByUserPage(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	ctx := context.Background()
	user := seedUser(t, repo, 0)

	for i := 0; i < 5; i++ {
		_, err := svc.Apply(ctx, ApplyInput{
			UserID:      user.ID,
			AmountCents: int64(100 * (i + 1)),
			Type:        enums.TransactionTypeDeposit,
			Operation:   enums.BalanceOperationAdd,
		})
		require.NoError(t, err)
	}

	seen := map[uuid.UUID]struct{}{}
	cursor := ""
	pages := 0
	for {
		page, next, err := svc.ListByUserPage(ctx, user.ID, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		require.NotEmpty(t, page)
		for _, txn := range page {
			_, dup := seen[txn.ID]
			require.False(t, dup, "entry repeated across pages")
			seen[txn.ID] = struct{}{}
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
	}

	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)
}

func TestListByUserPageBadCursor(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupLedgerService(t)
	user := seedUser(t, repo, 0)

	_, _, err := svc.ListByUserPage(context.Background(), user.ID, pagination.Params{Cursor: "%%%not-base64%%%"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
