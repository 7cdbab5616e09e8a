package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

const defaultPendingPaymentTTL = 30 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingEntryReader interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
}

type entryFailer interface {
	FailInTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (bool, error)
}

type orphanTicketReverser interface {
	ReverseByTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (int, error)
}

// PendingPaymentsJobParams configure the stale payment reaper.
type PendingPaymentsJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Reader  pendingEntryReader
	Ledger  entryFailer
	Tickets orphanTicketReverser
	TTL     time.Duration
	Now     func() time.Time
}

type pendingPaymentsJob struct {
	logg    *logger.Logger
	db      txRunner
	reader  pendingEntryReader
	ledger  entryFailer
	tickets orphanTicketReverser
	ttl     time.Duration
	now     func() time.Time
}

// NewPendingPaymentsJob builds the cron job that fails gateway
// purchases whose provider never answered and reverses any allocation
// left behind by an interrupted settlement.
func NewPendingPaymentsJob(params PendingPaymentsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("pending entry reader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger failer required")
	}
	if params.Tickets == nil {
		return nil, fmt.Errorf("ticket reverser required")
	}
	if params.TTL <= 0 {
		params.TTL = defaultPendingPaymentTTL
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &pendingPaymentsJob{
		logg:    params.Logger,
		db:      params.DB,
		reader:  params.Reader,
		ledger:  params.Ledger,
		tickets: params.Tickets,
		ttl:     params.TTL,
		now:     params.Now,
	}, nil
}

func (j *pendingPaymentsJob) Name() string { return "pending_payments" }

// Run expires every pending ledger entry older than the TTL. Entries
// are handled one per transaction so a single bad row cannot wedge the
// whole sweep.
func (j *pendingPaymentsJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.ttl)
	stale, err := j.reader.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var errs error
	expired := 0
	for _, entry := range stale {
		if err := j.expire(ctx, entry); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", entry.ID, err))
			continue
		}
		expired++
	}

	sweepCtx := j.logg.WithFields(ctx, map[string]any{
		"stale":   len(stale),
		"expired": expired,
	})
	j.logg.Info(sweepCtx, "pending payment sweep complete")
	return errs
}

func (j *pendingPaymentsJob) expire(ctx context.Context, entry models.Transaction) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		failed, err := j.ledger.FailInTx(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		if !failed {
			// Settled between the sweep's read and now; leave it.
			return nil
		}
		reversed, err := j.tickets.ReverseByTransaction(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		if reversed > 0 {
			entryCtx := j.logg.WithTransactionID(ctx, entry.ID.String())
			j.logg.Warn(entryCtx, "reversed orphaned allocation for expired payment")
		}
		return nil
	})
}
