package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/internal/ledger"
	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/internal/tickets"
	"github.com/rafflehq/rafflehq-backend/pkg/config"
	"github.com/rafflehq/rafflehq-backend/pkg/db"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/metrics"
)

const allocationRetryDelay = 25 * time.Millisecond

// Input describes a ticket purchase request.
type Input struct {
	RaffleID uuid.UUID
	UserID   uuid.UUID
	Quantity int
}

// Result is a finished purchase: the ledger entry, the ticket, and the
// numbers it claimed.
type Result struct {
	Transaction *models.Transaction
	Ticket      *models.Ticket
	Numbers     []int
	TotalCents  int64
}

// GatewayIntent is a purchase waiting on an external payment provider.
// No tickets exist yet; allocation happens when the provider confirms.
type GatewayIntent struct {
	TransactionID uuid.UUID
	Reference     string
	TotalCents    int64
}

// PaymentEvent is a provider callback about a pending purchase.
type PaymentEvent struct {
	TransactionID uuid.UUID
	Succeeded     bool
	ProviderRef   string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service orchestrates purchases across the raffle, ticket, and ledger
// modules. Balance-funded purchases debit and allocate in one database
// transaction; gateway-funded purchases go through a pending ledger
// entry first.
type Service interface {
	Purchase(ctx context.Context, input Input) (*Result, error)
	BeginGatewayPurchase(ctx context.Context, input Input) (*GatewayIntent, error)
	ConfirmPayment(ctx context.Context, event PaymentEvent) (*Result, error)
}

// Params wires a purchase service.
type Params struct {
	Runner    txRunner
	Raffles   raffles.Repository
	Tickets   tickets.Repository
	Allocator *tickets.Allocator
	Ledger    ledger.Service
	Config    config.EngineConfig
	Metrics   *metrics.EngineMetrics
	Logger    *logger.Logger
}

type service struct {
	runner    txRunner
	raffles   raffles.Repository
	tickets   tickets.Repository
	allocator *tickets.Allocator
	ledger    ledger.Service
	cfg       config.EngineConfig
	metrics   *metrics.EngineMetrics
	logger    *logger.Logger
}

// NewService validates wiring and returns a purchase service.
func NewService(params Params) (Service, error) {
	switch {
	case params.Runner == nil:
		return nil, fmt.Errorf("purchase service requires tx runner")
	case params.Raffles == nil || params.Tickets == nil || params.Allocator == nil:
		return nil, fmt.Errorf("purchase service requires raffle, ticket, and allocator wiring")
	case params.Ledger == nil:
		return nil, fmt.Errorf("purchase service requires ledger service")
	case params.Logger == nil:
		return nil, fmt.Errorf("purchase service requires logger")
	}
	if params.Config.AllocationMaxRetries < 1 {
		params.Config.AllocationMaxRetries = 1
	}
	if params.Config.MaxTicketsPerPurchase < 1 {
		params.Config.MaxTicketsPerPurchase = 1
	}
	return &service{
		runner:    params.Runner,
		raffles:   params.Raffles,
		tickets:   params.Tickets,
		allocator: params.Allocator,
		ledger:    params.Ledger,
		cfg:       params.Config,
		metrics:   params.Metrics,
		logger:    params.Logger,
	}, nil
}

// Purchase runs a balance-funded purchase. The debit, the capacity
// reservation, the ticket, and its numbers all commit together; any
// failure rolls the whole attempt back. Lost number races retry up to
// the configured bound before surfacing ALLOCATION_FAILED.
func (s *service) Purchase(ctx context.Context, input Input) (*Result, error) {
	raffle, total, err := s.validatePurchase(ctx, input)
	if err != nil {
		s.metrics.IncPurchase("rejected")
		return nil, err
	}

	policy := ledger.DebitStrict
	if s.cfg.ClampPurchaseDebits {
		policy = ledger.DebitClamp
	}

	result, err := s.allocateWithRetry(ctx, raffle, input, func(tx *gorm.DB) (*models.Transaction, error) {
		return s.ledger.ApplyInTx(ctx, tx, ledger.ApplyInput{
			UserID:      input.UserID,
			RaffleID:    &raffle.ID,
			AmountCents: total,
			Type:        enums.TransactionTypePurchase,
			Operation:   enums.BalanceOperationSubtract,
			Policy:      policy,
			Metadata: ledger.PurchaseMetadata{
				RaffleID: raffle.ID,
				Quantity: input.Quantity,
			},
		})
	})
	if err != nil {
		s.metrics.IncPurchase(outcomeFor(err))
		return nil, err
	}
	result.TotalCents = total
	s.metrics.IncPurchase("completed")
	return result, nil
}

// BeginGatewayPurchase records a pending ledger entry for an externally
// funded purchase and hands back the provider reference. Capacity is
// only advisory here; the hard reservation happens at confirmation.
func (s *service) BeginGatewayPurchase(ctx context.Context, input Input) (*GatewayIntent, error) {
	raffle, total, err := s.validatePurchase(ctx, input)
	if err != nil {
		s.metrics.IncPurchase("rejected")
		return nil, err
	}
	if raffle.TicketsRemaining() < input.Quantity {
		s.metrics.IncPurchase("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeCapacityExceeded, "not enough tickets remaining").
			WithDetails(map[string]any{
				"requested": input.Quantity,
				"remaining": raffle.TicketsRemaining(),
			})
	}

	reference := uuid.NewString()
	txn, err := s.ledger.CreatePending(ctx, ledger.PendingInput{
		UserID:      input.UserID,
		RaffleID:    &raffle.ID,
		AmountCents: total,
		Type:        enums.TransactionTypePurchase,
		Operation:   enums.BalanceOperationSubtract,
		ProviderRef: &reference,
		Metadata: ledger.GatewayMetadata{
			Provider:  "external",
			Reference: reference,
			RaffleID:  raffle.ID,
			Quantity:  input.Quantity,
		},
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logger.WithTransactionID(s.logger.WithRaffleID(ctx, raffle.ID.String()), txn.ID.String())
	s.logger.Info(logCtx, "gateway purchase pending")
	return &GatewayIntent{
		TransactionID: txn.ID,
		Reference:     reference,
		TotalCents:    total,
	}, nil
}

// ConfirmPayment settles a pending gateway purchase. Duplicate
// deliveries are detected through the entry's status and acknowledged
// without re-allocating. A confirmed payment that can no longer be
// honored (capacity gone) is refunded to the wallet instead.
func (s *service) ConfirmPayment(ctx context.Context, event PaymentEvent) (*Result, error) {
	txn, err := s.ledger.GetTransaction(ctx, event.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsTerminal() {
		return s.resultForSettled(ctx, txn)
	}

	meta, err := gatewayMetadata(txn)
	if err != nil {
		return nil, err
	}

	if !event.Succeeded {
		if _, err := s.ledger.Fail(ctx, txn.ID); err != nil {
			return nil, err
		}
		s.metrics.IncPurchase("payment_failed")
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment declined by provider")
	}

	raffle, err := s.raffles.FindByID(ctx, meta.RaffleID)
	if err != nil {
		return nil, err
	}

	input := Input{RaffleID: raffle.ID, UserID: txn.UserID, Quantity: meta.Quantity}
	result, err := s.allocateWithRetry(ctx, raffle, input, func(tx *gorm.DB) (*models.Transaction, error) {
		// The provider already took the money: credit it to the
		// wallet, then complete the pending debit against it. Net
		// balance change is zero and the ledger stays replayable.
		if _, cerr := s.ledger.ApplyInTx(ctx, tx, ledger.ApplyInput{
			UserID:      txn.UserID,
			RaffleID:    &raffle.ID,
			AmountCents: txn.AmountCents,
			Type:        enums.TransactionTypeDeposit,
			Operation:   enums.BalanceOperationAdd,
			ProviderRef: txn.ProviderRef,
			Metadata:    *meta,
		}); cerr != nil {
			return nil, cerr
		}
		settled, applied, cerr := s.ledger.CompleteInTx(ctx, tx, txn.ID, ledger.DebitStrict)
		if cerr != nil {
			return nil, cerr
		}
		if !applied {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction settled concurrently")
		}
		return settled, nil
	})
	if err != nil {
		return nil, s.refundUnfulfillable(ctx, txn, meta, err)
	}
	result.TotalCents = txn.AmountCents
	s.metrics.IncPurchase("completed")
	return result, nil
}

// allocateWithRetry runs one purchase transaction per attempt: reserve
// capacity, pick numbers, settle money through settle, insert the
// ticket. A lost number race rolls everything back and retries.
func (s *service) allocateWithRetry(ctx context.Context, raffle *models.Raffle, input Input, settle func(tx *gorm.DB) (*models.Transaction, error)) (*Result, error) {
	backoff := retry.WithMaxRetries(uint64(s.cfg.AllocationMaxRetries-1), retry.NewConstant(allocationRetryDelay))

	var result *Result
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptErr := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			numbers, aerr := s.allocator.Allocate(ctx, tx, raffle, input.Quantity)
			if aerr != nil {
				return aerr
			}
			txn, serr := settle(tx)
			if serr != nil {
				return serr
			}
			ticket := &models.Ticket{
				RaffleID:      raffle.ID,
				UserID:        input.UserID,
				TransactionID: txn.ID,
			}
			for _, n := range numbers {
				ticket.Numbers = append(ticket.Numbers, models.TicketNumber{Number: n})
			}
			if cerr := s.tickets.WithTx(tx).Create(ctx, ticket); cerr != nil {
				if db.IsUniqueViolation(cerr, "idx_raffle_number") {
					return pkgerrors.Wrap(pkgerrors.CodeAllocationConflict, cerr, "ticket number taken")
				}
				return cerr
			}
			result = &Result{Transaction: txn, Ticket: ticket, Numbers: numbers}
			return nil
		})
		if attemptErr != nil && pkgerrors.IsRetryable(attemptErr) {
			s.metrics.IncAllocationRetry()
			s.logger.Warn(s.logger.WithRaffleID(ctx, raffle.ID.String()), "allocation attempt lost race")
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAllocationFailed, err, "allocation retries exhausted")
		}
		return nil, err
	}
	return result, nil
}

func (s *service) validatePurchase(ctx context.Context, input Input) (*models.Raffle, int64, error) {
	if input.RaffleID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "raffle id and user id required")
	}
	if input.Quantity < 1 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if input.Quantity > s.cfg.MaxTicketsPerPurchase {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity above per-purchase ceiling").
			WithDetails(map[string]any{"max": s.cfg.MaxTicketsPerPurchase})
	}
	raffle, err := s.raffles.FindByID(ctx, input.RaffleID)
	if err != nil {
		return nil, 0, err
	}
	if raffle.Status != enums.RaffleStatusActive {
		return nil, 0, pkgerrors.New(pkgerrors.CodeRaffleNotActive, "raffle is not active").
			WithDetails(map[string]any{"status": raffle.Status.String()})
	}

	total := decimal.NewFromInt(raffle.PriceCents).
		Mul(decimal.NewFromInt(int64(input.Quantity)))
	if !total.BigInt().IsInt64() {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "purchase total too large")
	}
	return raffle, total.IntPart(), nil
}

// resultForSettled rebuilds the response for a duplicate confirmation
// of an already-settled purchase.
func (s *service) resultForSettled(ctx context.Context, txn *models.Transaction) (*Result, error) {
	if txn.Status == enums.TransactionStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment already marked failed")
	}
	existing, err := s.tickets.ListByTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	result := &Result{Transaction: txn, TotalCents: txn.AmountCents}
	if len(existing) > 0 {
		result.Ticket = &existing[0]
		result.Numbers = existing[0].NumberValues()
	}
	return result, nil
}

// refundUnfulfillable settles a paid-for purchase that lost its
// capacity: the money lands on the wallet as a deposit and the pending
// debit is failed, so the ledger still accounts for every cent.
func (s *service) refundUnfulfillable(ctx context.Context, txn *models.Transaction, meta *ledger.GatewayMetadata, cause error) error {
	if pkgerrors.HasCode(cause, pkgerrors.CodeConflict) {
		// Another delivery settled it first; nothing to refund.
		return cause
	}
	refundErr := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ledger.ApplyInTx(ctx, tx, ledger.ApplyInput{
			UserID:      txn.UserID,
			RaffleID:    txn.RaffleID,
			AmountCents: txn.AmountCents,
			Type:        enums.TransactionTypeDeposit,
			Operation:   enums.BalanceOperationAdd,
			ProviderRef: txn.ProviderRef,
			Metadata:    *meta,
		}); err != nil {
			return err
		}
		if _, err := s.ledger.FailInTx(ctx, tx, txn.ID); err != nil {
			return err
		}
		return nil
	})
	if refundErr != nil {
		s.logger.Error(ctx, "refund after unfulfillable purchase failed", refundErr)
		return refundErr
	}
	s.metrics.IncPurchase("refunded")
	return cause
}

func gatewayMetadata(txn *models.Transaction) (*ledger.GatewayMetadata, error) {
	decoded, err := ledger.DecodeMetadata(txn.Metadata)
	if err != nil {
		return nil, err
	}
	meta, ok := decoded.(ledger.GatewayMetadata)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction is not a gateway purchase")
	}
	return &meta, nil
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds):
		return "insufficient_funds"
	case pkgerrors.HasCode(err, pkgerrors.CodeCapacityExceeded):
		return "capacity_exceeded"
	case pkgerrors.HasCode(err, pkgerrors.CodeAllocationFailed):
		return "allocation_failed"
	default:
		return "error"
	}
}
