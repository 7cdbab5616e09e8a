package draw

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/internal/tickets"
	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs prize draws. A draw is terminal for its raffle: winners
// are persisted, every live ticket is consumed, and the raffle flips to
// completed, all in one transaction.
type Service interface {
	DrawWinners(ctx context.Context, raffleID uuid.UUID) ([]models.Winner, error)
	ListWinners(ctx context.Context, raffleID uuid.UUID) ([]models.Winner, error)
}

// Params wires a draw service.
type Params struct {
	Runner  txRunner
	Raffles raffles.Repository
	Tickets tickets.Repository
	Winners Repository
	Metrics *metrics.EngineMetrics
	Logger  *logger.Logger
	Rng     func(n int) int
	Now     func() time.Time
}

type service struct {
	runner  txRunner
	raffles raffles.Repository
	tickets tickets.Repository
	winners Repository
	metrics *metrics.EngineMetrics
	logger  *logger.Logger
	rng     func(n int) int
	now     func() time.Time
}

// entry is one ticket number in the draw pool with its owner.
type entry struct {
	userID uuid.UUID
	number int
}

// NewService validates wiring and returns a draw service. Rng and Now
// default to math/rand and wall time; tests inject both.
func NewService(params Params) (Service, error) {
	if params.Runner == nil || params.Raffles == nil || params.Tickets == nil || params.Winners == nil {
		return nil, fmt.Errorf("draw service requires runner, raffle, ticket, and winner wiring")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("draw service requires logger")
	}
	if params.Rng == nil {
		params.Rng = rand.Intn
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		runner:  params.Runner,
		raffles: params.Raffles,
		tickets: params.Tickets,
		winners: params.Winners,
		metrics: params.Metrics,
		logger:  params.Logger,
		rng:     params.Rng,
		now:     params.Now,
	}, nil
}

// DrawWinners selects winners for the raffle and completes it. Calling
// it again returns RAFFLE_COMPLETED; the recorded winners stay exactly
// as drawn.
func (s *service) DrawWinners(ctx context.Context, raffleID uuid.UUID) ([]models.Winner, error) {
	if raffleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id required")
	}
	started := s.now()

	var winners []models.Winner
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		raffleRepo := s.raffles.WithTx(tx)
		ticketRepo := s.tickets.WithTx(tx)

		raffle, err := raffleRepo.FindByID(ctx, raffleID)
		if err != nil {
			return err
		}
		if raffle.Status == enums.RaffleStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeRaffleCompleted, "raffle already drawn")
		}
		if raffle.Status == enums.RaffleStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeRaffleNotActive, "raffle is cancelled")
		}

		live, err := ticketRepo.ListActiveByRaffle(ctx, raffleID)
		if err != nil {
			return err
		}
		pool := flatten(live)
		if len(pool) == 0 {
			return pkgerrors.New(pkgerrors.CodeNoTickets, "no active tickets to draw from")
		}

		winners = s.selectWinners(raffle, pool)
		if len(winners) == 0 {
			return pkgerrors.New(pkgerrors.CodeNoTickets, "no eligible tickets for any prize place")
		}
		if err := s.winners.WithTx(tx).CreateWinners(ctx, winners); err != nil {
			return err
		}
		if _, err := ticketRepo.MarkUsedByRaffle(ctx, raffleID); err != nil {
			return err
		}
		return raffleRepo.UpdateStatus(ctx, raffleID, raffle.Status, enums.RaffleStatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDrawDuration(s.now().Sub(started))
	s.metrics.AddWinnersDrawn(len(winners))
	s.logger.Info(s.logger.WithRaffleID(ctx, raffleID.String()), "draw completed")
	return winners, nil
}

func (s *service) ListWinners(ctx context.Context, raffleID uuid.UUID) ([]models.Winner, error) {
	if raffleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id required")
	}
	return s.winners.ListByRaffle(ctx, raffleID)
}

// selectWinners picks one winner per prize place, or a single winner
// for single-prize raffles. Every pick is uniform over the eligible
// pool and a number can win at most once.
func (s *service) selectWinners(raffle *models.Raffle, pool []entry) []models.Winner {
	winDate := s.now().UTC()

	if !raffle.IsMultiPrize || len(raffle.PrizePlaces) == 0 {
		picked := pool[s.rng(len(pool))]
		return []models.Winner{{
			RaffleID:     raffle.ID,
			UserID:       picked.userID,
			TicketNumber: picked.number,
			WinDate:      winDate,
		}}
	}

	won := make(map[int]struct{}, len(raffle.PrizePlaces))
	var winners []models.Winner
	for _, place := range raffle.PrizePlaces {
		var candidates []entry
		for _, e := range pool {
			if _, taken := won[e.number]; taken {
				continue
			}
			if place.Contains(e.number) {
				candidates = append(candidates, e)
			}
		}
		// A place whose range sold no tickets simply goes unawarded.
		if len(candidates) == 0 {
			continue
		}
		picked := candidates[s.rng(len(candidates))]
		won[picked.number] = struct{}{}
		placeCopy := place.Place
		winners = append(winners, models.Winner{
			RaffleID:     raffle.ID,
			UserID:       picked.userID,
			TicketNumber: picked.number,
			Place:        &placeCopy,
			PrizeTitle:   place.PrizeTitle,
			WinDate:      winDate,
		})
	}
	return winners
}

func flatten(live []models.Ticket) []entry {
	var pool []entry
	for _, ticket := range live {
		for _, n := range ticket.Numbers {
			pool = append(pool, entry{userID: ticket.UserID, number: n.Number})
		}
	}
	return pool
}
