package raffles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rafflehq/rafflehq-backend/pkg/db/models"
	"github.com/rafflehq/rafflehq-backend/pkg/enums"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
)

// Service exposes the raffle operations the engine needs. Admin CRUD
// beyond status transitions lives outside this module.
type Service interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
	Transition(ctx context.Context, id uuid.UUID, to enums.RaffleStatus) (*models.Raffle, error)
}

type service struct {
	repo Repository
}

// NewService wires a raffle service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("raffle repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) Transition(ctx context.Context, id uuid.UUID, to enums.RaffleStatus) (*models.Raffle, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id required")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid raffle status %q", to))
	}
	raffle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, raffle.Status, to); err != nil {
		return nil, err
	}
	raffle.Status = to
	return raffle, nil
}
