package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// Service serves the transition history of fulfillment entities.
type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

// History returns the transitions of one entity, oldest first.
func (s *Service) History(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) ([]*model.TransitionRecord, error) {
	if !entityType.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown entity type %q", entityType), nil)
	}
	records, err := s.repo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	if records == nil {
		records = []*model.TransitionRecord{}
	}
	return records, nil
}
