package event

import (
	"context"
	"fmt"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
)

// Journal writes the history row and the outbox rows that go with one state change. It
// must run inside the transaction that persists the entity.
func Journal(ctx context.Context, tx repository.Store, rec *model.TransitionRecord, events ...*model.DomainEvent) error {
	if rec != nil {
		if err := tx.Audit().Create(ctx, rec); err != nil {
			return fmt.Errorf("failed to record transition: %w", err)
		}
	}
	for _, evt := range events {
		row, err := evt.ToOutbox()
		if err != nil {
			return err
		}
		if err := tx.Outbox().Create(ctx, row); err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
	}
	return nil
}

// Transition builds the history row for a change made by actor.
func Transition(entityType model.EntityType, evt *model.DomainEvent, note string) *model.TransitionRecord {
	rec := &model.TransitionRecord{
		EntityType: entityType,
		EntityID:   evt.EntityID,
		Event:      evt.Event,
		FromStatus: evt.From,
		ToStatus:   evt.To,
		ActorRole:  evt.Actor.Role,
		ActorID:    evt.Actor.ID,
		Note:       note,
		CreatedAt:  evt.OccurredAt,
	}
	if rec.Event == "" {
		rec.Event = "CREATE"
	}
	return rec
}
