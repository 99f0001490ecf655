package model

import (
	"time"

	"github.com/google/uuid"
)

// TransitionRecord is one row of an entity's status history.
type TransitionRecord struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id" db:"entity_id"`
	Event      string     `json:"event" db:"event"`
	FromStatus string     `json:"from_status" db:"from_status"`
	ToStatus   string     `json:"to_status" db:"to_status"`
	ActorRole  Role       `json:"actor_role" db:"actor_role"`
	ActorID    uuid.UUID  `json:"actor_id" db:"actor_id"`
	Note       string     `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
