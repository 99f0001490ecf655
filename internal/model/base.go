package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EntityType names the aggregates the fulfillment engine tracks.
type EntityType string

const (
	EntityConsultation  EntityType = "CONSULTATION"
	EntityLabOrder      EntityType = "LAB_ORDER"
	EntityPharmacyOrder EntityType = "PHARMACY_ORDER"
	EntityRefillConfig  EntityType = "REFILL_CONFIG"
	EntityPartner       EntityType = "PARTNER"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityConsultation, EntityLabOrder, EntityPharmacyOrder, EntityRefillConfig, EntityPartner:
		return true
	}
	return false
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
