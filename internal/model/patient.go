package model

import (
	"github.com/google/uuid"
)

// PatientSummary is the slice of the patient record the fulfillment views need.
type PatientSummary struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Name  string    `db:"name" json:"name"`
	Phone string    `db:"phone" json:"phone"`
	Email string    `db:"email" json:"email"`
}
