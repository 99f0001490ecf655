package model

import (
	"time"

	"github.com/google/uuid"
)

type AutoRefillConfig struct {
	Base
	Version         int         `db:"version" json:"version"`
	PrescriptionID  uuid.UUID   `db:"prescription_id" json:"prescription_id"`
	PatientID       uuid.UUID   `db:"patient_id" json:"patient_id"`
	IntervalDays    int         `db:"interval_days" json:"interval_days"`
	NextRefillDate  time.Time   `db:"next_refill_date" json:"next_refill_date"`
	IsActive        bool        `db:"is_active" json:"is_active"`
	LastFiredFor    *time.Time  `db:"last_fired_for" json:"last_fired_for,omitempty"`
	DeliveryAddress string      `db:"delivery_address" json:"delivery_address"`
	Pincode         string      `db:"pincode" json:"pincode"`
	City            string      `db:"city" json:"city"`
	Medications     Medications `db:"medications" json:"medications"`
	CancelledAt     *time.Time  `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

func (c *AutoRefillConfig) Clone() *AutoRefillConfig {
	out := *c
	out.LastFiredFor = cloneTime(c.LastFiredFor)
	out.Medications = c.Medications.Clone()
	out.CancelledAt = cloneTime(c.CancelledAt)
	return &out
}

// RefillStatus is the read model returned to patients and admins.
type RefillStatus struct {
	ConfigID       uuid.UUID  `json:"config_id"`
	PrescriptionID uuid.UUID  `json:"prescription_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	IntervalDays   int        `json:"interval_days"`
	NextRefillDate time.Time  `json:"next_refill_date"`
	IsActive       bool       `json:"is_active"`
	LastFiredFor   *time.Time `json:"last_fired_for,omitempty"`
	Due            bool       `json:"due"`
}
