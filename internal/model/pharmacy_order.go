package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PharmacyOrderStatus string

const (
	PharmacyPrescriptionCreated PharmacyOrderStatus = "PRESCRIPTION_CREATED"
	PharmacySentToPharmacy      PharmacyOrderStatus = "SENT_TO_PHARMACY"
	PharmacyAccepted            PharmacyOrderStatus = "ACCEPTED"
	PharmacyPreparing           PharmacyOrderStatus = "PHARMACY_PREPARING"
	PharmacyReady               PharmacyOrderStatus = "PHARMACY_READY"
	PharmacyPickupArranged      PharmacyOrderStatus = "PICKUP_ARRANGED"
	PharmacyOutForDelivery      PharmacyOrderStatus = "OUT_FOR_DELIVERY"
	PharmacyDelivered           PharmacyOrderStatus = "DELIVERED"
	PharmacyIssue               PharmacyOrderStatus = "PHARMACY_ISSUE"
	PharmacyDeliveryFailed      PharmacyOrderStatus = "DELIVERY_FAILED"
	PharmacyCancelled           PharmacyOrderStatus = "CANCELLED"
	PharmacyReturned            PharmacyOrderStatus = "RETURNED"
)

var PharmacyOrderStatuses = []PharmacyOrderStatus{
	PharmacyPrescriptionCreated, PharmacySentToPharmacy, PharmacyAccepted, PharmacyPreparing,
	PharmacyReady, PharmacyPickupArranged, PharmacyOutForDelivery, PharmacyDelivered,
	PharmacyIssue, PharmacyDeliveryFailed, PharmacyCancelled, PharmacyReturned,
}

// rank orders the forward pipeline; side states rank 0.
var pharmacyRank = map[PharmacyOrderStatus]int{
	PharmacyPrescriptionCreated: 1,
	PharmacySentToPharmacy:      2,
	PharmacyAccepted:            3,
	PharmacyPreparing:           4,
	PharmacyReady:               5,
	PharmacyPickupArranged:      6,
	PharmacyOutForDelivery:      7,
	PharmacyDelivered:           8,
}

// AtLeast reports whether s is at or past other on the forward pipeline.
func (s PharmacyOrderStatus) AtLeast(other PharmacyOrderStatus) bool {
	return pharmacyRank[s] >= pharmacyRank[other] && pharmacyRank[s] > 0
}

type PharmacyOrderEvent string

const (
	PharmacySendToPharmacy    PharmacyOrderEvent = "SEND_TO_PHARMACY"
	PharmacyAccept            PharmacyOrderEvent = "ACCEPT"
	PharmacyStartPreparing    PharmacyOrderEvent = "START_PREPARING"
	PharmacyMarkReady         PharmacyOrderEvent = "MARK_READY"
	PharmacyArrangePickup     PharmacyOrderEvent = "ARRANGE_PICKUP"
	PharmacyDispatch          PharmacyOrderEvent = "DISPATCH"
	PharmacyDeliver           PharmacyOrderEvent = "DELIVER"
	PharmacyReportIssue       PharmacyOrderEvent = "REPORT_ISSUE"
	PharmacyFailDelivery      PharmacyOrderEvent = "FAIL_DELIVERY"
	PharmacyReassignPharmacy  PharmacyOrderEvent = "REASSIGN_PHARMACY"
	PharmacyRearrangeDelivery PharmacyOrderEvent = "REARRANGE_DELIVERY"
	PharmacyCancel            PharmacyOrderEvent = "CANCEL"
	PharmacyReturn            PharmacyOrderEvent = "RETURN"
)

var PharmacyOrderEvents = []PharmacyOrderEvent{
	PharmacySendToPharmacy, PharmacyAccept, PharmacyStartPreparing, PharmacyMarkReady,
	PharmacyArrangePickup, PharmacyDispatch, PharmacyDeliver, PharmacyReportIssue,
	PharmacyFailDelivery, PharmacyReassignPharmacy, PharmacyRearrangeDelivery, PharmacyCancel,
	PharmacyReturn,
}

type Medication struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Quantity int    `json:"quantity"`
}

// Medications is stored as a JSONB array.
type Medications []Medication

func (m Medications) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *Medications) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported medications type %T", src)
	}
	return json.Unmarshal(data, m)
}

func (m Medications) Clone() Medications {
	if m == nil {
		return nil
	}
	out := make(Medications, len(m))
	copy(out, m)
	return out
}

type PharmacyOrder struct {
	Base
	Version        int                 `db:"version" json:"version"`
	PrescriptionID uuid.UUID           `db:"prescription_id" json:"prescription_id"`
	PatientID      uuid.UUID           `db:"patient_id" json:"patient_id"`
	PharmacyID     *uuid.UUID          `db:"pharmacy_id" json:"pharmacy_id,omitempty"`
	RefillConfigID *uuid.UUID          `db:"refill_config_id" json:"refill_config_id,omitempty"`
	Status         PharmacyOrderStatus `db:"status" json:"status"`

	DeliveryAddress string      `db:"delivery_address" json:"delivery_address"`
	Pincode         string      `db:"pincode" json:"pincode"`
	City            string      `db:"city" json:"city"`
	Medications     Medications `db:"medications" json:"medications"`

	DeliveryPersonName  *string `db:"delivery_person_name" json:"delivery_person_name,omitempty"`
	DeliveryPersonPhone *string `db:"delivery_person_phone" json:"delivery_person_phone,omitempty"`

	AssignedAt       *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	AcceptedAt       *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	PreparingAt      *time.Time `db:"preparing_at" json:"preparing_at,omitempty"`
	ReadyForPickupAt *time.Time `db:"ready_for_pickup_at" json:"ready_for_pickup_at,omitempty"`
	DispatchedAt     *time.Time `db:"dispatched_at" json:"dispatched_at,omitempty"`
	DeliveredAt      *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`

	IssueReason   *string    `db:"issue_reason" json:"issue_reason,omitempty"`
	IssuePhotoURL *string    `db:"issue_photo_url" json:"issue_photo_url,omitempty"`
	CancelReason  *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	ParkedAt      *time.Time `db:"parked_at" json:"parked_at,omitempty"`
	ParkedReason  *string    `db:"parked_reason" json:"parked_reason,omitempty"`
}

func (o *PharmacyOrder) Location() Area {
	return Area{Pincode: o.Pincode, City: o.City}
}

// HasDeliveryPerson reports whether both name and phone are present.
func (o *PharmacyOrder) HasDeliveryPerson() bool {
	return o.DeliveryPersonName != nil && *o.DeliveryPersonName != "" &&
		o.DeliveryPersonPhone != nil && *o.DeliveryPersonPhone != ""
}

func (o *PharmacyOrder) Clone() *PharmacyOrder {
	out := *o
	out.PharmacyID = cloneUUID(o.PharmacyID)
	out.RefillConfigID = cloneUUID(o.RefillConfigID)
	out.Medications = o.Medications.Clone()
	out.DeliveryPersonName = cloneString(o.DeliveryPersonName)
	out.DeliveryPersonPhone = cloneString(o.DeliveryPersonPhone)
	out.AssignedAt = cloneTime(o.AssignedAt)
	out.AcceptedAt = cloneTime(o.AcceptedAt)
	out.PreparingAt = cloneTime(o.PreparingAt)
	out.ReadyForPickupAt = cloneTime(o.ReadyForPickupAt)
	out.DispatchedAt = cloneTime(o.DispatchedAt)
	out.DeliveredAt = cloneTime(o.DeliveredAt)
	out.IssueReason = cloneString(o.IssueReason)
	out.IssuePhotoURL = cloneString(o.IssuePhotoURL)
	out.CancelReason = cloneString(o.CancelReason)
	out.ParkedAt = cloneTime(o.ParkedAt)
	out.ParkedReason = cloneString(o.ParkedReason)
	return &out
}

func (o *PharmacyOrder) Park(reason string, at time.Time) {
	if o.ParkedAt == nil {
		o.ParkedAt = &at
	}
	o.ParkedReason = &reason
}

func (o *PharmacyOrder) Unpark() {
	o.ParkedAt = nil
	o.ParkedReason = nil
}

type PharmacyOrderFilter struct {
	PharmacyID *uuid.UUID
	Statuses   []PharmacyOrderStatus
	AssignedOn *time.Time
	Parked     bool
}
