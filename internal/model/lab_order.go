package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type LabOrderStatus string

const (
	LabOrderOrdered              LabOrderStatus = "ORDERED"
	LabOrderSlotBooked           LabOrderStatus = "SLOT_BOOKED"
	LabOrderPhlebotomistAssigned LabOrderStatus = "PHLEBOTOMIST_ASSIGNED"
	LabOrderPhlebotomistEnRoute  LabOrderStatus = "PHLEBOTOMIST_EN_ROUTE"
	LabOrderSampleCollected      LabOrderStatus = "SAMPLE_COLLECTED"
	LabOrderCollectionFailed     LabOrderStatus = "COLLECTION_FAILED"
	LabOrderSampleInTransit      LabOrderStatus = "SAMPLE_IN_TRANSIT"
	LabOrderSampleReceived       LabOrderStatus = "SAMPLE_RECEIVED"
	LabOrderProcessing           LabOrderStatus = "PROCESSING"
	LabOrderResultsUploaded      LabOrderStatus = "RESULTS_UPLOADED"
	LabOrderDoctorReviewed       LabOrderStatus = "DOCTOR_REVIEWED"
	LabOrderClosed               LabOrderStatus = "CLOSED"
	LabOrderCancelled            LabOrderStatus = "CANCELLED"
	LabOrderExpired              LabOrderStatus = "EXPIRED"
)

var LabOrderStatuses = []LabOrderStatus{
	LabOrderOrdered, LabOrderSlotBooked, LabOrderPhlebotomistAssigned, LabOrderPhlebotomistEnRoute,
	LabOrderSampleCollected, LabOrderCollectionFailed, LabOrderSampleInTransit, LabOrderSampleReceived,
	LabOrderProcessing, LabOrderResultsUploaded, LabOrderDoctorReviewed, LabOrderClosed,
	LabOrderCancelled, LabOrderExpired,
}

type LabOrderEvent string

const (
	LabOrderBookSlot             LabOrderEvent = "BOOK_SLOT"
	LabOrderReschedule           LabOrderEvent = "RESCHEDULE"
	LabOrderAssignPhlebotomist   LabOrderEvent = "ASSIGN_PHLEBOTOMIST"
	LabOrderReassignPhlebotomist LabOrderEvent = "REASSIGN_PHLEBOTOMIST"
	LabOrderStartRoute           LabOrderEvent = "START_ROUTE"
	LabOrderCollectSample        LabOrderEvent = "COLLECT_SAMPLE"
	LabOrderFailCollection       LabOrderEvent = "FAIL_COLLECTION"
	LabOrderDispatchSample       LabOrderEvent = "DISPATCH_SAMPLE"
	LabOrderReceiveSample        LabOrderEvent = "RECEIVE_SAMPLE"
	LabOrderStartProcessing      LabOrderEvent = "START_PROCESSING"
	LabOrderUploadResults        LabOrderEvent = "UPLOAD_RESULTS"
	LabOrderReviewResults        LabOrderEvent = "REVIEW_RESULTS"
	LabOrderClose                LabOrderEvent = "CLOSE"
	LabOrderCancel               LabOrderEvent = "CANCEL"
	LabOrderExpire               LabOrderEvent = "EXPIRE"
)

var LabOrderEvents = []LabOrderEvent{
	LabOrderBookSlot, LabOrderReschedule, LabOrderAssignPhlebotomist, LabOrderReassignPhlebotomist,
	LabOrderStartRoute, LabOrderCollectSample, LabOrderFailCollection, LabOrderDispatchSample,
	LabOrderReceiveSample, LabOrderStartProcessing, LabOrderUploadResults, LabOrderReviewResults,
	LabOrderClose, LabOrderCancel, LabOrderExpire,
}

type LabOrder struct {
	Base
	Version        int            `db:"version" json:"version"`
	ConsultationID uuid.UUID      `db:"consultation_id" json:"consultation_id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	PanelName      string         `db:"panel_name" json:"panel_name"`
	TestPanel      pq.StringArray `db:"test_panel" json:"test_panel"`
	Status         LabOrderStatus `db:"status" json:"status"`

	// BookedDate is the civil collection date (midnight UTC); BookedAt is the slot start instant.
	BookedDate     *time.Time `db:"booked_date" json:"booked_date,omitempty"`
	BookedTimeSlot *string    `db:"booked_time_slot" json:"booked_time_slot,omitempty"`
	BookedAt       *time.Time `db:"booked_at" json:"booked_at,omitempty"`

	CollectionAddress string `db:"collection_address" json:"collection_address"`
	Pincode           string `db:"pincode" json:"pincode"`
	City              string `db:"city" json:"city"`
	Area              string `db:"area" json:"area"`

	PhlebotomistID         *uuid.UUID `db:"phlebotomist_id" json:"phlebotomist_id,omitempty"`
	PhlebotomistAssignedAt *time.Time `db:"phlebotomist_assigned_at" json:"phlebotomist_assigned_at,omitempty"`
	LabID                  *uuid.UUID `db:"lab_id" json:"lab_id,omitempty"`
	LabAssignedAt          *time.Time `db:"lab_assigned_at" json:"lab_assigned_at,omitempty"`

	ResultFileURL  *string `db:"result_file_url" json:"result_file_url,omitempty"`
	CriticalValues bool    `db:"critical_values" json:"critical_values"`

	OrderedAt         time.Time  `db:"ordered_at" json:"ordered_at"`
	SlotBookedAt      *time.Time `db:"slot_booked_at" json:"slot_booked_at,omitempty"`
	SampleCollectedAt *time.Time `db:"sample_collected_at" json:"sample_collected_at,omitempty"`
	ResultsUploadedAt *time.Time `db:"results_uploaded_at" json:"results_uploaded_at,omitempty"`
	DoctorReviewedAt  *time.Time `db:"doctor_reviewed_at" json:"doctor_reviewed_at,omitempty"`
	ClosedAt          *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CancelledAt       *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	CancelReason  *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	ParkedAt      *time.Time `db:"parked_at" json:"parked_at,omitempty"`
	ParkedReason  *string    `db:"parked_reason" json:"parked_reason,omitempty"`
}

// Location returns the serviceability key used by the allocator.
func (o *LabOrder) Location() Area {
	return Area{Pincode: o.Pincode, City: o.City}
}

func (o *LabOrder) Clone() *LabOrder {
	out := *o
	out.TestPanel = cloneStrings(o.TestPanel)
	out.BookedDate = cloneTime(o.BookedDate)
	out.BookedTimeSlot = cloneString(o.BookedTimeSlot)
	out.BookedAt = cloneTime(o.BookedAt)
	out.PhlebotomistID = cloneUUID(o.PhlebotomistID)
	out.PhlebotomistAssignedAt = cloneTime(o.PhlebotomistAssignedAt)
	out.LabID = cloneUUID(o.LabID)
	out.LabAssignedAt = cloneTime(o.LabAssignedAt)
	out.ResultFileURL = cloneString(o.ResultFileURL)
	out.SlotBookedAt = cloneTime(o.SlotBookedAt)
	out.SampleCollectedAt = cloneTime(o.SampleCollectedAt)
	out.ResultsUploadedAt = cloneTime(o.ResultsUploadedAt)
	out.DoctorReviewedAt = cloneTime(o.DoctorReviewedAt)
	out.ClosedAt = cloneTime(o.ClosedAt)
	out.CancelledAt = cloneTime(o.CancelledAt)
	out.FailureReason = cloneString(o.FailureReason)
	out.CancelReason = cloneString(o.CancelReason)
	out.ParkedAt = cloneTime(o.ParkedAt)
	out.ParkedReason = cloneString(o.ParkedReason)
	return &out
}

// Park marks the order as waiting for manual allocation.
func (o *LabOrder) Park(reason string, at time.Time) {
	if o.ParkedAt == nil {
		o.ParkedAt = &at
	}
	o.ParkedReason = &reason
}

func (o *LabOrder) Unpark() {
	o.ParkedAt = nil
	o.ParkedReason = nil
}

// LabOrderFilter drives range queries over lab orders.
type LabOrderFilter struct {
	ConsultationID *uuid.UUID
	PhlebotomistID *uuid.UUID
	LabID          *uuid.UUID
	BookedDate     *time.Time
	Statuses       []LabOrderStatus
	Unassigned     bool
	NoLab          bool
	Parked         bool
}
