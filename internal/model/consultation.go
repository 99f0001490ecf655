package model

import (
	"time"

	"github.com/google/uuid"
)

type Vertical string

const (
	VerticalHairLoss         Vertical = "HAIR_LOSS"
	VerticalSexualHealth     Vertical = "SEXUAL_HEALTH"
	VerticalPCOS             Vertical = "PCOS"
	VerticalWeightManagement Vertical = "WEIGHT_MANAGEMENT"
)

func (v Vertical) Valid() bool {
	switch v {
	case VerticalHairLoss, VerticalSexualHealth, VerticalPCOS, VerticalWeightManagement:
		return true
	}
	return false
}

type ConsultationStatus string

const (
	ConsultationPendingAssessment ConsultationStatus = "PENDING_ASSESSMENT"
	ConsultationAIReviewed        ConsultationStatus = "AI_REVIEWED"
	ConsultationDoctorReviewing   ConsultationStatus = "DOCTOR_REVIEWING"
	ConsultationNeedsInfo         ConsultationStatus = "NEEDS_INFO"
	ConsultationAwaitingLabs      ConsultationStatus = "AWAITING_LABS"
	ConsultationVideoScheduled    ConsultationStatus = "VIDEO_SCHEDULED"
	ConsultationApproved          ConsultationStatus = "APPROVED"
	ConsultationRejected          ConsultationStatus = "REJECTED"
)

var ConsultationStatuses = []ConsultationStatus{
	ConsultationPendingAssessment, ConsultationAIReviewed, ConsultationDoctorReviewing,
	ConsultationNeedsInfo, ConsultationAwaitingLabs, ConsultationVideoScheduled,
	ConsultationApproved, ConsultationRejected,
}

type ConsultationEvent string

const (
	ConsultationCompleteAIAssessment ConsultationEvent = "COMPLETE_AI_ASSESSMENT"
	ConsultationClaim                ConsultationEvent = "CLAIM"
	ConsultationApprove              ConsultationEvent = "APPROVE"
	ConsultationReject               ConsultationEvent = "REJECT"
	ConsultationRequestInfo          ConsultationEvent = "REQUEST_INFO"
	ConsultationPatientReplied       ConsultationEvent = "PATIENT_REPLIED"
	ConsultationOrderLabs            ConsultationEvent = "ORDER_LABS"
	ConsultationLabResultsReady      ConsultationEvent = "LAB_RESULTS_READY"
	ConsultationScheduleVideo        ConsultationEvent = "SCHEDULE_VIDEO"
)

var ConsultationEvents = []ConsultationEvent{
	ConsultationCompleteAIAssessment, ConsultationClaim, ConsultationApprove, ConsultationReject,
	ConsultationRequestInfo, ConsultationPatientReplied, ConsultationOrderLabs,
	ConsultationLabResultsReady, ConsultationScheduleVideo,
}

type Consultation struct {
	Base
	Version             int                `db:"version" json:"version"`
	PatientID           uuid.UUID          `db:"patient_id" json:"patient_id"`
	Vertical            Vertical           `db:"vertical" json:"vertical"`
	Status              ConsultationStatus `db:"status" json:"status"`
	DoctorID            *uuid.UUID         `db:"doctor_id" json:"doctor_id,omitempty"`
	LabResultsAvailable bool               `db:"lab_results_available" json:"lab_results_available"`
	ClaimedAt           *time.Time         `db:"claimed_at" json:"claimed_at,omitempty"`
	InfoRequestedAt     *time.Time         `db:"info_requested_at" json:"info_requested_at,omitempty"`
	DecidedAt           *time.Time         `db:"decided_at" json:"decided_at,omitempty"`
	RejectionReason     *string            `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

func (c *Consultation) Clone() *Consultation {
	out := *c
	out.DoctorID = cloneUUID(c.DoctorID)
	out.ClaimedAt = cloneTime(c.ClaimedAt)
	out.InfoRequestedAt = cloneTime(c.InfoRequestedAt)
	out.DecidedAt = cloneTime(c.DecidedAt)
	out.RejectionReason = cloneString(c.RejectionReason)
	return &out
}
