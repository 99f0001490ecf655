package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

// All repository interfaces in one file.
//
// Update methods are optimistic: the entity's Version must match the stored row, and on
// success the store bumps Version on the passed entity. A mismatch returns a
// ConcurrentModification AppError, a missing row NotFound.
type (
	ConsultationRepository interface {
		Create(ctx context.Context, c *model.Consultation) error
		Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
		Update(ctx context.Context, c *model.Consultation) error
	}

	LabOrderRepository interface {
		Create(ctx context.Context, o *model.LabOrder) error
		Get(ctx context.Context, id uuid.UUID) (*model.LabOrder, error)
		Update(ctx context.Context, o *model.LabOrder) error
		List(ctx context.Context, filter model.LabOrderFilter) ([]*model.LabOrder, error)
		// CountByPhlebotomist counts live assignments per phlebotomist for one booked date.
		CountByPhlebotomist(ctx context.Context, ids []uuid.UUID, bookedDate time.Time) (map[uuid.UUID]int, error)
		// CountByLab counts samples routed to each lab on day.
		CountByLab(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]int, error)
	}

	PharmacyOrderRepository interface {
		Create(ctx context.Context, o *model.PharmacyOrder) error
		Get(ctx context.Context, id uuid.UUID) (*model.PharmacyOrder, error)
		Update(ctx context.Context, o *model.PharmacyOrder) error
		List(ctx context.Context, filter model.PharmacyOrderFilter) ([]*model.PharmacyOrder, error)
		// CountByPharmacy counts orders assigned to each pharmacy on day.
		CountByPharmacy(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]int, error)
	}

	RefillRepository interface {
		Create(ctx context.Context, c *model.AutoRefillConfig) error
		Get(ctx context.Context, id uuid.UUID) (*model.AutoRefillConfig, error)
		Update(ctx context.Context, c *model.AutoRefillConfig) error
		ListDue(ctx context.Context, now time.Time) ([]*model.AutoRefillConfig, error)
		ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.AutoRefillConfig, error)
	}

	PartnerRepository interface {
		Create(ctx context.Context, p *model.Partner) error
		Get(ctx context.Context, id uuid.UUID) (*model.Partner, error)
		Update(ctx context.Context, p *model.Partner) error
		ListByKind(ctx context.Context, kind model.PartnerKind) ([]*model.Partner, error)
		// TouchAssignment moves last_assigned_at from prev to at, failing with
		// ConcurrentModification when the partner was assigned since prev was read.
		TouchAssignment(ctx context.Context, id uuid.UUID, prev *time.Time, at time.Time) error
	}

	PatientRepository interface {
		Create(ctx context.Context, p *model.PatientSummary) error
		GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.PatientSummary, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, rec *model.TransitionRecord) error
		ListByEntity(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) ([]*model.TransitionRecord, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending moves up to limit events to PROCESSING and returns them. Besides
		// PENDING rows it picks up PROCESSING rows abandoned for longer than staleAfter and
		// FAILED rows below MaxOutboxAttempts whose last attempt is older than staleAfter.
		ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Store hands out repositories that share one transaction scope.
	Store interface {
		Consultations() ConsultationRepository
		LabOrders() LabOrderRepository
		PharmacyOrders() PharmacyOrderRepository
		Refills() RefillRepository
		Partners() PartnerRepository
		Patients() PatientRepository
		Audit() AuditRepository
		Outbox() OutboxRepository
		// WithTx runs fn against a transactional view; an error from fn rolls everything back.
		WithTx(ctx context.Context, fn func(tx Store) error) error
		Ping(ctx context.Context) error
	}
)

// MaxOutboxAttempts bounds delivery attempts before an event stays FAILED for good.
const MaxOutboxAttempts = 5

// Statuses that never count toward a partner's daily load.
var (
	LoadExcludedLabStatuses = []model.LabOrderStatus{model.LabOrderCancelled, model.LabOrderExpired}

	LoadExcludedPharmacyStatuses = []model.PharmacyOrderStatus{model.PharmacyCancelled}
)
