package refill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/service/cutoff"
	"github.com/jwalitptl/fulfillment-api/internal/service/event"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

// Service owns auto-refill configs and turns due ones into pharmacy orders.
type Service struct {
	store   repository.Store
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store repository.Store, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	PrescriptionID  uuid.UUID
	PatientID       uuid.UUID
	IntervalDays    int
	FirstRefillDate *time.Time
	DeliveryAddress string
	Pincode         string
	City            string
	Medications     model.Medications
}

// Create registers a new schedule. Without an explicit first date the first refill falls
// one interval after today.
func (s *Service) Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.AutoRefillConfig, error) {
	if in.IntervalDays <= 0 {
		return nil, apperrors.NewBadRequest("interval_days must be a positive number of days", nil)
	}
	if len(in.Medications) == 0 {
		return nil, apperrors.NewBadRequest("a refill needs at least one medication", nil)
	}

	now := s.now()
	today := model.DateOf(now)
	next := today.AddDate(0, 0, in.IntervalDays)
	if in.FirstRefillDate != nil {
		next = model.DateOf(*in.FirstRefillDate)
		if next.Before(today) {
			return nil, apperrors.NewBadRequest("first refill date cannot be in the past", nil)
		}
	}

	cfg := &model.AutoRefillConfig{
		Base:            model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PrescriptionID:  in.PrescriptionID,
		PatientID:       in.PatientID,
		IntervalDays:    in.IntervalDays,
		NextRefillDate:  next,
		IsActive:        true,
		DeliveryAddress: in.DeliveryAddress,
		Pincode:         in.Pincode,
		City:            in.City,
		Medications:     in.Medications.Clone(),
	}

	evt := model.NewDomainEvent(model.EventRefillConfigCreated, model.EntityRefillConfig, cfg.ID, actor, now)
	evt.PatientID = &cfg.PatientID
	evt.To = "ACTIVE"
	evt.Data = model.JSONMap{
		"prescription_id":  cfg.PrescriptionID,
		"interval_days":    cfg.IntervalDays,
		"next_refill_date": model.FormatDate(cfg.NextRefillDate),
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Refills().Create(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create refill config: %w", err)
		}
		return event.Journal(ctx, tx, event.Transition(model.EntityRefillConfig, evt, ""), evt)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Cancel deactivates a config for good.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.AutoRefillConfig, error) {
	var out *model.AutoRefillConfig
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		cfg, err := tx.Refills().Get(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role == model.RolePatient && cfg.PatientID != actor.ID {
			return apperrors.NewForbidden("refill belongs to another patient")
		}
		if !cfg.IsActive {
			return apperrors.NewInvalidTransition("refill config", "CANCELLED", "CANCEL")
		}

		now := s.now()
		cfg.IsActive = false
		cfg.CancelledAt = &now
		cfg.UpdatedAt = now
		if err := tx.Refills().Update(ctx, cfg); err != nil {
			return err
		}

		evt := model.NewDomainEvent(model.EventRefillConfigCancelled, model.EntityRefillConfig, cfg.ID, actor, now)
		evt.Event = "CANCEL"
		evt.From = "ACTIVE"
		evt.To = "CANCELLED"
		evt.PatientID = &cfg.PatientID
		out = cfg
		return event.Journal(ctx, tx, event.Transition(model.EntityRefillConfig, evt, ""), evt)
	})
	return out, err
}

// Get returns one config.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.AutoRefillConfig, error) {
	return s.store.Refills().Get(ctx, id)
}

// Status is the refill read model for one prescription.
func (s *Service) Status(ctx context.Context, prescriptionID uuid.UUID) ([]model.RefillStatus, error) {
	configs, err := s.store.Refills().ListByPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refill configs: %w", err)
	}

	now := s.now()
	out := make([]model.RefillStatus, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, model.RefillStatus{
			ConfigID:       cfg.ID,
			PrescriptionID: cfg.PrescriptionID,
			PatientID:      cfg.PatientID,
			IntervalDays:   cfg.IntervalDays,
			NextRefillDate: cfg.NextRefillDate,
			IsActive:       cfg.IsActive,
			LastFiredFor:   cfg.LastFiredFor,
			Due:            cutoff.RefillDue(cfg, now),
		})
	}
	return out, nil
}

// Tick fires every active config whose next refill date has been reached and returns the
// ids of the pharmacy orders it created. Each config fires at most once per call; a config
// that fell several intervals behind catches up over the following ticks.
func (s *Service) Tick(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	due, err := s.store.Refills().ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due refills: %w", err)
	}

	created := make([]uuid.UUID, 0, len(due))
	var errs []error
	for _, cfg := range due {
		orderID, err := s.fire(ctx, cfg.ID, now)
		switch {
		case err == nil && orderID != uuid.Nil:
			created = append(created, orderID)
			s.metrics.RefillsFired.Inc()
		case err == nil:
		case apperrors.HasCode(err, apperrors.ErrConcurrentModification):
			// another process fired or cancelled it first
			s.logger.Debug("refill config changed concurrently, skipping", "config_id", cfg.ID.String())
		default:
			s.metrics.RefillTickErrors.Inc()
			s.logger.Error(err, "failed to fire refill", "config_id", cfg.ID.String())
			errs = append(errs, fmt.Errorf("refill %s: %w", cfg.ID, err))
		}
	}
	return created, errors.Join(errs...)
}

// fire creates the order for the config's current due date and advances the schedule in
// one transaction. It returns uuid.Nil when the config is no longer due.
func (s *Service) fire(ctx context.Context, configID uuid.UUID, now time.Time) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		cfg, err := tx.Refills().Get(ctx, configID)
		if err != nil {
			return err
		}
		if !cutoff.RefillDue(cfg, now) {
			return nil
		}
		dueDate := cfg.NextRefillDate
		if cfg.LastFiredFor != nil && !dueDate.After(*cfg.LastFiredFor) {
			return nil
		}

		order := &model.PharmacyOrder{
			Base:            model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			PrescriptionID:  cfg.PrescriptionID,
			PatientID:       cfg.PatientID,
			RefillConfigID:  &cfg.ID,
			Status:          model.PharmacyPrescriptionCreated,
			DeliveryAddress: cfg.DeliveryAddress,
			Pincode:         cfg.Pincode,
			City:            cfg.City,
			Medications:     cfg.Medications.Clone(),
		}
		if err := tx.PharmacyOrders().Create(ctx, order); err != nil {
			return fmt.Errorf("failed to create refill order: %w", err)
		}

		cfg.LastFiredFor = &dueDate
		cfg.NextRefillDate = dueDate.AddDate(0, 0, cfg.IntervalDays)
		cfg.UpdatedAt = now
		if err := tx.Refills().Update(ctx, cfg); err != nil {
			return err
		}

		evt := model.NewDomainEvent(model.EventPharmacyOrderCreated, model.EntityPharmacyOrder, order.ID, model.SystemActor(), now)
		evt.To = string(order.Status)
		evt.PatientID = &order.PatientID
		evt.Data = model.JSONMap{
			"prescription_id":  order.PrescriptionID,
			"refill_config_id": cfg.ID,
			"due_date":         model.FormatDate(dueDate),
		}
		if err := event.Journal(ctx, tx, event.Transition(model.EntityPharmacyOrder, evt, "auto refill"), evt); err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	return orderID, err
}
