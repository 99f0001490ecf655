// Package orchestrator is the single entry point for state changes on consultations, lab
// orders and pharmacy orders. Each command is validated, checked against the cutoff rules,
// allocated when it needs a partner and persisted together with its history row and outbox
// events in one transaction.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/service/allocation"
	"github.com/jwalitptl/fulfillment-api/internal/service/event"
	"github.com/jwalitptl/fulfillment-api/internal/service/refill"
	"github.com/jwalitptl/fulfillment-api/internal/storage"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

type Service struct {
	store   repository.Store
	refills *refill.Service
	uploads storage.Store
	cfg     Config
	results *cache.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store repository.Store, refills *refill.Service, cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		store:   store,
		refills: refills,
		cfg:     cfg,
		results: cache.New(cfg.IdempotencyTTL, 2*cfg.IdempotencyTTL),
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithStorage enables the presigned upload operations.
func (s *Service) WithStorage(st storage.Store) *Service {
	s.uploads = st
	return s
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// outcome is what an entity handler hands back for persistence side effects.
type outcome struct {
	result *Result
	record *model.TransitionRecord
	events []*model.DomainEvent
}

// Execute runs one command.
func (s *Service) Execute(ctx context.Context, cmd Command) (*Result, error) {
	return s.execute(ctx, cmd, 0)
}

func (s *Service) execute(ctx context.Context, cmd Command, depth int) (*Result, error) {
	timer := prometheus.NewTimer(s.metrics.CommandLatency.WithLabelValues(string(cmd.Entity)))
	defer timer.ObserveDuration()

	res, err := s.run(ctx, cmd, depth)
	s.observe(cmd, res, err)
	return res, err
}

func (s *Service) run(ctx context.Context, cmd Command, depth int) (*Result, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	key := idempotencyKey(cmd)
	if key == "" {
		return s.apply(ctx, cmd, "", depth)
	}

	// the key is held for the whole command; a retry arriving meanwhile is turned away
	if err := s.results.Add(key, inFlight{}, cache.DefaultExpiration); err != nil {
		cached, ok := s.results.Get(key)
		if !ok {
			return s.run(ctx, cmd, depth)
		}
		first, done := cached.(*Result)
		if !done {
			return nil, &apperrors.AppError{
				Code:    apperrors.ErrConcurrentModification,
				Message: "a request with this idempotency key is still in progress",
			}
		}
		replay := *first
		replay.Replayed = true
		return &replay, nil
	}

	res, err := s.apply(ctx, cmd, key, depth)
	if err != nil {
		s.results.Delete(key)
		return nil, err
	}
	return res, nil
}

// inFlight holds an idempotency key while its command runs.
type inFlight struct{}

func (s *Service) apply(ctx context.Context, cmd Command, key string, depth int) (*Result, error) {
	if err := authorizeEvent(cmd.Actor, cmd.Entity, cmd.Event); err != nil {
		return nil, err
	}
	if cmd.Payload.PartnerID != nil && cmd.Actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins can choose the assigned partner")
	}

	now := s.now()
	var out *outcome
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		switch cmd.Entity {
		case model.EntityLabOrder:
			out, err = s.executeLabOrder(ctx, tx, cmd, now)
		case model.EntityPharmacyOrder:
			out, err = s.executePharmacyOrder(ctx, tx, cmd, now)
		case model.EntityConsultation:
			out, err = s.executeConsultation(ctx, tx, cmd, now)
		}
		if err != nil {
			return err
		}
		return event.Journal(ctx, tx, out.record, out.events...)
	})
	if err != nil {
		return nil, err
	}

	if key != "" {
		s.results.Set(key, out.result, cache.DefaultExpiration)
	}
	s.react(ctx, out.events, depth)
	return out.result, nil
}

func idempotencyKey(cmd Command) string {
	if cmd.IdempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", cmd.Actor.Role, cmd.Actor.ID, cmd.IdempotencyKey)
}

func (s *Service) observe(cmd Command, res *Result, err error) {
	label := "ok"
	switch {
	case err != nil:
		label = apperrors.CodeOf(err).String()
	case res.AssignmentPending:
		label = "assignment_pending"
	}
	s.metrics.CommandsTotal.WithLabelValues(string(cmd.Entity), cmd.Event, label).Inc()

	fields := []interface{}{
		"entity", cmd.Entity,
		"entity_id", cmd.EntityID.String(),
		"event", cmd.Event,
		"role", cmd.Actor.Role,
	}
	switch {
	case err == nil && res.AssignmentPending:
		s.logger.Warn("assignment pending, item parked", fields...)
	case err == nil:
		s.logger.Debug("command executed", append(fields, "from", res.From, "to", res.To)...)
	case apperrors.CodeOf(err) == apperrors.ErrInternal:
		s.logger.Error(err, "command failed", fields...)
	default:
		s.logger.Debug("command rejected", append(fields, "reason", err.Error())...)
	}
}

func checkVersion(cmd Command, current int, resource string) error {
	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != current {
		return apperrors.NewConcurrentModification(resource)
	}
	return nil
}

// changed builds the status change event and its history row.
func (s *Service) changed(eventType string, entity model.EntityType, id uuid.UUID, cmd Command, from, to string, now time.Time) *model.DomainEvent {
	evt := model.NewDomainEvent(eventType, entity, id, cmd.Actor, now)
	evt.Event = cmd.Event
	evt.From = from
	evt.To = to
	return evt
}

func finish(cmd Command, evt *model.DomainEvent, version int, state interface{}, note string) *outcome {
	res := &Result{
		Entity:     cmd.Entity,
		EntityID:   evt.EntityID,
		Event:      cmd.Event,
		From:       evt.From,
		To:         evt.To,
		Version:    version,
		AssigneeID: evt.AssigneeID,
		State:      state,
	}
	if evt.Type == model.EventLabOrderAssignmentPending || evt.Type == model.EventPharmacyOrderAssignmentPending {
		res.AssignmentPending = true
		res.Message = "assignment pending"
	}
	return &outcome{
		result: res,
		record: event.Transition(cmd.Entity, evt, note),
		events: []*model.DomainEvent{evt},
	}
}

type allocationRequest struct {
	kind     model.PartnerKind
	area     model.Area
	day      time.Time
	exclude  []uuid.UUID
	override *uuid.UUID
}

// allocate loads the pool fresh inside the transaction and runs the allocator on it. On
// success the partner's last assignment time is bumped in the same transaction.
func (s *Service) allocate(ctx context.Context, tx repository.Store, req allocationRequest, now time.Time) (*model.Partner, error) {
	partners, err := tx.Partners().ListByKind(ctx, req.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load partner pool: %w", err)
	}
	if req.override != nil {
		var pinned []*model.Partner
		for _, p := range partners {
			if p.ID == *req.override {
				pinned = append(pinned, p)
			}
		}
		if len(pinned) == 0 {
			return nil, apperrors.NewNotFound(fmt.Sprintf("%s partner", req.kind), nil)
		}
		partners = pinned
	}

	ids := make([]uuid.UUID, 0, len(partners))
	for _, p := range partners {
		ids = append(ids, p.ID)
	}

	var loads map[uuid.UUID]int
	switch req.kind {
	case model.PartnerPhlebotomist:
		loads, err = tx.LabOrders().CountByPhlebotomist(ctx, ids, req.day)
	case model.PartnerLab:
		loads, err = tx.LabOrders().CountByLab(ctx, ids, req.day)
	case model.PartnerPharmacy:
		loads, err = tx.PharmacyOrders().CountByPharmacy(ctx, ids, req.day)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to count partner load: %w", err)
	}

	chosen, err := allocation.Allocate(allocation.WorkItem{
		Kind:    req.kind,
		Area:    req.area,
		Exclude: req.exclude,
	}, allocation.Pool(req.kind, partners, loads))
	if err != nil {
		s.metrics.AllocationsTotal.WithLabelValues(string(req.kind), "no_candidate").Inc()
		if req.override != nil {
			return nil, apperrors.NewPreconditionMissing("the selected partner cannot take this work item")
		}
		return nil, err
	}
	s.metrics.AllocationsTotal.WithLabelValues(string(req.kind), "assigned").Inc()

	if err := tx.Partners().TouchAssignment(ctx, chosen.Partner.ID, chosen.Partner.LastAssignedAt, now); err != nil {
		return nil, fmt.Errorf("failed to record assignment: %w", err)
	}
	return chosen.Partner, nil
}

func parkReason(kind model.PartnerKind) string {
	return fmt.Sprintf("no eligible %s", labelFor(kind))
}

func labelFor(kind model.PartnerKind) string {
	switch kind {
	case model.PartnerPhlebotomist:
		return "phlebotomist"
	case model.PartnerLab:
		return "lab"
	case model.PartnerPharmacy:
		return "pharmacy"
	}
	return string(kind)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
