package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository/memory"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/messaging"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

type sentMail struct{ to, subject string }

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeEmail) Send(_ context.Context, to, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject})
	return nil
}

type env struct {
	ctx     context.Context
	store   *memory.Store
	broker  *messaging.MemoryBroker
	mail    *fakeEmail
	svc     *Service
	patient *model.PatientSummary
}

func newEnv(t *testing.T) *env {
	e := &env{
		ctx:    context.Background(),
		store:  memory.NewStore(),
		broker: messaging.NewMemoryBroker(),
		mail:   &fakeEmail{},
	}
	e.patient = &model.PatientSummary{ID: uuid.New(), Name: "Asha", Phone: "9800000000", Email: "asha@example.com"}
	require.NoError(t, e.store.Patients().Create(e.ctx, e.patient))
	e.svc = NewService(e.store, e.mail, e.broker, logger.Nop(), metrics.NewNop())
	return e
}

func TestDispatchNotifiesPatientAndAssignee(t *testing.T) {
	e := newEnv(t)
	phleb := &model.Partner{Kind: model.PartnerPhlebotomist, Name: "Ravi", Email: "ravi@example.com", Status: model.PartnerActive}
	require.NoError(t, e.store.Partners().Create(e.ctx, phleb))

	evt := model.NewDomainEvent(model.EventLabOrderStatusChanged, model.EntityLabOrder, uuid.New(), model.SystemActor(), time.Now())
	evt.From = string(model.LabOrderSlotBooked)
	evt.To = string(model.LabOrderPhlebotomistAssigned)
	evt.PatientID = &e.patient.ID
	evt.AssigneeID = &phleb.ID
	evt.Data = model.JSONMap{"booked_date": "2024-03-15", "booked_time_slot": "16:00-17:00"}

	require.NoError(t, e.svc.Dispatch(e.ctx, evt))

	assert.Len(t, e.broker.Published("notifications.patient"), 1)
	assert.Len(t, e.broker.Published("notifications.partner"), 1)
	require.Len(t, e.mail.sent, 2)
	assert.Equal(t, "asha@example.com", e.mail.sent[0].to)
	assert.Equal(t, "Lab order is now phlebotomist assigned", e.mail.sent[0].subject)
	assert.Equal(t, "ravi@example.com", e.mail.sent[1].to)

	var n model.Notification
	require.NoError(t, json.Unmarshal(e.broker.Published("notifications.patient")[0], &n))
	assert.Equal(t, e.patient.ID, n.RecipientID)
	assert.Contains(t, n.Content, "16:00-17:00")
}

func TestDispatchRoutesSampleToLab(t *testing.T) {
	e := newEnv(t)
	lab := &model.Partner{Kind: model.PartnerLab, Name: "Metro", Email: "lab@example.com", Status: model.PartnerActive}
	require.NoError(t, e.store.Partners().Create(e.ctx, lab))

	evt := model.NewDomainEvent(model.EventLabOrderStatusChanged, model.EntityLabOrder, uuid.New(), model.SystemActor(), time.Now())
	evt.To = string(model.LabOrderSampleInTransit)
	evt.Data = model.JSONMap{"lab_id": lab.ID.String()}

	require.NoError(t, e.svc.Dispatch(e.ctx, evt))
	require.Len(t, e.mail.sent, 1)
	assert.Equal(t, "lab@example.com", e.mail.sent[0].to)
}

func TestAssignmentPendingGoesToOperations(t *testing.T) {
	e := newEnv(t)
	evt := model.NewDomainEvent(model.EventPharmacyOrderAssignmentPending, model.EntityPharmacyOrder, uuid.New(), model.SystemActor(), time.Now())
	evt.PatientID = &e.patient.ID
	evt.Data = model.JSONMap{"parked_reason": "no eligible pharmacy"}

	require.NoError(t, e.svc.Dispatch(e.ctx, evt))
	assert.Len(t, e.broker.Published("notifications.operations"), 1)
	assert.Empty(t, e.broker.Published("notifications.patient"))
	assert.Empty(t, e.mail.sent)
}

func TestEmailFailureDoesNotFailDispatch(t *testing.T) {
	e := newEnv(t)
	e.mail.err = errors.New("relay down")

	evt := model.NewDomainEvent(model.EventPharmacyOrderCreated, model.EntityPharmacyOrder, uuid.New(), model.SystemActor(), time.Now())
	evt.PatientID = &e.patient.ID

	assert.NoError(t, e.svc.Dispatch(e.ctx, evt))
	assert.Len(t, e.broker.Published("notifications.patient"), 1)
}

func TestMissingPartnerIsReturned(t *testing.T) {
	e := newEnv(t)
	ghost := uuid.New()
	evt := model.NewDomainEvent(model.EventPartnerStatusChanged, model.EntityPartner, ghost, model.SystemActor(), time.Now())
	evt.To = string(model.PartnerSuspended)

	assert.Error(t, e.svc.Dispatch(e.ctx, evt))
}

func TestUnmappedEventsAreIgnored(t *testing.T) {
	e := newEnv(t)
	evt := model.NewDomainEvent(model.EventRefillConfigCreated, model.EntityRefillConfig, uuid.New(), model.SystemActor(), time.Now())
	evt.PatientID = &e.patient.ID

	require.NoError(t, e.svc.Dispatch(e.ctx, evt))
	assert.Empty(t, e.broker.Published("notifications.patient"))
}
