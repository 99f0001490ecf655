package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository/memory"
	"github.com/jwalitptl/fulfillment-api/internal/service/refill"
	"github.com/jwalitptl/fulfillment-api/internal/service/roster"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

const pincode = "400058"

var morning = time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	svc     *Service
	clock   time.Time
	patient uuid.UUID
	doctor  uuid.UUID
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   memory.NewStore(),
		clock:   morning,
		patient: uuid.New(),
		doctor:  uuid.New(),
	}
	clock := func() time.Time { return f.clock }
	m := metrics.NewNop()
	refills := refill.NewService(f.store, logger.Nop(), m).WithClock(clock)
	f.svc = NewService(f.store, refills, cfg, logger.Nop(), m).WithClock(clock)
	return f
}

func (f *fixture) patientActor() model.Actor { return model.Actor{Role: model.RolePatient, ID: f.patient} }
func (f *fixture) doctorActor() model.Actor  { return model.Actor{Role: model.RoleDoctor, ID: f.doctor} }

func adminActor() model.Actor { return model.Actor{Role: model.RoleAdmin, ID: uuid.New()} }

func staffFor(role model.Role, partner *model.Partner) model.Actor {
	return model.Actor{Role: role, ID: uuid.New(), PartnerID: &partner.ID}
}

func (f *fixture) addPartner(kind model.PartnerKind, name string) *model.Partner {
	f.t.Helper()
	p := &model.Partner{
		Kind:                kind,
		Name:                name,
		Status:              model.PartnerActive,
		ServiceablePincodes: pq.StringArray{pincode},
		ServiceableCities:   pq.StringArray{"Mumbai"},
	}
	require.NoError(f.t, f.store.Partners().Create(f.ctx, p))
	return p
}

func (f *fixture) addConsultation(status model.ConsultationStatus) *model.Consultation {
	f.t.Helper()
	doctor := f.doctor
	c := &model.Consultation{
		PatientID: f.patient,
		Vertical:  model.VerticalPCOS,
		Status:    status,
		DoctorID:  &doctor,
	}
	require.NoError(f.t, f.store.Consultations().Create(f.ctx, c))
	return c
}

func (f *fixture) addLabOrder(status model.LabOrderStatus, mutate ...func(*model.LabOrder)) *model.LabOrder {
	f.t.Helper()
	c := f.addConsultation(model.ConsultationAwaitingLabs)
	o := &model.LabOrder{
		ConsultationID:    c.ID,
		PatientID:         f.patient,
		PanelName:         "PCOS Panel",
		TestPanel:         pq.StringArray{"FBS", "TSH"},
		Status:            status,
		CollectionAddress: "Flat 3, Andheri West",
		Pincode:           pincode,
		City:              "Mumbai",
		Area:              "Andheri West",
		OrderedAt:         morning.Add(-24 * time.Hour),
	}
	for _, fn := range mutate {
		fn(o)
	}
	require.NoError(f.t, f.store.LabOrders().Create(f.ctx, o))
	return o
}

func (f *fixture) addPharmacyOrder(status model.PharmacyOrderStatus, mutate ...func(*model.PharmacyOrder)) *model.PharmacyOrder {
	f.t.Helper()
	o := &model.PharmacyOrder{
		PrescriptionID:  uuid.New(),
		PatientID:       f.patient,
		Status:          status,
		DeliveryAddress: "12 Link Road",
		Pincode:         pincode,
		City:            "Mumbai",
		Medications:     model.Medications{{Name: "Metformin", Dosage: "500mg", Quantity: 60}},
	}
	for _, fn := range mutate {
		fn(o)
	}
	require.NoError(f.t, f.store.PharmacyOrders().Create(f.ctx, o))
	return o
}

func (f *fixture) exec(actor model.Actor, entity model.EntityType, id uuid.UUID, ev string, p Payload) (*Result, error) {
	return f.svc.Execute(f.ctx, Command{Entity: entity, EntityID: id, Event: ev, Actor: actor, Payload: p})
}

func (f *fixture) labOrder(id uuid.UUID) *model.LabOrder {
	f.t.Helper()
	o, err := f.store.LabOrders().Get(f.ctx, id)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) pharmacyOrder(id uuid.UUID) *model.PharmacyOrder {
	f.t.Helper()
	o, err := f.store.PharmacyOrders().Get(f.ctx, id)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, evt := range f.store.Events() {
		out = append(out, evt.EventType)
	}
	return out
}

func withPharmacy(p *model.Partner) func(*model.PharmacyOrder) {
	return func(o *model.PharmacyOrder) { o.PharmacyID = &p.ID }
}

func withPhlebotomist(p *model.Partner, slotStart time.Time) func(*model.LabOrder) {
	return func(o *model.LabOrder) {
		day := model.DateOf(slotStart)
		slot := slotStart.Format("15:04") + "-" + slotStart.Add(time.Hour).Format("15:04")
		at := slotStart
		o.BookedDate = &day
		o.BookedTimeSlot = &slot
		o.BookedAt = &at
		o.PhlebotomistID = &p.ID
	}
}

func TestLabOrderLifecycleRejectsLateCancellation(t *testing.T) {
	f := newFixture(t, Config{AutoAssignOnBooking: true})
	phleb := f.addPartner(model.PartnerPhlebotomist, "Ravi")
	consultation := f.addConsultation(model.ConsultationDoctorReviewing)

	order, err := f.svc.CreateLabOrder(f.ctx, f.doctorActor(), CreateLabOrderInput{
		ConsultationID:    consultation.ID,
		TestCodes:         []string{"fbs", "LIPID"},
		CollectionAddress: "Flat 3, Andheri West",
		Pincode:           pincode,
		City:              "Mumbai",
		Area:              "Andheri West",
	})
	require.NoError(t, err)
	assert.Equal(t, model.LabOrderOrdered, order.Status)
	assert.Equal(t, f.patient, order.PatientID)
	assert.Equal(t, []string{"FBS", "LIPID"}, []string(order.TestPanel))

	c, err := f.store.Consultations().Get(f.ctx, consultation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationAwaitingLabs, c.Status)

	// 16:00 is ten hours after the 06:00 clock
	res, err := f.exec(f.patientActor(), model.EntityLabOrder, order.ID, string(model.LabOrderBookSlot),
		Payload{BookedDate: "2024-03-15", TimeSlot: "16:00-17:00"})
	require.NoError(t, err)
	assert.Equal(t, string(model.LabOrderSlotBooked), res.To)

	booked := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderPhlebotomistAssigned, booked.Status)
	require.NotNil(t, booked.PhlebotomistID)
	assert.Equal(t, phleb.ID, *booked.PhlebotomistID)
	require.NotNil(t, booked.BookedAt)
	assert.Equal(t, morning.Add(10*time.Hour), *booked.BookedAt)

	f.clock = morning.Add(8 * time.Hour)
	_, err = f.exec(f.patientActor(), model.EntityLabOrder, order.ID, string(model.LabOrderCancel), Payload{Reason: "travelling"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCutoffExceeded))

	after := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderPhlebotomistAssigned, after.Status)
	assert.Equal(t, booked.Version, after.Version)
}

func TestCancelExactlyAtCutoffIsAllowed(t *testing.T) {
	f := newFixture(t, Config{})
	phleb := f.addPartner(model.PartnerPhlebotomist, "Ravi")
	order := f.addLabOrder(model.LabOrderPhlebotomistAssigned, withPhlebotomist(phleb, morning.Add(4*time.Hour)))

	res, err := f.exec(f.patientActor(), model.EntityLabOrder, order.ID, string(model.LabOrderCancel), Payload{})
	require.NoError(t, err)
	assert.Equal(t, string(model.LabOrderCancelled), res.To)
	assert.NotNil(t, f.labOrder(order.ID).CancelledAt)
}

func TestDispatchWithoutDeliveryPersonIsPreconditionMissing(t *testing.T) {
	f := newFixture(t, Config{})
	pharmacy := f.addPartner(model.PartnerPharmacy, "Link Road Pharmacy")
	order := f.addPharmacyOrder(model.PharmacyReady, withPharmacy(pharmacy))

	_, err := f.exec(adminActor(), model.EntityPharmacyOrder, order.ID, string(model.PharmacyDispatch), Payload{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrPreconditionMissing))
	assert.Equal(t, model.PharmacyReady, f.pharmacyOrder(order.ID).Status)
	assert.Empty(t, f.store.Events())

	res, err := f.exec(adminActor(), model.EntityPharmacyOrder, order.ID, string(model.PharmacyDispatch),
		Payload{DeliveryPersonName: "Sunil", DeliveryPersonPhone: "+91-98200-11111"})
	require.NoError(t, err)
	assert.Equal(t, string(model.PharmacyOutForDelivery), res.To)

	stored := f.pharmacyOrder(order.ID)
	assert.True(t, stored.HasDeliveryPerson())
	assert.NotNil(t, stored.DispatchedAt)
}

func TestRoleGate(t *testing.T) {
	f := newFixture(t, Config{})
	pharmacy := f.addPartner(model.PartnerPharmacy, "Link Road Pharmacy")
	other := f.addPartner(model.PartnerPharmacy, "Other Pharmacy")
	order := f.addPharmacyOrder(model.PharmacyPreparing, withPharmacy(pharmacy))
	lab := f.addLabOrder(model.LabOrderSlotBooked)

	tests := []struct {
		name   string
		actor  model.Actor
		entity model.EntityType
		id     uuid.UUID
		event  string
	}{
		{"patient cannot assign", f.patientActor(), model.EntityLabOrder, lab.ID, string(model.LabOrderAssignPhlebotomist)},
		{"admin cannot mark ready", adminActor(), model.EntityPharmacyOrder, order.ID, string(model.PharmacyMarkReady)},
		{"other pharmacy cannot mark ready", staffFor(model.RolePharmacyStaff, other), model.EntityPharmacyOrder, order.ID, string(model.PharmacyMarkReady)},
		{"another patient cannot cancel", model.Actor{Role: model.RolePatient, ID: uuid.New()}, model.EntityLabOrder, lab.ID, string(model.LabOrderCancel)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.exec(tt.actor, tt.entity, tt.id, tt.event, Payload{})
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
		})
	}

	res, err := f.exec(staffFor(model.RolePharmacyStaff, pharmacy), model.EntityPharmacyOrder, order.ID, string(model.PharmacyMarkReady), Payload{})
	require.NoError(t, err)
	assert.Equal(t, string(model.PharmacyReady), res.To)
}

func TestPatientCannotCancelAcceptedPharmacyOrder(t *testing.T) {
	f := newFixture(t, Config{})
	pharmacy := f.addPartner(model.PartnerPharmacy, "Link Road Pharmacy")
	accepted := f.addPharmacyOrder(model.PharmacyAccepted, withPharmacy(pharmacy))
	routed := f.addPharmacyOrder(model.PharmacySentToPharmacy, withPharmacy(pharmacy))

	_, err := f.exec(f.patientActor(), model.EntityPharmacyOrder, accepted.ID, string(model.PharmacyCancel), Payload{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	res, err := f.exec(f.patientActor(), model.EntityPharmacyOrder, routed.ID, string(model.PharmacyCancel), Payload{Reason: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, string(model.PharmacyCancelled), res.To)
}

func TestStaleExpectedVersionIsRejected(t *testing.T) {
	f := newFixture(t, Config{})
	order := f.addLabOrder(model.LabOrderOrdered)

	stale := order.Version + 1
	_, err := f.svc.Execute(f.ctx, Command{
		Entity:          model.EntityLabOrder,
		EntityID:        order.ID,
		Event:           string(model.LabOrderBookSlot),
		Actor:           f.patientActor(),
		ExpectedVersion: &stale,
		Payload:         Payload{BookedDate: "2024-03-16", TimeSlot: "7:00-8:00"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConcurrentModification))
	assert.Equal(t, model.LabOrderOrdered, f.labOrder(order.ID).Status)
}

func TestIdempotencyKeyReplaysFirstResult(t *testing.T) {
	f := newFixture(t, Config{})
	order := f.addLabOrder(model.LabOrderOrdered)

	cmd := Command{
		Entity:         model.EntityLabOrder,
		EntityID:       order.ID,
		Event:          string(model.LabOrderBookSlot),
		Actor:          f.patientActor(),
		IdempotencyKey: "book-1",
		Payload:        Payload{BookedDate: "2024-03-16", TimeSlot: "7:00-8:00"},
	}
	first, err := f.svc.Execute(f.ctx, cmd)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.Execute(f.ctx, cmd)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.To, second.To)

	assert.Len(t, f.store.Events(), 1)
	assert.Equal(t, first.Version, f.labOrder(order.ID).Version)
}

func TestNoEligiblePhlebotomistParksOrder(t *testing.T) {
	f := newFixture(t, Config{AutoAssignOnBooking: true})
	order := f.addLabOrder(model.LabOrderOrdered)

	res, err := f.exec(f.patientActor(), model.EntityLabOrder, order.ID, string(model.LabOrderBookSlot),
		Payload{BookedDate: "2024-03-16", TimeSlot: "7:00-8:00"})
	require.NoError(t, err)
	assert.False(t, res.AssignmentPending)

	parked := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderSlotBooked, parked.Status)
	assert.Nil(t, parked.PhlebotomistID)
	require.NotNil(t, parked.ParkedAt)
	assert.Contains(t, f.eventTypes(), model.EventLabOrderAssignmentPending)

	res, err = f.exec(adminActor(), model.EntityLabOrder, order.ID, string(model.LabOrderAssignPhlebotomist), Payload{})
	require.NoError(t, err)
	assert.True(t, res.AssignmentPending)
	assert.Equal(t, res.From, res.To)

	phleb := f.addPartner(model.PartnerPhlebotomist, "Ravi")
	placed, err := f.svc.RetryParked(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, placed)

	assigned := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderPhlebotomistAssigned, assigned.Status)
	assert.Equal(t, phleb.ID, *assigned.PhlebotomistID)
	assert.Nil(t, assigned.ParkedAt)
}

func TestRebookingAfterFailedCollectionWaitsForOperator(t *testing.T) {
	f := newFixture(t, Config{AutoAssignOnBooking: true})
	f.addPartner(model.PartnerPhlebotomist, "Ravi")
	order := f.addLabOrder(model.LabOrderCollectionFailed)

	_, err := f.exec(f.patientActor(), model.EntityLabOrder, order.ID, string(model.LabOrderBookSlot),
		Payload{BookedDate: "2024-03-16", TimeSlot: "7:00-8:00"})
	require.NoError(t, err)

	stored := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderSlotBooked, stored.Status)
	assert.Nil(t, stored.PhlebotomistID)
	assert.Nil(t, stored.ParkedAt)
}

func TestResultsUploadMovesConsultationBackToDoctor(t *testing.T) {
	f := newFixture(t, Config{})
	lab := f.addPartner(model.PartnerLab, "Andheri Diagnostics")
	order := f.addLabOrder(model.LabOrderProcessing, func(o *model.LabOrder) { o.LabID = &lab.ID })

	_, err := f.exec(staffFor(model.RoleLabStaff, lab), model.EntityLabOrder, order.ID, string(model.LabOrderUploadResults), Payload{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrPreconditionMissing))

	res, err := f.exec(staffFor(model.RoleLabStaff, lab), model.EntityLabOrder, order.ID, string(model.LabOrderUploadResults),
		Payload{ResultFileURL: "s3://results/report.pdf", CriticalValues: true})
	require.NoError(t, err)
	assert.Equal(t, string(model.LabOrderResultsUploaded), res.To)

	c, err := f.store.Consultations().Get(f.ctx, order.ConsultationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationDoctorReviewing, c.Status)
	assert.True(t, c.LabResultsAvailable)
}

func TestSampleDispatchRoutesToLab(t *testing.T) {
	f := newFixture(t, Config{})
	phleb := f.addPartner(model.PartnerPhlebotomist, "Ravi")
	order := f.addLabOrder(model.LabOrderSampleCollected, withPhlebotomist(phleb, morning.Add(-time.Hour)))

	res, err := f.exec(staffFor(model.RolePhlebotomist, phleb), model.EntityLabOrder, order.ID, string(model.LabOrderDispatchSample), Payload{})
	require.NoError(t, err)
	assert.True(t, res.AssignmentPending)
	assert.Equal(t, model.LabOrderSampleCollected, f.labOrder(order.ID).Status)

	lab := f.addPartner(model.PartnerLab, "Andheri Diagnostics")
	placed, err := f.svc.RetryParked(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, placed)

	stored := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderSampleInTransit, stored.Status)
	require.NotNil(t, stored.LabID)
	assert.Equal(t, lab.ID, *stored.LabID)
}

func TestSuspensionReassignsOnlyUnstartedWork(t *testing.T) {
	f := newFixture(t, Config{ReassignOnSuspension: true})
	suspended := f.addPartner(model.PartnerPhlebotomist, "Anil")
	backup := f.addPartner(model.PartnerPhlebotomist, "Ravi")
	waiting := f.addLabOrder(model.LabOrderPhlebotomistAssigned, withPhlebotomist(suspended, morning.Add(8*time.Hour)))
	enRoute := f.addLabOrder(model.LabOrderPhlebotomistEnRoute, withPhlebotomist(suspended, morning.Add(time.Hour)))

	p, err := f.svc.SetPartnerStatus(f.ctx, adminActor(), suspended.ID, model.PartnerSuspended, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PartnerSuspended, p.Status)

	assert.Equal(t, backup.ID, *f.labOrder(waiting.ID).PhlebotomistID)
	assert.Equal(t, suspended.ID, *f.labOrder(enRoute.ID).PhlebotomistID)
}

func TestSetPartnerStatusRequiresAdmin(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.addPartner(model.PartnerPharmacy, "Link Road Pharmacy")

	_, err := f.svc.SetPartnerStatus(f.ctx, f.doctorActor(), p.ID, model.PartnerSuspended, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	stale := p.Version + 1
	_, err = f.svc.SetPartnerStatus(f.ctx, adminActor(), p.ID, model.PartnerSuspended, &stale)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConcurrentModification))
}

func TestPharmacyOrderAutoRouting(t *testing.T) {
	f := newFixture(t, Config{AutoRoutePharmacyOrders: true})
	pharmacy := f.addPartner(model.PartnerPharmacy, "Link Road Pharmacy")

	order, err := f.svc.CreatePharmacyOrder(f.ctx, f.doctorActor(), CreatePharmacyOrderInput{
		PrescriptionID:  uuid.New(),
		PatientID:       f.patient,
		DeliveryAddress: "12 Link Road",
		Pincode:         pincode,
		City:            "Mumbai",
		Medications:     model.Medications{{Name: "Minoxidil", Dosage: "5%", Quantity: 1}},
	})
	require.NoError(t, err)

	routed := f.pharmacyOrder(order.ID)
	assert.Equal(t, model.PharmacySentToPharmacy, routed.Status)
	assert.Equal(t, pharmacy.ID, *routed.PharmacyID)
	assert.NotNil(t, routed.AssignedAt)
}

func TestTickRefillsRoutesCreatedOrders(t *testing.T) {
	f := newFixture(t, Config{AutoRoutePharmacyOrders: true})
	pharmacy := f.addPartner(model.PartnerPharmacy, "Link Road Pharmacy")
	cfg := &model.AutoRefillConfig{
		PrescriptionID:  uuid.New(),
		PatientID:       f.patient,
		IntervalDays:    30,
		NextRefillDate:  model.DateOf(morning),
		IsActive:        true,
		DeliveryAddress: "12 Link Road",
		Pincode:         pincode,
		City:            "Mumbai",
		Medications:     model.Medications{{Name: "Spironolactone", Dosage: "50mg", Quantity: 30}},
	}
	require.NoError(t, f.store.Refills().Create(f.ctx, cfg))

	created, err := f.svc.TickRefills(f.ctx, morning)
	require.NoError(t, err)
	require.Len(t, created, 1)

	order := f.pharmacyOrder(created[0])
	assert.Equal(t, model.PharmacySentToPharmacy, order.Status)
	assert.Equal(t, pharmacy.ID, *order.PharmacyID)
}

func TestReassignPharmacyKeepsCurrentWhenNoneAvailable(t *testing.T) {
	f := newFixture(t, Config{})
	pharmacy := f.addPartner(model.PartnerPharmacy, "Link Road Pharmacy")
	order := f.addPharmacyOrder(model.PharmacyIssue, withPharmacy(pharmacy))

	res, err := f.exec(adminActor(), model.EntityPharmacyOrder, order.ID, string(model.PharmacyReassignPharmacy), Payload{})
	require.NoError(t, err)
	assert.True(t, res.AssignmentPending)

	stored := f.pharmacyOrder(order.ID)
	assert.Equal(t, model.PharmacyIssue, stored.Status)
	assert.Equal(t, pharmacy.ID, *stored.PharmacyID)
	assert.NotNil(t, stored.ParkedAt)
}

func TestConsultationClaimAndApprove(t *testing.T) {
	f := newFixture(t, Config{})
	c, err := f.svc.CreateConsultation(f.ctx, f.patientActor(), CreateConsultationInput{Vertical: model.VerticalHairLoss})
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationPendingAssessment, c.Status)

	_, err = f.exec(model.SystemActor(), model.EntityConsultation, c.ID, string(model.ConsultationCompleteAIAssessment), Payload{})
	require.NoError(t, err)

	res, err := f.exec(f.doctorActor(), model.EntityConsultation, c.ID, string(model.ConsultationClaim), Payload{})
	require.NoError(t, err)
	assert.Equal(t, string(model.ConsultationDoctorReviewing), res.To)

	other := model.Actor{Role: model.RoleDoctor, ID: uuid.New()}
	_, err = f.exec(other, model.EntityConsultation, c.ID, string(model.ConsultationApprove), Payload{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	res, err = f.exec(f.doctorActor(), model.EntityConsultation, c.ID, string(model.ConsultationApprove), Payload{})
	require.NoError(t, err)
	assert.Equal(t, string(model.ConsultationApproved), res.To)

	_, err = f.exec(f.doctorActor(), model.EntityConsultation, c.ID, string(model.ConsultationReject), Payload{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidTransition))
}

func TestCreateLabOrderRejectsUnknownTest(t *testing.T) {
	f := newFixture(t, Config{})
	c := f.addConsultation(model.ConsultationDoctorReviewing)

	_, err := f.svc.CreateLabOrder(f.ctx, f.doctorActor(), CreateLabOrderInput{
		ConsultationID: c.ID,
		TestCodes:      []string{"FBS", "UNOBTANIUM"},
		Pincode:        pincode,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestIdempotencyKeyInFlightIsRejected(t *testing.T) {
	f := newFixture(t, Config{})
	order := f.addLabOrder(model.LabOrderOrdered)

	cmd := Command{
		Entity:         model.EntityLabOrder,
		EntityID:       order.ID,
		Event:          string(model.LabOrderBookSlot),
		Actor:          f.patientActor(),
		IdempotencyKey: "book-1",
		Payload:        Payload{BookedDate: "2024-03-16", TimeSlot: "7:00-8:00"},
	}
	key := idempotencyKey(cmd)
	require.NoError(t, f.svc.results.Add(key, inFlight{}, cache.DefaultExpiration))

	_, err := f.svc.Execute(f.ctx, cmd)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConcurrentModification))
	assert.Equal(t, model.LabOrderOrdered, f.labOrder(order.ID).Status)
	assert.Empty(t, f.store.Events())

	f.svc.results.Delete(key)
	res, err := f.svc.Execute(f.ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestFailedCommandReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t, Config{})
	order := f.addLabOrder(model.LabOrderOrdered)

	stale := order.Version + 1
	cmd := Command{
		Entity:          model.EntityLabOrder,
		EntityID:        order.ID,
		Event:           string(model.LabOrderBookSlot),
		Actor:           f.patientActor(),
		ExpectedVersion: &stale,
		IdempotencyKey:  "book-1",
		Payload:         Payload{BookedDate: "2024-03-16", TimeSlot: "7:00-8:00"},
	}
	_, err := f.svc.Execute(f.ctx, cmd)
	require.Error(t, err)

	_, found := f.svc.results.Get(idempotencyKey(cmd))
	assert.False(t, found)

	cmd.ExpectedVersion = &order.Version
	res, err := f.svc.Execute(f.ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, string(model.LabOrderSlotBooked), res.To)
}

func TestSuspendingOnlyPhlebotomistQueuesAssignedWork(t *testing.T) {
	f := newFixture(t, Config{ReassignOnSuspension: true})
	only := f.addPartner(model.PartnerPhlebotomist, "Anil")
	order := f.addLabOrder(model.LabOrderPhlebotomistAssigned, withPhlebotomist(only, morning.Add(8*time.Hour)))

	_, err := f.svc.SetPartnerStatus(f.ctx, adminActor(), only.ID, model.PartnerSuspended, nil)
	require.NoError(t, err)

	parked := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderPhlebotomistAssigned, parked.Status)
	require.NotNil(t, parked.ParkedAt)

	queue, err := roster.NewService(f.store).UnassignedQueue(f.ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, order.ID, queue[0].EntityID)
	assert.Equal(t, string(model.LabOrderPhlebotomistAssigned), queue[0].Status)
	require.NotNil(t, queue[0].AssigneeID)
	assert.Equal(t, only.ID, *queue[0].AssigneeID)
}

func TestRetryParkedReassignsEnRouteOrder(t *testing.T) {
	f := newFixture(t, Config{})
	current := f.addPartner(model.PartnerPhlebotomist, "Anil")
	order := f.addLabOrder(model.LabOrderPhlebotomistEnRoute, withPhlebotomist(current, morning.Add(time.Hour)))

	res, err := f.exec(adminActor(), model.EntityLabOrder, order.ID, string(model.LabOrderReassignPhlebotomist), Payload{})
	require.NoError(t, err)
	assert.True(t, res.AssignmentPending)

	queue, err := roster.NewService(f.store).UnassignedQueue(f.ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, order.ID, queue[0].EntityID)

	backup := f.addPartner(model.PartnerPhlebotomist, "Ravi")
	placed, err := f.svc.RetryParked(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, placed)

	stored := f.labOrder(order.ID)
	assert.Equal(t, model.LabOrderPhlebotomistAssigned, stored.Status)
	assert.Equal(t, backup.ID, *stored.PhlebotomistID)
	assert.Nil(t, stored.ParkedAt)

	queue, err = roster.NewService(f.store).UnassignedQueue(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}
