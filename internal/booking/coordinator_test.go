package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/notify"
	"github.com/clinicflow/scheduling-agent/internal/patient"
	"github.com/clinicflow/scheduling-agent/internal/redisclient"
	"github.com/clinicflow/scheduling-agent/internal/reminder"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

type captureNotifier struct {
	sent []notify.Message
}

func (n *captureNotifier) Send(ctx context.Context, to notify.Contact, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	patients  *patient.MemoryStore
	slots     *slot.MemoryRepository
	manager   *slot.Manager
	appts     *booking.MemoryRepository
	reminders *reminder.MemoryRepository
	notifier  *captureNotifier
	coord     *booking.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	composer := notify.Composer{ClinicName: "MediCare Allergy & Wellness Center"}

	patients := patient.NewMemoryStore()
	slots := slot.NewMemoryRepository()
	manager := slot.NewManager(slots, redisclient.NewLocalSlotLocker(), 10*time.Minute, logger)
	appts := booking.NewMemoryRepository(slots)
	reminders := reminder.NewMemoryRepository()
	notifier := &captureNotifier{}

	scheduler := reminder.NewScheduler(reminders, appts, patients, notifier, composer, logger)

	classifier := patient.Classifier{
		NewPatientDuration:       60 * time.Minute,
		ReturningPatientDuration: 30 * time.Minute,
	}

	coord := booking.NewCoordinator(patients, classifier, manager, appts, scheduler, notifier, composer, logger)

	return &fixture{
		patients:  patients,
		slots:     slots,
		manager:   manager,
		appts:     appts,
		reminders: reminders,
		notifier:  notifier,
		coord:     coord,
	}
}

func (f *fixture) addSlot(start time.Time, capacity time.Duration) slot.Slot {
	s := slot.Slot{
		ID:           uuid.New(),
		DoctorID:     uuid.New(),
		DoctorName:   "Dr. Xavier Lee",
		Specialty:    "Allergy",
		LocationID:   uuid.New(),
		LocationName: "Downtown Clinic",
		StartTime:    start,
		Capacity:     capacity,
		Status:       slot.StatusOpen,
	}
	f.slots.Add(s)
	return s
}

func janeDoe() booking.Identity {
	email := "jane.doe@example.com"
	return booking.Identity{
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Email:       &email,
	}
}

func TestBookNewPatientEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start := time.Now().Add(14 * 24 * time.Hour).Truncate(time.Minute)
	s := f.addSlot(start, time.Hour)

	appt, err := f.coord.Book(ctx, booking.Request{
		Identity:  janeDoe(),
		SlotID:    s.ID,
		Insurance: &patient.Insurance{Carrier: "BlueCross", MemberID: "M-1001", GroupID: "G-7"},
	})
	require.NoError(t, err)

	assert.Equal(t, booking.StatusConfirmed, appt.Status)
	assert.Equal(t, 60*time.Minute, appt.Duration, "new patient gets the long duration")
	assert.Equal(t, "Dr. Xavier Lee", appt.DoctorName)
	assert.True(t, appt.StartTime.Equal(start))

	booked, err := f.slots.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, slot.StatusBooked, booked.Status)

	// Patient record created with insurance persisted.
	p, err := f.patients.Lookup(ctx, "Jane", "Doe", janeDoe().DateOfBirth)
	require.NoError(t, err)
	require.NotNil(t, p.Insurance)
	assert.Equal(t, "BlueCross", p.Insurance.Carrier)

	// Exactly three reminder tasks relative to the slot start.
	tasks, err := f.reminders.ListByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.True(t, tasks[0].FireAt.Equal(start.Add(-7*24*time.Hour)))
	assert.True(t, tasks[1].FireAt.Equal(start.Add(-24*time.Hour)))
	assert.True(t, tasks[2].FireAt.Equal(start.Add(-2*time.Hour)))

	// Confirmation went out.
	require.NotEmpty(t, f.notifier.sent)
	assert.Equal(t, notify.KindConfirmation, f.notifier.sent[0].Kind)
}

func TestBookReturningPatientShortDuration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	identity := janeDoe()
	require.NoError(t, f.patients.Upsert(ctx, &patient.Patient{
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		DateOfBirth: identity.DateOfBirth,
	}))

	s := f.addSlot(time.Now().Add(48*time.Hour), time.Hour)

	appt, err := f.coord.Book(ctx, booking.Request{Identity: identity, SlotID: s.ID})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, appt.Duration)
}

func TestBookValidationErrorMutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addSlot(time.Now().Add(48*time.Hour), time.Hour)

	identity := janeDoe()
	identity.DateOfBirth = time.Time{}

	_, err := f.coord.Book(ctx, booking.Request{Identity: identity, SlotID: s.ID})

	var vErr *booking.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "date_of_birth", vErr.Field)

	// No hold taken, no patient created.
	untouched, err := f.slots.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, slot.StatusOpen, untouched.Status)

	_, err = f.patients.Lookup(ctx, "Jane", "Doe", janeDoe().DateOfBirth)
	assert.ErrorIs(t, err, patient.ErrPatientNotFound)
}

func TestBookSlotUnavailablePropagates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addSlot(time.Now().Add(48*time.Hour), time.Hour)

	// Someone else holds the slot.
	_, err := f.manager.Reserve(ctx, s.ID, time.Hour)
	require.NoError(t, err)

	_, err = f.coord.Book(ctx, booking.Request{Identity: janeDoe(), SlotID: s.ID})
	assert.ErrorIs(t, err, slot.ErrSlotUnavailable)
}

func TestBookUsesCallerHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addSlot(time.Now().Add(48*time.Hour), time.Hour)

	h, err := f.manager.Reserve(ctx, s.ID, time.Hour)
	require.NoError(t, err)

	appt, err := f.coord.Book(ctx, booking.Request{Identity: janeDoe(), SlotID: s.ID, Hold: &h})
	require.NoError(t, err)
	assert.Equal(t, s.ID, appt.SlotID)
}

func TestBookPersistenceFailureReleasesHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addSlot(time.Now().Add(48*time.Hour), time.Hour)

	f.appts.FailNextCreate = errors.New("connection reset")

	_, err := f.coord.Book(ctx, booking.Request{Identity: janeDoe(), SlotID: s.ID})

	var pErr *booking.PersistenceError
	require.ErrorAs(t, err, &pErr)

	// Compensation put the slot back in the pool.
	reopened, err := f.slots.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, slot.StatusOpen, reopened.Status)
	assert.Nil(t, reopened.HoldToken)
}

func TestBookExpiredHoldSurfacesAsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addSlot(time.Now().Add(48*time.Hour), time.Hour)

	h, err := f.manager.Reserve(ctx, s.ID, time.Hour)
	require.NoError(t, err)

	// The sweep reclaims the hold before the booking lands.
	_, err = f.manager.ExpireHolds(ctx, h.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)

	_, err = f.coord.Book(ctx, booking.Request{Identity: janeDoe(), SlotID: s.ID, Hold: &h})
	assert.ErrorIs(t, err, slot.ErrSlotUnavailable)
}

func TestCancelSkipsReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addSlot(time.Now().Add(14*24*time.Hour), time.Hour)

	appt, err := f.coord.Book(ctx, booking.Request{Identity: janeDoe(), SlotID: s.ID})
	require.NoError(t, err)

	cancelled, err := f.coord.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)

	tasks, err := f.reminders.ListByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, reminder.StatusSkipped, task.Status)
	}

	// Cancelling twice is an invalid transition.
	_, err = f.coord.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidStatusTransition)
}

func TestRequireInsurancePolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.coord.RequireInsurance = true
	s := f.addSlot(time.Now().Add(48*time.Hour), time.Hour)

	_, err := f.coord.Book(ctx, booking.Request{Identity: janeDoe(), SlotID: s.ID})

	var vErr *booking.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "insurance", vErr.Field)
}
