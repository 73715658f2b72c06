package reminder

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
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

type fakeAppointments struct {
	byID map[uuid.UUID]*booking.Appointment
}

func (f *fakeAppointments) CreateConfirmed(ctx context.Context, patientID uuid.UUID, h slot.Hold, d time.Duration) (*booking.Appointment, error) {
	panic("not used")
}

func (f *fakeAppointments) GetByID(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	return a, nil
}

func (f *fakeAppointments) UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Appointment, error) {
	panic("not used")
}

func (f *fakeAppointments) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]booking.Appointment, error) {
	panic("not used")
}

type captureNotifier struct {
	sent []notify.Message
	err  error
}

func (n *captureNotifier) Send(ctx context.Context, to notify.Contact, msg notify.Message) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func setupScheduler(t *testing.T, start time.Time) (*Scheduler, *MemoryRepository, *captureNotifier, *booking.Appointment) {
	t.Helper()

	ctx := context.Background()

	patients := patient.NewMemoryStore()
	email := "jane@example.com"
	p := &patient.Patient{FirstName: "Jane", LastName: "Doe", Email: &email}
	require.NoError(t, patients.Upsert(ctx, p))

	appt := &booking.Appointment{
		ID:         uuid.New(),
		PatientID:  p.ID,
		SlotID:     uuid.New(),
		DoctorName: "Dr. Emily Chen",
		StartTime:  start,
		Duration:   time.Hour,
		Status:     booking.StatusConfirmed,
	}

	repo := NewMemoryRepository()
	notifier := &captureNotifier{}
	appts := &fakeAppointments{byID: map[uuid.UUID]*booking.Appointment{appt.ID: appt}}
	composer := notify.Composer{ClinicName: "Test Clinic"}

	sched := NewScheduler(repo, appts, patients, notifier, composer, zerolog.Nop())
	return sched, repo, notifier, appt
}

func TestScheduleCreatesThreeTiers(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(14 * 24 * time.Hour).Truncate(time.Minute)
	sched, repo, _, appt := setupScheduler(t, start)

	require.NoError(t, sched.Schedule(ctx, appt))

	tasks, err := repo.ListByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	assert.Equal(t, TierWeekBefore, tasks[0].Tier)
	assert.True(t, tasks[0].FireAt.Equal(start.Add(-7*24*time.Hour)))
	assert.Equal(t, TierDayBefore, tasks[1].Tier)
	assert.True(t, tasks[1].FireAt.Equal(start.Add(-24*time.Hour)))
	assert.Equal(t, TierFinal, tasks[2].Tier)
	assert.True(t, tasks[2].FireAt.Equal(start.Add(-2*time.Hour)))

	for _, task := range tasks {
		assert.Equal(t, StatusPending, task.Status)
	}
}

func TestScheduleSkipsPastTiers(t *testing.T) {
	ctx := context.Background()

	t.Run("booking one hour before start skips all tiers", func(t *testing.T) {
		start := time.Now().Add(time.Hour)
		sched, repo, _, appt := setupScheduler(t, start)

		require.NoError(t, sched.Schedule(ctx, appt))

		tasks, err := repo.ListByAppointment(ctx, appt.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 3)
		for _, task := range tasks {
			assert.Equal(t, StatusSkipped, task.Status, "tier %s", task.Tier)
		}
	})

	t.Run("booking three days ahead skips only the week tier", func(t *testing.T) {
		start := time.Now().Add(3 * 24 * time.Hour)
		sched, repo, _, appt := setupScheduler(t, start)

		require.NoError(t, sched.Schedule(ctx, appt))

		tasks, err := repo.ListByAppointment(ctx, appt.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 3)
		assert.Equal(t, StatusSkipped, tasks[0].Status)
		assert.Equal(t, StatusPending, tasks[1].Status)
		assert.Equal(t, StatusPending, tasks[2].Status)
	})
}

func TestDispatchDueSendsAndMarks(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(14 * 24 * time.Hour)
	sched, _, notifier, appt := setupScheduler(t, start)

	require.NoError(t, sched.Schedule(ctx, appt))

	// Nothing due yet.
	n, err := sched.DispatchDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, notifier.sent)

	// The week-before tier comes due.
	n, err = sched.DispatchDue(ctx, start.Add(-7*24*time.Hour).Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindReminder7d, notifier.sent[0].Kind)

	// A second sweep at the same instant sends nothing: the task is sent.
	n, err = sched.DispatchDue(ctx, start.Add(-7*24*time.Hour).Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchRetriesOnNotifierFailure(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(14 * 24 * time.Hour)
	sched, repo, notifier, appt := setupScheduler(t, start)

	require.NoError(t, sched.Schedule(ctx, appt))

	due := start.Add(-7 * 24 * time.Hour).Add(time.Second)

	notifier.err = errors.New("smtp down")
	n, err := sched.DispatchDue(ctx, due)
	require.NoError(t, err, "delivery failure is not a sweep failure")
	assert.Zero(t, n)

	tasks, err := repo.ListByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, tasks[0].Status, "failed task stays pending")

	// Next sweep succeeds.
	notifier.err = nil
	n, err = sched.DispatchDue(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCancelSkipsNonSent(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(14 * 24 * time.Hour)
	sched, repo, notifier, appt := setupScheduler(t, start)

	require.NoError(t, sched.Schedule(ctx, appt))

	// Send the first tier, then cancel.
	_, err := sched.DispatchDue(ctx, start.Add(-7*24*time.Hour).Add(time.Second))
	require.NoError(t, err)

	require.NoError(t, sched.CancelForAppointment(ctx, appt.ID))

	tasks, err := repo.ListByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, tasks[0].Status, "sent stays sent")
	assert.Equal(t, StatusSkipped, tasks[1].Status)
	assert.Equal(t, StatusSkipped, tasks[2].Status)

	// Skipped tasks are never sent afterwards.
	before := len(notifier.sent)
	n, err := sched.DispatchDue(ctx, start)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, notifier.sent, before)
}

func TestDispatchSkipsCancelledAppointment(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(14 * 24 * time.Hour)
	sched, repo, notifier, appt := setupScheduler(t, start)

	require.NoError(t, sched.Schedule(ctx, appt))

	appt.Status = booking.StatusCancelled

	n, err := sched.DispatchDue(ctx, start.Add(-7*24*time.Hour).Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, notifier.sent)

	tasks, err := repo.ListByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, tasks[0].Status)
}
