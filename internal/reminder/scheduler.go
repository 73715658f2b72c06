package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/notify"
	"github.com/clinicflow/scheduling-agent/internal/patient"
)

// Scheduler records the three-tier reminder sequence for each confirmed
// appointment and dispatches due tasks on a sweep cadence.
type Scheduler struct {
	repo         Repository
	appointments booking.Repository
	patients     patient.Store
	notifier     notify.Notifier
	composer     notify.Composer
	logger       zerolog.Logger

	now func() time.Time // injectable clock for tests
}

func NewScheduler(
	repo Repository,
	appointments booking.Repository,
	patients patient.Store,
	notifier notify.Notifier,
	composer notify.Composer,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		repo:         repo,
		appointments: appointments,
		patients:     patients,
		notifier:     notifier,
		composer:     composer,
		logger:       logger,
		now:          time.Now,
	}
}

// Schedule creates exactly three tasks at start−7d, start−24h and start−2h.
// Tasks whose fire time already passed are created skipped, never dispatched
// late. Called once per confirmed appointment.
func (s *Scheduler) Schedule(ctx context.Context, appt *booking.Appointment) error {
	now := s.now()

	tasks := make([]Task, 0, len(Tiers))
	for _, tier := range Tiers {
		fireAt := appt.StartTime.Add(-tier.Offset())

		status := StatusPending
		if !fireAt.After(now) {
			status = StatusSkipped
		}

		tasks = append(tasks, Task{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			Tier:          tier,
			FireAt:        fireAt,
			Status:        status,
		})
	}

	if err := s.repo.CreateBatch(ctx, tasks); err != nil {
		return fmt.Errorf("create reminder tasks: %w", err)
	}

	return nil
}

// CancelForAppointment skips every reminder that has not been sent yet.
// Sent reminders stay sent; skipped tasks are never retried.
func (s *Scheduler) CancelForAppointment(ctx context.Context, apptID uuid.UUID) error {
	count, err := s.repo.SkipPendingForAppointment(ctx, apptID)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("appointment_id", apptID.String()).
		Int("skipped", count).
		Msg("reminders cancelled")
	return nil
}

// DispatchDue sends every pending task whose fire time has passed and returns
// the number dispatched. A task stays pending on delivery failure and is
// retried on the next sweep; the pending→sent compare-and-set keeps
// overlapping sweeps from double-claiming a task.
func (s *Scheduler) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.FindDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	dispatched := 0
	for _, task := range due {
		if err := s.dispatch(ctx, task); err != nil {
			s.logger.Warn().
				Err(err).
				Str("task_id", task.ID.String()).
				Str("tier", string(task.Tier)).
				Msg("reminder dispatch failed, will retry")
			continue
		}
		dispatched++
	}

	return dispatched, nil
}

func (s *Scheduler) dispatch(ctx context.Context, task Task) error {
	appt, err := s.appointments.GetByID(ctx, task.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == booking.StatusCancelled {
		// Cancelled between sweeps; retire the task instead of sending.
		if err := s.repo.UpdateStatus(ctx, task.ID, StatusPending, StatusSkipped); err != nil && !errors.Is(err, ErrTaskNotFound) {
			return err
		}
		return nil
	}

	p, err := s.patients.GetByID(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	contact := notify.Contact{Name: p.FullName()}
	if p.Email != nil {
		contact.Email = *p.Email
	}
	if p.Phone != nil {
		contact.Phone = *p.Phone
	}

	msg := s.composer.Reminder(task.Tier.NotifyKind(), p.FullName(), appt.DoctorName, appt.StartTime)
	if err := s.notifier.Send(ctx, contact, msg); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, task.ID, StatusPending, StatusSent); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			// Another sweep already claimed it; the duplicate send is
			// tolerated, deduplication is the notifier's concern.
			return nil
		}
		return err
	}

	return nil
}
