package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/scheduling-agent/internal/notify"
	"github.com/clinicflow/scheduling-agent/internal/patient"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

// ReminderScheduler creates and cancels reminder tasks for an appointment.
// Implemented by internal/reminder.
type ReminderScheduler interface {
	Schedule(ctx context.Context, appt *Appointment) error
	CancelForAppointment(ctx context.Context, apptID uuid.UUID) error
}

// Identity is the validated patient identity collected during intake.
type Identity struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Phone       *string
	Email       *string
}

// Request carries everything the coordinator needs to finalize one booking.
// Hold is set when the conversation already reserved the slot during slot
// selection; when nil the coordinator reserves the slot itself.
type Request struct {
	Identity  Identity
	SlotID    uuid.UUID
	Hold      *slot.Hold
	Insurance *patient.Insurance
}

// Coordinator drives the booking transaction end to end: classify, reserve,
// persist, commit, schedule reminders. Callers observe either a confirmed
// appointment with reminders created, or an error with no appointment
// persisted and the slot back in (or on its way back to) the pool.
type Coordinator struct {
	patients   patient.Store
	classifier patient.Classifier
	slots      *slot.Manager
	repo       Repository
	scheduler  ReminderScheduler
	notifier   notify.Notifier
	composer   notify.Composer

	// RequireInsurance makes carrier and member id mandatory at booking time.
	RequireInsurance bool

	logger zerolog.Logger
}

func NewCoordinator(
	patients patient.Store,
	classifier patient.Classifier,
	slots *slot.Manager,
	repo Repository,
	scheduler ReminderScheduler,
	notifier notify.Notifier,
	composer notify.Composer,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		patients:   patients,
		classifier: classifier,
		slots:      slots,
		repo:       repo,
		scheduler:  scheduler,
		notifier:   notifier,
		composer:   composer,
		logger:     logger,
	}
}

func (c *Coordinator) validate(req Request) error {
	if req.Identity.FirstName == "" || req.Identity.LastName == "" {
		return &ValidationError{Field: "name", Reason: "first and last name are required"}
	}
	if req.Identity.DateOfBirth.IsZero() {
		return &ValidationError{Field: "date_of_birth", Reason: "required"}
	}
	if req.Identity.DateOfBirth.After(time.Now()) {
		return &ValidationError{Field: "date_of_birth", Reason: "must be in the past"}
	}
	if req.Identity.Email == nil && req.Identity.Phone == nil {
		return &ValidationError{Field: "contact", Reason: "an email address or phone number is required"}
	}
	if req.SlotID == uuid.Nil && req.Hold == nil {
		return &ValidationError{Field: "slot", Reason: "no slot selected"}
	}
	if c.RequireInsurance {
		if req.Insurance == nil || req.Insurance.Carrier == "" || req.Insurance.MemberID == "" {
			return &ValidationError{Field: "insurance", Reason: "carrier and member id are required"}
		}
	}
	return nil
}

// Book runs the booking transaction. Error taxonomy: *ValidationError (no
// state mutated, caller re-prompts), slot.ErrSlotUnavailable (caller re-offers
// alternatives), *PersistenceError (held slot released, caller may retry from
// slot selection).
func (c *Coordinator) Book(ctx context.Context, req Request) (*Appointment, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	match, err := c.patients.Lookup(ctx, req.Identity.FirstName, req.Identity.LastName, req.Identity.DateOfBirth)
	if err != nil && !errors.Is(err, patient.ErrPatientNotFound) {
		return nil, c.compensate(ctx, req.Hold, &PersistenceError{Op: "patient lookup", Err: err})
	}

	cls := c.classifier.Classify(match)

	hold := req.Hold
	if hold == nil {
		h, err := c.slots.Reserve(ctx, req.SlotID, cls.Duration)
		if err != nil {
			// ErrSlotUnavailable propagates unchanged; the conversation must
			// re-offer alternatives, never substitute a slot silently.
			return nil, err
		}
		hold = &h
	}

	p := match
	if p == nil {
		p = &patient.Patient{
			ID:          uuid.New(),
			FirstName:   req.Identity.FirstName,
			LastName:    req.Identity.LastName,
			DateOfBirth: req.Identity.DateOfBirth,
		}
	}
	p.Phone = req.Identity.Phone
	p.Email = req.Identity.Email
	if req.Insurance != nil {
		p.Insurance = req.Insurance
	}

	if err := c.patients.Upsert(ctx, p); err != nil {
		return nil, c.compensate(ctx, hold, &PersistenceError{Op: "patient upsert", Err: err})
	}

	appt, err := c.repo.CreateConfirmed(ctx, p.ID, *hold, cls.Duration)
	if err != nil {
		if errors.Is(err, slot.ErrHoldNotFound) {
			// The hold lapsed mid-conversation and the sweep reclaimed the
			// slot. Nothing to compensate; the caller re-queries availability.
			return nil, slot.ErrSlotUnavailable
		}
		return nil, c.compensate(ctx, hold, &PersistenceError{Op: "appointment create", Err: err})
	}

	c.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", p.ID.String()).
		Str("category", string(cls.Category)).
		Dur("duration", appt.Duration).
		Msg("appointment confirmed")

	// Reminder tasks are created synchronously; the booking stands even if
	// this fails, but the gap needs an operator to reconcile.
	if err := c.scheduler.Schedule(ctx, appt); err != nil {
		c.logger.Error().
			Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("reminder scheduling failed, needs reconciliation")
	}

	c.sendConfirmation(ctx, p, appt)

	return appt, nil
}

// Cancel transitions a confirmed appointment to cancelled and skips its
// outstanding reminders. The booked slot is not reopened; that is a separate
// inventory operation.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := c.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			if _, getErr := c.repo.GetByID(ctx, id); getErr == nil {
				return nil, ErrInvalidStatusTransition
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if err := c.scheduler.CancelForAppointment(ctx, appt.ID); err != nil {
		c.logger.Error().
			Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("reminder cancellation failed, needs reconciliation")
	}

	return appt, nil
}

// compensate releases the hold after a downstream failure. A failed release
// is an inventory inconsistency that cannot be resolved here.
func (c *Coordinator) compensate(ctx context.Context, hold *slot.Hold, cause error) error {
	if hold == nil {
		return cause
	}

	if err := c.slots.Release(ctx, *hold); err != nil && !errors.Is(err, slot.ErrHoldNotFound) {
		c.logger.Error().
			Err(err).
			Str("slot_id", hold.SlotID.String()).
			Msg("FATAL: compensating release failed, slot needs manual reconciliation")
	}

	return cause
}

func (c *Coordinator) sendConfirmation(ctx context.Context, p *patient.Patient, appt *Appointment) {
	contact := notify.Contact{Name: p.FullName()}
	if p.Email != nil {
		contact.Email = *p.Email
	}
	if p.Phone != nil {
		contact.Phone = *p.Phone
	}

	msg := c.composer.Confirmation(p.FullName(), appt.DoctorName, appt.StartTime, appt.Duration)
	if err := c.notifier.Send(ctx, contact, msg); err != nil {
		// Invisible to the patient flow; the booking is already confirmed.
		c.logger.Warn().
			Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("confirmation notification failed")
	}
}
