package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/scheduling-agent/internal/slot"
)

// Repository persists appointments. CreateConfirmed is the one transactional
// write in the system: the slot's held→booked transition and the appointment
// insert succeed or fail together, so readers never see a half-created
// booking.
type Repository interface {
	// CreateConfirmed commits the hold and inserts a confirmed appointment in
	// a single transaction. The slot's start time, doctor and location are
	// copied onto the returned appointment. Fails with slot.ErrHoldNotFound
	// when the hold already lapsed.
	CreateConfirmed(ctx context.Context, patientID uuid.UUID, h slot.Hold, duration time.Duration) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
}
