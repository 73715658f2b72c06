package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Appointment owns exactly one slot for its lifetime. Doctor and location are
// denormalized from the slot at commit time so confirmations and reminders do
// not need to join back into inventory.
type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	SlotID       uuid.UUID
	DoctorName   string
	LocationName string
	StartTime    time.Time
	Duration     time.Duration
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
