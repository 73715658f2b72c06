package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrTaskNotFound = errors.New("reminder task not found")

// Repository stores reminder tasks. UpdateStatus is compare-and-set so that
// overlapping dispatch sweeps cannot both claim the same task.
type Repository interface {
	CreateBatch(ctx context.Context, tasks []Task) error
	FindDue(ctx context.Context, now time.Time) ([]Task, error)
	ListByAppointment(ctx context.Context, apptID uuid.UUID) ([]Task, error)

	// UpdateStatus transitions a task from→to; ErrTaskNotFound when the task
	// is missing or no longer in the from status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error

	// SkipPendingForAppointment marks every pending task of the appointment
	// skipped, reporting how many were affected.
	SkipPendingForAppointment(ctx context.Context, apptID uuid.UUID) (int, error)
}
