package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound = errors.New("slot not found")

	// ErrSlotUnavailable means the slot is no longer open (lost a race, already
	// held or booked, or too small for the requested duration). Callers re-query
	// availability; the slot the user picked is never silently substituted.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrHoldNotFound means a commit or release presented a token that does not
	// match the current hold, typically because the hold already expired.
	ErrHoldNotFound = errors.New("hold not found")
)

// Repository owns slot rows. Hold, Commit and Release are compare-and-set:
// each transition checks the current status (and token) in a single atomic
// statement, so a concurrent expiry sweep and the holder's own commit cannot
// both win.
type Repository interface {
	Find(ctx context.Context, f Filter) ([]Slot, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Hold transitions open→held iff the slot is open and its capacity covers
	// the requested duration. Returns ErrSlotUnavailable otherwise.
	Hold(ctx context.Context, id, token uuid.UUID, duration time.Duration, expiresAt time.Time) (*Slot, error)

	// Commit transitions held→booked iff the token matches the current hold.
	Commit(ctx context.Context, id, token uuid.UUID) (*Slot, error)

	// Release transitions held→open iff the token matches, restoring the slot
	// to the pool with its original capacity.
	Release(ctx context.Context, id, token uuid.UUID) error

	// ReleaseExpired reopens every held slot whose hold lapsed before now and
	// reports how many were reclaimed.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}
