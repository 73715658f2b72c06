package slot

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusHeld   Status = "held"
	StatusBooked Status = "booked"
)

// Slot is one bookable unit of inventory: a doctor, at a location, at a start
// time, with a capacity that bounds the appointment duration it can absorb.
// Status only ever moves open→held→booked, or held→open on release.
type Slot struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	DoctorName    string
	Specialty     string
	LocationID    uuid.UUID
	LocationName  string
	StartTime     time.Time
	Capacity      time.Duration
	Status        Status
	HoldToken     *uuid.UUID
	HoldExpiresAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Hold is proof of a reservation: commit and release require the token, so
// only the caller that placed the hold can finish or give it back.
type Hold struct {
	SlotID    uuid.UUID
	Token     uuid.UUID
	ExpiresAt time.Time
}

// Filter narrows an availability query. Zero From/To means an open-ended
// range; nil doctor/location means no filter on that axis.
type Filter struct {
	DoctorID    *uuid.UUID
	LocationID  *uuid.UUID
	Specialty   *string
	From        time.Time
	To          time.Time
	MinDuration time.Duration
}
