package reminder

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/scheduling-agent/internal/notify"
)

// Tier is one of the three fixed offsets before the appointment start at
// which a reminder fires.
type Tier string

const (
	TierWeekBefore Tier = "t_minus_7d"
	TierDayBefore  Tier = "t_minus_24h"
	TierFinal      Tier = "t_minus_2h"
)

// Offset returns how long before the appointment start this tier fires.
func (t Tier) Offset() time.Duration {
	switch t {
	case TierWeekBefore:
		return 7 * 24 * time.Hour
	case TierDayBefore:
		return 24 * time.Hour
	case TierFinal:
		return 2 * time.Hour
	}
	return 0
}

// NotifyKind selects the message template for this tier.
func (t Tier) NotifyKind() notify.Kind {
	switch t {
	case TierWeekBefore:
		return notify.KindReminder7d
	case TierDayBefore:
		return notify.KindReminder24h
	default:
		return notify.KindReminder2h
	}
}

// Tiers in firing order, earliest first.
var Tiers = []Tier{TierWeekBefore, TierDayBefore, TierFinal}

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
)

// Task is one durably recorded reminder. A task whose fire-at already passed
// at creation is born skipped; a late reminder would only mislead the patient.
type Task struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Tier          Tier
	FireAt        time.Time
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
