package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/scheduling-agent/internal/redisclient"
)

// Manager owns slot availability. Reserve takes the per-slot lock so that
// concurrent bookings for the same slot are totally ordered; exactly one
// caller wins the hold, the rest observe ErrSlotUnavailable and re-query.
type Manager struct {
	repo    Repository
	locker  redisclient.Locker
	holdTTL time.Duration
	logger  zerolog.Logger
}

func NewManager(repo Repository, locker redisclient.Locker, holdTTL time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		repo:    repo,
		locker:  locker,
		holdTTL: holdTTL,
		logger:  logger,
	}
}

// FindSlots returns open slots whose capacity covers minDuration, earliest
// start time first.
func (m *Manager) FindSlots(ctx context.Context, f Filter) ([]Slot, error) {
	slots, err := m.repo.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find slots: %w", err)
	}
	return slots, nil
}

// Reserve places a time-bounded hold on an open slot. The hold token returned
// is the only way to commit or release the slot afterwards.
func (m *Manager) Reserve(ctx context.Context, slotID uuid.UUID, duration time.Duration) (Hold, error) {
	token := uuid.New()
	expiresAt := time.Now().Add(m.holdTTL)

	err := m.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		_, err := m.repo.Hold(lockCtx, slotID, token, duration, expiresAt)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// Another session is mid-reserve on this slot; to the caller that
			// is the same as losing the race.
			return Hold{}, ErrSlotUnavailable
		}
		if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrSlotNotFound) {
			return Hold{}, err
		}
		return Hold{}, fmt.Errorf("reserve slot %s: %w", slotID, err)
	}

	m.logger.Debug().
		Str("slot_id", slotID.String()).
		Time("hold_expires_at", expiresAt).
		Msg("slot held")

	return Hold{SlotID: slotID, Token: token, ExpiresAt: expiresAt}, nil
}

// Commit finalizes a hold, transitioning the slot to booked. Only the holder
// of the token can commit; an expired-and-reclaimed hold fails with
// ErrHoldNotFound.
func (m *Manager) Commit(ctx context.Context, h Hold) (*Slot, error) {
	s, err := m.repo.Commit(ctx, h.SlotID, h.Token)
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) || errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("commit slot %s: %w", h.SlotID, err)
	}
	return s, nil
}

// Release gives a held slot back to the pool, a compensating action when the
// flow downstream of the hold fails or the session is abandoned.
func (m *Manager) Release(ctx context.Context, h Hold) error {
	err := m.repo.Release(ctx, h.SlotID, h.Token)
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) || errors.Is(err, ErrSlotNotFound) {
			return err
		}
		return fmt.Errorf("release slot %s: %w", h.SlotID, err)
	}

	m.logger.Debug().Str("slot_id", h.SlotID.String()).Msg("slot released")
	return nil
}

// ExpireHolds reclaims holds whose TTL lapsed without a commit or release.
// Run periodically by the worker.
func (m *Manager) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	count, err := m.repo.ReleaseExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.logger.Info().Int("count", count).Msg("expired holds released")
	}
	return count, nil
}
