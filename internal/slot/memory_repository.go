package slot

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps the inventory in process, with the same open→held→
// booked compare-and-set semantics as the Postgres repository. All transitions
// happen under one mutex, so they are linearizable per slot by construction.
type MemoryRepository struct {
	mu    sync.RWMutex
	slots map[uuid.UUID]*Slot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{slots: make(map[uuid.UUID]*Slot)}
}

// Add loads a slot into the inventory. Inventory is external data; the
// repository only transitions status after this point.
func (r *MemoryRepository) Add(s Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = StatusOpen
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	cp := s
	r.slots[s.ID] = &cp
}

func (r *MemoryRepository) Find(ctx context.Context, f Filter) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Slot
	for _, s := range r.slots {
		if s.Status != StatusOpen || s.Capacity < f.MinDuration {
			continue
		}
		if !f.From.IsZero() && s.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !s.StartTime.Before(f.To) {
			continue
		}
		if f.DoctorID != nil && s.DoctorID != *f.DoctorID {
			continue
		}
		if f.LocationID != nil && s.LocationID != *f.LocationID {
			continue
		}
		if f.Specialty != nil && !strings.EqualFold(s.Specialty, *f.Specialty) {
			continue
		}
		result = append(result, *s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})

	return result, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) Hold(ctx context.Context, id, token uuid.UUID, duration time.Duration, expiresAt time.Time) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != StatusOpen || s.Capacity < duration {
		return nil, ErrSlotUnavailable
	}

	tok := token
	exp := expiresAt
	s.Status = StatusHeld
	s.HoldToken = &tok
	s.HoldExpiresAt = &exp
	s.UpdatedAt = time.Now()

	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) Commit(ctx context.Context, id, token uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != StatusHeld || s.HoldToken == nil || *s.HoldToken != token {
		return nil, ErrHoldNotFound
	}

	s.Status = StatusBooked
	s.HoldToken = nil
	s.HoldExpiresAt = nil
	s.UpdatedAt = time.Now()

	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) Release(ctx context.Context, id, token uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Status != StatusHeld || s.HoldToken == nil || *s.HoldToken != token {
		return ErrHoldNotFound
	}

	s.Status = StatusOpen
	s.HoldToken = nil
	s.HoldExpiresAt = nil
	s.UpdatedAt = time.Now()

	return nil
}

func (r *MemoryRepository) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.slots {
		if s.Status == StatusHeld && s.HoldExpiresAt != nil && s.HoldExpiresAt.Before(now) {
			s.Status = StatusOpen
			s.HoldToken = nil
			s.HoldExpiresAt = nil
			s.UpdatedAt = time.Now()
			count++
		}
	}

	return count, nil
}
