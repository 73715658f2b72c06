package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/scheduling-agent/internal/slot"
)

// MemoryRepository backs tests and the local simulator. The slot commit goes
// through the slot repository's token CAS, preserving the same all-or-nothing
// behavior as the Postgres transaction.
type MemoryRepository struct {
	mu           sync.RWMutex
	slots        slot.Repository
	appointments map[uuid.UUID]*Appointment

	// FailNextCreate makes the next CreateConfirmed fail before the slot
	// commit, leaving the slot held like a rolled-back transaction would.
	// Exercises the coordinator's compensation path in tests.
	FailNextCreate error
}

func NewMemoryRepository(slots slot.Repository) *MemoryRepository {
	return &MemoryRepository{
		slots:        slots,
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *MemoryRepository) CreateConfirmed(ctx context.Context, patientID uuid.UUID, h slot.Hold, duration time.Duration) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailNextCreate != nil {
		err := r.FailNextCreate
		r.FailNextCreate = nil
		return nil, err
	}

	committed, err := r.slots.Commit(ctx, h.SlotID, h.Token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	appt := &Appointment{
		ID:           uuid.New(),
		PatientID:    patientID,
		SlotID:       committed.ID,
		DoctorName:   committed.DoctorName,
		LocationName: committed.LocationName,
		StartTime:    committed.StartTime,
		Duration:     duration,
		Status:       StatusConfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.appointments[appt.ID] = appt

	cp := *appt
	return &cp, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			result = append(result, *a)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}
