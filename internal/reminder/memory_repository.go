package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[uuid.UUID]*Task)}
}

func (r *MemoryRepository) CreateBatch(ctx context.Context, tasks []Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, t := range tasks {
		t.CreatedAt = now
		t.UpdatedAt = now
		cp := t
		r.tasks[t.ID] = &cp
	}

	return nil
}

func (r *MemoryRepository) FindDue(ctx context.Context, now time.Time) ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Task
	for _, t := range r.tasks {
		if t.Status == StatusPending && !t.FireAt.After(now) {
			result = append(result, *t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FireAt.Before(result[j].FireAt)
	})

	return result, nil
}

func (r *MemoryRepository) ListByAppointment(ctx context.Context, apptID uuid.UUID) ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Task
	for _, t := range r.tasks {
		if t.AppointmentID == apptID {
			result = append(result, *t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FireAt.Before(result[j].FireAt)
	})

	return result, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.Status != from {
		return ErrTaskNotFound
	}

	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) SkipPendingForAppointment(ctx context.Context, apptID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, t := range r.tasks {
		if t.AppointmentID == apptID && t.Status == StatusPending {
			t.Status = StatusSkipped
			t.UpdatedAt = time.Now()
			count++
		}
	}

	return count, nil
}
