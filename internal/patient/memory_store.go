package patient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and the local simulator.
type MemoryStore struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patients: make(map[uuid.UUID]*Patient)}
}

func (s *MemoryStore) Lookup(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.patients {
		if strings.EqualFold(p.FirstName, firstName) &&
			strings.EqualFold(p.LastName, lastName) &&
			sameDate(p.DateOfBirth, dob) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	now := time.Now()
	if existing, ok := s.patients[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
