package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/scheduling-agent/internal/patient"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

type Stage string

const (
	StageGreeting  Stage = "GREETING"
	StageIdentity  Stage = "IDENTITY_COLLECTION"
	StageSpecialty Stage = "SPECIALTY_SELECTION"
	StageSlot      Stage = "SLOT_SELECTION"
	StageInsurance Stage = "INSURANCE_COLLECTION"
	StageConfirm   Stage = "CONFIRMATION"
	StageConfirmed Stage = "CONFIRMED" // terminal, booking committed
	StageAbandoned Stage = "ABANDONED" // terminal, idle timeout or explicit cancel
)

func (s Stage) Terminal() bool {
	return s == StageConfirmed || s == StageAbandoned
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionTerminal = errors.New("session already ended")
)

// Fields is the accumulated intake state. It only ever grows until the
// session reaches a terminal stage; a later stage's failure never erases an
// earlier stage's answer.
type Fields struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Email       *string
	Phone       *string

	Category patient.Category
	Duration time.Duration

	Specialty string
	Doctor    string

	Insurance *patient.Insurance
}

// Session is one in-progress booking conversation. It is the only mutable
// conversational state in the system and lives inside the Store; callers
// reach it through Store.With, never through shared globals.
type Session struct {
	ID             uuid.UUID
	Stage          Stage
	Fields         Fields
	Offered        []slot.Slot // candidates presented at the last slot prompt
	Hold           *slot.Hold
	HeldSlot       *slot.Slot
	CreatedAt      time.Time
	LastActivityAt time.Time

	mu sync.Mutex
}

// Store keeps active sessions in process. Completed and abandoned sessions
// are dropped; durable records live with the booking, not the conversation.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*Session)}
}

func (s *Store) Create(now time.Time) *Session {
	sess := &Session{
		ID:             uuid.New(),
		Stage:          StageGreeting,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// With runs fn with the session locked. Turns for the same session serialize
// here; turns for different sessions proceed independently.
func (s *Store) With(ctx context.Context, id uuid.UUID, fn func(*Session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(sess)
}

// Remove drops a session once it reaches a terminal stage.
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// FindIdle returns sessions with no activity since the cutoff. The caller
// abandons each through With, so the sweep cannot race an in-flight turn.
func (s *Store) FindIdle(cutoff time.Time) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.LastActivityAt.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len reports the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
