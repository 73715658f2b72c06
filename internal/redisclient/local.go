package redisclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type localSlotLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*sync.Mutex
}

// NewLocalSlotLocker returns an in-process Locker keyed by slot id. Used by the
// simulator and tests, and by single-node deployments without Redis.
func NewLocalSlotLocker() Locker {
	return &localSlotLocker{
		slots: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.slots[slotID]
	if !ok {
		m = &sync.Mutex{}
		l.slots[slotID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(ctx)
}
