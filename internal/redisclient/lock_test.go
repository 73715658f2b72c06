package redisclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestRedisSlotLockerExcludesConcurrentHolder(t *testing.T) {
	client := newTestClient(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)
	slotID := uuid.New()

	ctx := context.Background()

	err := locker.WithSlotLock(ctx, slotID, func(ctx context.Context) error {
		// A second acquisition while the lock is held must fail fast.
		inner := locker.WithSlotLock(ctx, slotID, func(ctx context.Context) error {
			t.Fatal("critical section entered twice")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// Released after the critical section, so a fresh acquisition succeeds.
	err = locker.WithSlotLock(ctx, slotID, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}

func TestRedisSlotLockerIndependentSlots(t *testing.T) {
	client := newTestClient(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)

	ctx := context.Background()

	err := locker.WithSlotLock(ctx, uuid.New(), func(ctx context.Context) error {
		return locker.WithSlotLock(ctx, uuid.New(), func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestLocalSlotLockerSerializes(t *testing.T) {
	locker := NewLocalSlotLocker()
	slotID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "critical section must never be entered concurrently")
}
