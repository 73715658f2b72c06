package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/scheduling-agent/internal/redisclient"
)

func newTestManager(t *testing.T, holdTTL time.Duration) (*Manager, *MemoryRepository) {
	t.Helper()

	repo := NewMemoryRepository()
	mgr := NewManager(repo, redisclient.NewLocalSlotLocker(), holdTTL, zerolog.Nop())
	return mgr, repo
}

func addOpenSlot(repo *MemoryRepository, start time.Time, capacity time.Duration) Slot {
	s := Slot{
		ID:         uuid.New(),
		DoctorID:   uuid.New(),
		LocationID: uuid.New(),
		StartTime:  start,
		Capacity:   capacity,
		Status:     StatusOpen,
	}
	repo.Add(s)
	return s
}

func TestFindSlotsOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	mgr, repo := newTestManager(t, 10*time.Minute)

	base := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	late := addOpenSlot(repo, base.Add(4*time.Hour), time.Hour)
	early := addOpenSlot(repo, base, time.Hour)
	short := addOpenSlot(repo, base.Add(2*time.Hour), 30*time.Minute)

	got, err := mgr.FindSlots(ctx, Filter{MinDuration: time.Hour})
	require.NoError(t, err)
	require.Len(t, got, 2, "30-minute slot cannot absorb a 60-minute appointment")
	assert.Equal(t, early.ID, got[0].ID, "earliest slot first")
	assert.Equal(t, late.ID, got[1].ID)

	got, err = mgr.FindSlots(ctx, Filter{MinDuration: 30 * time.Minute})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = mgr.FindSlots(ctx, Filter{DoctorID: &short.DoctorID, MinDuration: 30 * time.Minute})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, short.ID, got[0].ID)
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	ctx := context.Background()
	mgr, repo := newTestManager(t, 10*time.Minute)
	s := addOpenSlot(repo, time.Now().Add(time.Hour), time.Hour)

	const callers = 32

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		unavail  int
		lastHold Hold
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := mgr.Reserve(ctx, s.ID, time.Hour)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				lastHold = h
			} else {
				assert.ErrorIs(t, err, ErrSlotUnavailable)
				unavail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one caller wins the hold")
	assert.Equal(t, callers-1, unavail)

	held, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHeld, held.Status)
	require.NotNil(t, held.HoldToken)
	assert.Equal(t, lastHold.Token, *held.HoldToken)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, repo := newTestManager(t, 10*time.Minute)
	s := addOpenSlot(repo, time.Now().Add(time.Hour), time.Hour)

	h, err := mgr.Reserve(ctx, s.ID, time.Hour)
	require.NoError(t, err)

	// While held, the slot is invisible to availability queries.
	got, err := mgr.FindSlots(ctx, Filter{MinDuration: time.Hour})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, mgr.Release(ctx, h))

	// After release it is indistinguishable from an untouched slot.
	got, err = mgr.FindSlots(ctx, Filter{MinDuration: time.Hour})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, s.ID, got[0].ID)
	assert.Equal(t, StatusOpen, got[0].Status)
	assert.Equal(t, s.Capacity, got[0].Capacity)
	assert.Nil(t, got[0].HoldToken)
}

func TestCommitRequiresHoldToken(t *testing.T) {
	ctx := context.Background()
	mgr, repo := newTestManager(t, 10*time.Minute)
	s := addOpenSlot(repo, time.Now().Add(time.Hour), time.Hour)

	h, err := mgr.Reserve(ctx, s.ID, time.Hour)
	require.NoError(t, err)

	// A forged token cannot commit someone else's hold.
	_, err = mgr.Commit(ctx, Hold{SlotID: s.ID, Token: uuid.New()})
	assert.ErrorIs(t, err, ErrHoldNotFound)

	booked, err := mgr.Commit(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, booked.Status)

	// Booked never goes back to open via release.
	err = mgr.Release(ctx, h)
	assert.ErrorIs(t, err, ErrHoldNotFound)
}

func TestExpireHoldsReclaimsOnlyLapsed(t *testing.T) {
	ctx := context.Background()
	mgr, repo := newTestManager(t, time.Minute)
	a := addOpenSlot(repo, time.Now().Add(time.Hour), time.Hour)
	b := addOpenSlot(repo, time.Now().Add(2*time.Hour), time.Hour)

	ha, err := mgr.Reserve(ctx, a.ID, time.Hour)
	require.NoError(t, err)
	_, err = mgr.Reserve(ctx, b.ID, time.Hour)
	require.NoError(t, err)

	// Sweep before either hold lapses reclaims nothing.
	count, err := mgr.ExpireHolds(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)

	// Past both TTLs the sweep reclaims both slots.
	count, err = mgr.ExpireHolds(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The original holder's commit now loses: the expiry already won.
	_, err = mgr.Commit(ctx, ha)
	assert.ErrorIs(t, err, ErrHoldNotFound)

	reopened, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, reopened.Status)
}

func TestExpiryCannotRaceCommit(t *testing.T) {
	ctx := context.Background()
	mgr, repo := newTestManager(t, time.Millisecond)
	s := addOpenSlot(repo, time.Now().Add(time.Hour), time.Hour)

	h, err := mgr.Reserve(ctx, s.ID, time.Hour)
	require.NoError(t, err)

	deadline := h.ExpiresAt.Add(time.Millisecond)

	var wg sync.WaitGroup
	var commitErr, expireErr error
	var expired int

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, commitErr = mgr.Commit(ctx, h)
	}()
	go func() {
		defer wg.Done()
		expired, expireErr = mgr.ExpireHolds(ctx, deadline)
	}()
	wg.Wait()

	require.NoError(t, expireErr)

	// Token CAS guarantees only one of the two observed the hold.
	if commitErr == nil {
		assert.Zero(t, expired, "commit won, expiry must reclaim nothing")
		final, err := repo.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBooked, final.Status)
	} else {
		assert.ErrorIs(t, commitErr, ErrHoldNotFound)
		assert.Equal(t, 1, expired)
		final, err := repo.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusOpen, final.Status)
	}
}
