package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "549111", State{Step: StepDate, AvailableTimes: []string{"09:00"}}, time.Hour))
	st, ok, err := s.Get(ctx, "549111")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepDate, st.Step)

	st.AvailableTimes[0] = "changed"
	again, _, _ := s.Get(ctx, "549111")
	assert.Equal(t, "09:00", again.AvailableTimes[0])

	now = now.Add(time.Hour)
	_, ok, err = s.Get(ctx, "549111")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", State{Step: StepLocation}, time.Minute))
	require.NoError(t, s.Put(ctx, "b", State{Step: StepLocation}, time.Hour))
	require.NoError(t, s.Put(ctx, "c", State{Step: StepLocation}, 0))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Delete(ctx, "b"))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreLockSerializes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := s.Lock(ctx, "sender")
			if err != nil {
				t.Error(err)
				return
			}
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
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)

	s.mu.Lock()
	assert.Empty(t, s.locks)
	s.mu.Unlock()
}

func TestMemoryStoreLockTimeout(t *testing.T) {
	s := NewMemoryStore()
	unlock, err := s.Lock(context.Background(), "sender")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, "sender")
	assert.ErrorIs(t, err, ErrLocked)

	other, err := s.Lock(context.Background(), "someone-else")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := s.Lock(context.Background(), "sender")
	require.NoError(t, err)
	again()
}

func TestStepIndex(t *testing.T) {
	assert.Equal(t, 0, StepGreeting.Index())
	assert.Equal(t, 6, StepCompleted.Index())
	assert.Less(t, StepDate.Index(), StepTime.Index())
	assert.Equal(t, -1, Step("bogus").Index())
}
