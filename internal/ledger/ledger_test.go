package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_AcquireOnce(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	acquired, err := l.Acquire(ctx, "evt_1", "subscription.updated")
	require.NoError(t, err)
	assert.True(t, acquired, "first acquire should win the lock")

	again, err := l.Acquire(ctx, "evt_1", "subscription.updated")
	require.NoError(t, err)
	assert.False(t, again, "second acquire of the same event must be a no-op")

	seen, err := l.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = l.Seen(ctx, "evt_never")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLedger_AcquireDistinctEvents(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []string{"evt_a", "evt_b", "evt_c"} {
		acquired, err := l.Acquire(ctx, id, "subscription.updated")
		require.NoError(t, err)
		assert.True(t, acquired, "distinct event %s should acquire", id)
	}
}

// TestLedger_ConcurrentAcquire delivers the same event ID from many
// goroutines; the uniqueness constraint must grant the lock exactly once.
func TestLedger_ConcurrentAcquire(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	const workers = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := l.Acquire(ctx, "evt_race", "subscription.updated")
			if err != nil {
				t.Errorf("Acquire() error: %v", err)
				return
			}
			if acquired {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one delivery may hold the lock")
}

func TestLedger_TierUpsert(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	tier, err := l.Tier(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "", tier, "unknown user has no tier")

	require.NoError(t, l.SetTier(ctx, "user_1", "pro"))
	tier, err = l.Tier(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", tier)

	require.NoError(t, l.SetTier(ctx, "user_1", "free"))
	tier, err = l.Tier(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "free", tier, "upsert should replace the tier")
}
