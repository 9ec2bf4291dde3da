package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/core"
)

type memorySnapshotStore struct {
	mu    sync.Mutex
	saves int
	last  *Snapshot
}

func (m *memorySnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = &snap
	return nil
}

func (m *memorySnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *memorySnapshotStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, tightPolicy(), BreakerSettings{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		permit, err := g.Acquire(ctx, "alpha", "lookup", time.Minute)
		require.NoError(t, err)
		permit.Release(core.OutcomeSuccess)
	}

	snap := g.Snapshot()
	require.Len(t, snap.Services["alpha"].Timestamps, 2)

	// Restoring into a fresh governor with the same clock reproduces the
	// exact usage and counters.
	restored := newTestGovernor(clock, tightPolicy(), BreakerSettings{})
	restored.Restore(&snap)

	require.Equal(t, g.Usage("alpha"), restored.Usage("alpha"))
	require.Equal(t, g.Metrics("alpha"), restored.Metrics("alpha"))
}

func TestRestoreDropsExpiredTimestamps(t *testing.T) {
	clock := newTestClock()
	now := clock.Now()

	lastAt := now.Add(-30 * time.Minute)
	snap := &Snapshot{
		SavedAt: now.Add(-time.Minute),
		Services: map[string]ServiceSnapshot{
			"alpha": {
				Timestamps: []time.Time{
					now.Add(-2 * time.Hour),
					now.Add(-61 * time.Minute),
					now.Add(-30 * time.Minute),
					now.Add(-time.Second),
				},
				Metrics: core.MetricsSnapshot{Total: 40, GrantedImmediate: 38, Denied: 2, LastRequestAt: &lastAt},
			},
		},
	}

	g := newTestGovernor(clock, tightPolicy(), BreakerSettings{})
	g.Restore(snap)

	usage := g.Usage("alpha")
	require.Equal(t, 2, usage.HourUsed)
	require.Equal(t, 1, usage.MinuteUsed)

	// Cumulative counters survive even when timestamps expire.
	m := g.Metrics("alpha")
	require.EqualValues(t, 40, m.Total)
	require.EqualValues(t, 2, m.Denied)
	require.NotNil(t, m.LastRequestAt)
}

func TestRestoreNilIsNoop(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, tightPolicy(), BreakerSettings{})

	g.Restore(nil)
	require.Empty(t, g.Services())
}

func TestCheckpointWritesState(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, tightPolicy(), BreakerSettings{})
	store := &memorySnapshotStore{}
	ctx := context.Background()

	permit, err := g.Acquire(ctx, "alpha", "lookup", time.Minute)
	require.NoError(t, err)
	permit.Release(core.OutcomeSuccess)

	require.NoError(t, g.Checkpoint(ctx, store))
	require.Equal(t, 1, store.saveCount())
	require.Len(t, store.last.Services["alpha"].Timestamps, 1)
}

func TestCheckpointerFinalFlush(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, tightPolicy(), BreakerSettings{})
	store := &memorySnapshotStore{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.RunCheckpointer(ctx, store, time.Hour)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("checkpointer did not stop")
	}

	// Cancellation always produces one final checkpoint.
	require.Equal(t, 1, store.saveCount())
}
