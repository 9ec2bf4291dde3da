package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/core"
)

func TestWindowPrune(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := window{stamps: []time.Time{
		now.Add(-2 * time.Hour),
		now.Add(-90 * time.Minute),
		now.Add(-30 * time.Minute),
		now.Add(-time.Second),
	}}

	w.prune(now)
	require.Len(t, w.stamps, 2)
	require.Equal(t, now.Add(-30*time.Minute), w.stamps[0])
}

func TestWindowCounts(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := window{}
	w.record(now.Add(-45 * time.Minute))
	w.record(now.Add(-30 * time.Second))
	w.record(now.Add(-5 * time.Second))

	require.Equal(t, 2, w.countSince(now.Add(-time.Minute)))
	require.Equal(t, 3, w.countSince(now.Add(-time.Hour)))
	require.Equal(t, 1, w.countSince(now.Add(-10*time.Second)))

	oldest, ok := w.oldestSince(now.Add(-time.Minute))
	require.True(t, ok)
	require.Equal(t, now.Add(-30*time.Second), oldest)

	_, ok = w.oldestSince(now)
	require.False(t, ok)
}

func TestHeadroomWaitIsMaxOverHorizons(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	policy := core.ServicePolicy{
		Service:           "alpha",
		RequestsPerMinute: 2,
		RequestsPerHour:   100,
		BurstLimit:        1,
		BurstWindow:       10 * time.Second,
	}

	w := window{}
	w.record(now.Add(-50 * time.Second))
	w.record(now.Add(-5 * time.Second))

	// Burst needs 5s to clear, the minute window needs 10s; a single
	// sleep of the max covers both.
	ok, wait := w.headroom(policy, 0, now)
	require.False(t, ok)
	require.Equal(t, 10*time.Second, wait)

	ok, wait = w.headroom(policy, 0, now.Add(wait))
	require.True(t, ok)
	require.Equal(t, time.Duration(0), wait)
}

func TestHeadroomWithRoom(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	policy := core.ServicePolicy{
		Service:           "alpha",
		RequestsPerMinute: 10,
		RequestsPerHour:   100,
		BurstLimit:        3,
		BurstWindow:       10 * time.Second,
	}

	w := window{}
	w.record(now.Add(-time.Second))

	ok, wait := w.headroom(policy, 0, now)
	require.True(t, ok)
	require.Equal(t, time.Duration(0), wait)
}

func TestEffectiveLimit(t *testing.T) {
	require.Equal(t, 10, effectiveLimit(10, 0))
	require.Equal(t, 10, effectiveLimit(10, 1))
	require.Equal(t, 9, effectiveLimit(10, 0.9))
	require.Equal(t, 5, effectiveLimit(10, 0.5))
	// The margin never scales a limit to zero.
	require.Equal(t, 1, effectiveLimit(1, 0.5))
}
