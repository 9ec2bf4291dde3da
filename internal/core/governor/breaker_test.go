package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/core"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := breaker{settings: BreakerSettings{Threshold: 3, Interval: time.Minute, Cooldown: 30 * time.Second}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.failure(now)
	b.failure(now.Add(time.Second))
	require.Equal(t, BreakerClosed, b.state)

	b.failure(now.Add(2 * time.Second))
	require.Equal(t, BreakerOpen, b.state)

	ok, retryIn := b.allow(now.Add(3 * time.Second))
	require.False(t, ok)
	require.Equal(t, 29*time.Second, retryIn)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := breaker{settings: BreakerSettings{Threshold: 3, Interval: time.Minute, Cooldown: 30 * time.Second}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.failure(now)
	b.failure(now.Add(time.Second))
	b.success(now.Add(2 * time.Second))
	b.failure(now.Add(3 * time.Second))
	b.failure(now.Add(4 * time.Second))

	require.Equal(t, BreakerClosed, b.state)
}

func TestBreakerIntervalGapRestartsCount(t *testing.T) {
	b := breaker{settings: BreakerSettings{Threshold: 2, Interval: time.Minute, Cooldown: 30 * time.Second}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.failure(now)
	// A quiet gap longer than the interval restarts the count.
	b.failure(now.Add(2 * time.Minute))
	require.Equal(t, BreakerClosed, b.state)

	b.failure(now.Add(2*time.Minute + time.Second))
	require.Equal(t, BreakerOpen, b.state)
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b := breaker{settings: BreakerSettings{Threshold: 1, Interval: time.Minute, Cooldown: 30 * time.Second}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.failure(now)
	require.Equal(t, BreakerOpen, b.state)

	// Cooldown elapsed: exactly one trial is admitted.
	afterCooldown := now.Add(31 * time.Second)
	ok, _ := b.allow(afterCooldown)
	require.True(t, ok)
	require.Equal(t, BreakerHalfOpen, b.state)

	ok, _ = b.allow(afterCooldown)
	require.False(t, ok)

	// Trial success closes the breaker.
	b.success(afterCooldown.Add(time.Second))
	require.Equal(t, BreakerClosed, b.state)
	ok, _ = b.allow(afterCooldown.Add(2 * time.Second))
	require.True(t, ok)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := breaker{settings: BreakerSettings{Threshold: 1, Interval: time.Minute, Cooldown: 30 * time.Second}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.failure(now)
	afterCooldown := now.Add(31 * time.Second)
	ok, _ := b.allow(afterCooldown)
	require.True(t, ok)

	b.failure(afterCooldown.Add(time.Second))
	require.Equal(t, BreakerOpen, b.state)

	// The cooldown timer restarted at the trial failure.
	ok, retryIn := b.allow(afterCooldown.Add(2 * time.Second))
	require.False(t, ok)
	require.Equal(t, 29*time.Second, retryIn)
}

func TestBreakerCancelTrialReleasesSlot(t *testing.T) {
	b := breaker{settings: BreakerSettings{Threshold: 1, Interval: time.Minute, Cooldown: 30 * time.Second}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.failure(now)
	afterCooldown := now.Add(31 * time.Second)
	ok, _ := b.allow(afterCooldown)
	require.True(t, ok)

	// The claimed trial never ran; the slot must reopen.
	b.cancelTrial()
	ok, _ = b.allow(afterCooldown)
	require.True(t, ok)
}

func TestGovernorFailFastConsumesNoSlot(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, tightPolicy(), BreakerSettings{Threshold: 2, Interval: time.Minute, Cooldown: 30 * time.Second})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		permit, err := g.Acquire(ctx, "alpha", "lookup", time.Minute)
		require.NoError(t, err)
		permit.Release(core.OutcomePermanent)
		clock.Advance(15 * time.Second)
	}

	require.Equal(t, "open", g.Usage("alpha").BreakerStatus)
	usedBefore := g.Usage("alpha").HourUsed

	_, err := g.Acquire(ctx, "alpha", "lookup", time.Minute)
	var open *core.CircuitOpenError
	require.ErrorAs(t, err, &open)
	require.Equal(t, "alpha", open.Service)
	require.Greater(t, open.RetryIn, time.Duration(0))

	// Fail-fast rejections never consume limiter slots, but they do count
	// as denials.
	require.Equal(t, usedBefore, g.Usage("alpha").HourUsed)
	require.EqualValues(t, 1, g.Metrics("alpha").Denied)
}

func TestGovernorRecoversThroughHalfOpen(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, map[string]core.ServicePolicy{
		"alpha": {RequestsPerMinute: 100, RequestsPerHour: 1000, BurstLimit: 50, BurstWindow: time.Second},
	}, BreakerSettings{Threshold: 1, Interval: time.Minute, Cooldown: 30 * time.Second})
	ctx := context.Background()

	permit, err := g.Acquire(ctx, "alpha", "lookup", time.Minute)
	require.NoError(t, err)
	permit.Release(core.OutcomeTransient)
	require.Equal(t, "open", g.Usage("alpha").BreakerStatus)

	clock.Advance(31 * time.Second)

	permit, err = g.Acquire(ctx, "alpha", "lookup", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "half-open", g.Usage("alpha").BreakerStatus)

	permit.Release(core.OutcomeSuccess)
	require.Equal(t, "closed", g.Usage("alpha").BreakerStatus)
}
