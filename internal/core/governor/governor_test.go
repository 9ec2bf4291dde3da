package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/core"
)

// testClock advances on sleep instead of blocking, so limiter waits are
// observable without real delays.
type testClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.slept = append(c.slept, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	return nil
}

func newTestGovernor(clock *testClock, policies map[string]core.ServicePolicy, breaker BreakerSettings) *Governor {
	return New(Options{
		Policies:  policies,
		JitterMax: -1,
		Breaker:   breaker,
		Clock:     clock.Now,
		Sleep:     clock.Sleep,
	})
}

func TestSetPolicyValidation(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, nil, BreakerSettings{})

	err := g.SetPolicy(core.ServicePolicy{
		Service:           "alpha",
		RequestsPerMinute: 10,
		RequestsPerHour:   100,
		BurstLimit:        2,
	})
	require.NoError(t, err)
	require.Equal(t, core.DefaultBurstWindow, g.Policy("alpha").BurstWindow)

	// Hour below minute is rejected and the previous policy retained.
	err = g.SetPolicy(core.ServicePolicy{
		Service:           "alpha",
		RequestsPerMinute: 100,
		RequestsPerHour:   10,
		BurstLimit:        2,
	})
	var invalid *core.ConfigInvalidError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 10, g.Policy("alpha").RequestsPerMinute)

	err = g.SetPolicy(core.ServicePolicy{
		Service:           "alpha",
		RequestsPerMinute: 10,
		RequestsPerHour:   100,
		BurstLimit:        2,
		BurstWindow:       2 * time.Minute,
	})
	require.ErrorAs(t, err, &invalid)
}

func TestPolicyResolution(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, map[string]core.ServicePolicy{
		"custom": {RequestsPerMinute: 7, RequestsPerHour: 70, BurstLimit: 2},
	}, BreakerSettings{})

	// Configured policy wins and is normalized.
	custom := g.Policy("custom")
	require.Equal(t, "custom", custom.Service)
	require.Equal(t, 7, custom.RequestsPerMinute)
	require.Equal(t, core.DefaultBurstWindow, custom.BurstWindow)

	// Built-in defaults apply to known services.
	require.Equal(t, core.DefaultPolicies["crt_sh"], g.Policy("crt_sh"))

	// Unknown services fall back to the conservative default.
	require.Equal(t, core.FallbackPolicy("mystery"), g.Policy("mystery"))
}

func TestServicesSorted(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, nil, BreakerSettings{})

	g.Usage("zeta")
	g.Usage("alpha")
	g.Usage("mid")

	require.Equal(t, []string{"alpha", "mid", "zeta"}, g.Services())
}

func TestResetMetrics(t *testing.T) {
	clock := newTestClock()
	g := newTestGovernor(clock, nil, BreakerSettings{})

	permit, err := g.Acquire(context.Background(), "alpha", "op", time.Minute)
	require.NoError(t, err)
	permit.Release(core.OutcomeSuccess)

	permit, err = g.Acquire(context.Background(), "beta", "op", time.Minute)
	require.NoError(t, err)
	permit.Release(core.OutcomeSuccess)

	require.EqualValues(t, 1, g.Metrics("alpha").Total)

	g.ResetMetrics("alpha")
	require.EqualValues(t, 0, g.Metrics("alpha").Total)
	require.EqualValues(t, 1, g.Metrics("beta").Total)

	g.ResetMetrics("")
	require.EqualValues(t, 0, g.Metrics("beta").Total)
}
