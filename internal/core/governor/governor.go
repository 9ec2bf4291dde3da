// Package governor mediates every outbound call the discovery modules make
// to public data sources. It combines a sliding-window admission limiter, an
// exponential-backoff retry loop, and per-service circuit breakers behind a
// single registry that is constructed once per process and shared by all
// workers. The governor decides whether and when a call may proceed; it never
// performs network I/O itself and never parses upstream payloads.
package governor

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/core"
)

// Options configures a Governor.
type Options struct {
	// Policies overrides or extends the built-in per-service defaults.
	Policies map[string]core.ServicePolicy
	// Margin scales effective minute/hour limits by a ratio in (0,1);
	// zero disables the safety margin.
	Margin float64
	// JitterMax bounds the random perturbation added to limiter waits.
	// Negative disables jitter; zero selects DefaultJitterMax.
	JitterMax time.Duration
	// Breaker applies to every service's circuit breaker.
	Breaker BreakerSettings
	// Clock and Sleep are injectable for tests.
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *logging.Logger
}

// Governor is the shared traffic-governance registry. One instance per
// process; safe for concurrent use by any number of workers.
type Governor struct {
	mu       sync.RWMutex
	services map[string]*serviceState
	policies map[string]core.ServicePolicy

	margin    float64
	jitterMax time.Duration
	breaker   BreakerSettings
	clock     func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
	logger    *logging.Logger
}

// serviceState holds everything owned by one upstream service. Its mutex is
// never held across an external call or a limiter sleep, and no cross-service
// lock exists, so a saturated upstream cannot stall calls to a healthy one.
type serviceState struct {
	mu      sync.Mutex
	policy  core.ServicePolicy
	window  window
	breaker breaker
	metrics metrics
}

// New constructs a Governor from options.
func New(opts Options) *Governor {
	g := &Governor{
		services:  make(map[string]*serviceState),
		policies:  make(map[string]core.ServicePolicy),
		margin:    opts.Margin,
		jitterMax: opts.JitterMax,
		breaker:   opts.Breaker.withDefaults(),
		clock:     opts.Clock,
		sleep:     opts.Sleep,
		randFloat: rand.Float64,
		logger:    opts.Logger,
	}
	if g.jitterMax == 0 {
		g.jitterMax = DefaultJitterMax
	}
	if g.clock == nil {
		g.clock = func() time.Time { return time.Now().UTC() }
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	for service, policy := range opts.Policies {
		service = strings.TrimSpace(service)
		if service == "" {
			continue
		}
		policy.Service = service
		if policy.BurstWindow <= 0 {
			policy.BurstWindow = core.DefaultBurstWindow
		}
		g.policies[service] = policy
	}
	return g
}

// SetPolicy atomically swaps the policy for a service. Existing admission
// timestamps are kept and re-evaluated against the new policy on the next
// acquisition. An invalid policy is rejected and the previous one retained.
func (g *Governor) SetPolicy(policy core.ServicePolicy) error {
	if policy.BurstWindow <= 0 {
		policy.BurstWindow = core.DefaultBurstWindow
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	st := g.state(policy.Service)
	st.mu.Lock()
	st.policy = policy
	st.mu.Unlock()

	g.mu.Lock()
	g.policies[policy.Service] = policy
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Info("Rate limit policy updated",
			zap.String("service", policy.Service),
			zap.Int("per_minute", policy.RequestsPerMinute),
			zap.Int("per_hour", policy.RequestsPerHour),
			zap.Int("burst", policy.BurstLimit))
	}
	return nil
}

// Policy returns the policy currently applied to a service.
func (g *Governor) Policy(service string) core.ServicePolicy {
	st := g.state(service)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.policy
}

// Usage returns a read-only copy of a service's current window occupancy and
// breaker status. It does not mutate limiter state.
func (g *Governor) Usage(service string) core.Usage {
	st := g.state(service)
	now := g.now()
	st.mu.Lock()
	defer st.mu.Unlock()
	usage := st.window.usage(st.policy, g.margin, now)
	usage.BreakerStatus = st.breaker.state.String()
	return usage
}

// AllUsage returns usage for every known service, ordered by name.
func (g *Governor) AllUsage() []core.Usage {
	usages := make([]core.Usage, 0)
	for _, service := range g.Services() {
		usages = append(usages, g.Usage(service))
	}
	return usages
}

// Metrics returns a consistent copy of a service's counters.
func (g *Governor) Metrics(service string) core.MetricsSnapshot {
	st := g.state(service)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.metrics.snapshot()
}

// AllMetrics returns counters for every known service.
func (g *Governor) AllMetrics() map[string]core.MetricsSnapshot {
	all := make(map[string]core.MetricsSnapshot)
	for _, service := range g.Services() {
		all[service] = g.Metrics(service)
	}
	return all
}

// ResetMetrics clears counters for one service, or all when service is empty.
func (g *Governor) ResetMetrics(service string) {
	targets := []string{service}
	if strings.TrimSpace(service) == "" {
		targets = g.Services()
	}
	for _, name := range targets {
		st := g.state(name)
		st.mu.Lock()
		st.metrics.reset()
		st.mu.Unlock()
	}
}

// Services lists every service with live state, ordered by name.
func (g *Governor) Services() []string {
	g.mu.RLock()
	names := make([]string, 0, len(g.services))
	for name := range g.services {
		names = append(names, name)
	}
	g.mu.RUnlock()
	sort.Strings(names)
	return names
}

// state returns the per-service state, creating it on first access with the
// configured or built-in policy for that service.
func (g *Governor) state(service string) *serviceState {
	service = strings.TrimSpace(service)

	g.mu.RLock()
	st, ok := g.services[service]
	g.mu.RUnlock()
	if ok {
		return st
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok = g.services[service]; ok {
		return st
	}

	policy, ok := g.policies[service]
	if !ok {
		if policy, ok = core.DefaultPolicies[service]; !ok {
			policy = core.FallbackPolicy(service)
		}
	}
	st = &serviceState{
		policy:  policy,
		breaker: breaker{settings: g.breaker},
	}
	g.services[service] = st
	return st
}

func (g *Governor) now() time.Time {
	return g.clock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
