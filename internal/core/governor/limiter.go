package governor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/core"
)

// DefaultJitterMax bounds the random delay added to limiter waits so that
// concurrent callers blocked on the same horizon do not wake simultaneously.
const DefaultJitterMax = 250 * time.Millisecond

// Permit is a scoped handle for one admitted call. The caller performs the
// external call while holding it and must release it exactly once with the
// classified outcome.
type Permit struct {
	g          *Governor
	service    string
	label      string
	acquiredAt time.Time
	waited     time.Duration
	released   bool
}

// Service returns the upstream service the permit was issued for.
func (p *Permit) Service() string { return p.service }

// Waited returns how long the caller blocked before admission.
func (p *Permit) Waited() time.Duration { return p.waited }

// Release reports the call's outcome. Success closes a half-open breaker and
// resets the failure count; any failure outcome feeds the breaker. Release is
// idempotent.
func (p *Permit) Release(outcome core.Outcome) {
	if p == nil || p.g == nil {
		return
	}
	st := p.g.state(p.service)
	now := p.g.now()

	st.mu.Lock()
	defer st.mu.Unlock()
	if p.released {
		return
	}
	p.released = true

	if outcome == core.OutcomeSuccess {
		st.breaker.success(now)
		return
	}
	st.breaker.failure(now)
	if st.breaker.state == BreakerOpen && p.g.logger != nil {
		p.g.logger.Warn("Circuit breaker opened",
			zap.String("service", p.service),
			zap.Int("consecutive_failures", st.breaker.failures))
	}
}

// Acquire requests admission for one call against a service. It returns an
// immediately granted permit when every horizon has headroom, blocks up to
// maxWait when a horizon must clear first, and fails with RateLimitedError
// when the required wait exceeds maxWait. An open circuit breaker rejects the
// call with CircuitOpenError before any window math runs.
//
// The per-service lock is held only for the check-and-record step, never
// while sleeping. A caller blocked here observes ctx cancellation and
// returns promptly.
func (g *Governor) Acquire(ctx context.Context, service, label string, maxWait time.Duration) (*Permit, error) {
	st := g.state(service)
	start := g.now()
	var waited time.Duration

	for {
		now := g.now()
		st.mu.Lock()

		if ok, retryIn := st.breaker.allow(now); !ok {
			st.metrics.deny(now)
			st.mu.Unlock()
			return nil, &core.CircuitOpenError{Service: service, RetryIn: retryIn}
		}

		st.window.prune(now)
		ok, wait := st.window.headroom(st.policy, g.margin, now)
		if ok {
			st.window.record(now)
			st.metrics.grant(waited, now)
			st.mu.Unlock()
			return &Permit{
				g:          g,
				service:    service,
				label:      label,
				acquiredAt: now,
				waited:     waited,
			}, nil
		}

		wait += g.jitter()
		if waited+wait > maxWait {
			st.metrics.deny(now)
			st.breaker.cancelTrial()
			st.mu.Unlock()
			return nil, &core.RateLimitedError{Service: service, Wait: wait}
		}
		st.breaker.cancelTrial()
		st.mu.Unlock()

		if g.logger != nil {
			g.logger.Debug("Rate limit reached, waiting",
				zap.String("service", service),
				zap.String("operation", label),
				zap.Duration("wait", wait),
				zap.Duration("waited", waited))
		}

		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
		waited = g.now().Sub(start)
	}
}

func (g *Governor) jitter() time.Duration {
	if g.jitterMax <= 0 {
		return 0
	}
	return time.Duration(g.randFloat() * float64(g.jitterMax))
}
