package governor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/core"
)

// BackoffPolicy controls the retry loop around a unit of work.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// Backoff presets. They differ only in growth rate and attempt budget:
// conservative for non-critical lookups, aggressive for critical ones, api as
// the balanced default.
var presets = map[string]BackoffPolicy{
	"conservative": {BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 1.5, MaxAttempts: 3},
	"api":          {BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2.0, MaxAttempts: 4},
	"aggressive":   {BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Minute, Multiplier: 3.0, MaxAttempts: 6},
}

// Preset returns a named backoff policy. An empty name selects "api".
func Preset(name string) (BackoffPolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		normalized = "api"
	}
	policy, ok := presets[normalized]
	if !ok {
		return BackoffPolicy{}, fmt.Errorf("unknown backoff preset: %s", name)
	}
	return policy, nil
}

// Delay computes the raw (unjittered) delay for a zero-indexed attempt:
// min(MaxDelay, BaseDelay * Multiplier^attempt).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	delay := float64(base) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do wraps op in the full governance path: acquire a permit, run the call,
// release with the classified outcome, and retry with backoff while the
// failure is retryable. Permanent failures and open circuits propagate
// immediately. When every attempt fails the caller receives
// BackoffExhaustedError with the last error and the total time spent waiting.
func (g *Governor) Do(ctx context.Context, service, label string, policy BackoffPolicy, op func(context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		lastErr   error
		totalWait time.Duration
	)

	for attempt := 0; attempt < attempts; attempt++ {
		permit, err := g.Acquire(ctx, service, label, policy.MaxDelay)
		if err != nil {
			var limited *core.RateLimitedError
			if !errors.As(err, &limited) {
				// Circuit open or cancellation: fail now.
				return err
			}
			lastErr = err
			if attempt+1 >= attempts {
				break
			}
			wait, werr := g.backoffWait(ctx, policy, attempt, limited.Wait)
			if werr != nil {
				return werr
			}
			totalWait += wait
			continue
		}

		err = op(ctx)
		outcome := core.OutcomeOf(err)
		permit.Release(outcome)

		if err == nil {
			if attempt > 0 && g.logger != nil {
				g.logger.Info("Operation succeeded after retries",
					zap.String("service", service),
					zap.String("operation", label),
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if !outcome.Retryable() {
			return err
		}
		lastErr = err
		if attempt+1 >= attempts {
			break
		}

		wait, werr := g.backoffWait(ctx, policy, attempt, core.SuggestedWait(err))
		if werr != nil {
			return werr
		}
		totalWait += wait
	}

	return &core.BackoffExhaustedError{
		Service:   service,
		Attempts:  attempts,
		TotalWait: totalWait,
		Last:      lastErr,
	}
}

// DoPreset is Do with a named preset, the form the discovery modules use.
func (g *Governor) DoPreset(ctx context.Context, service, label, preset string, op func(context.Context) error) error {
	policy, err := Preset(preset)
	if err != nil {
		return err
	}
	return g.Do(ctx, service, label, policy, op)
}

// backoffWait sleeps for the attempt's delay and reports how long it slept.
// The computed delay is replaced by full jitter, a uniform value in
// [0, delay]; a larger server-suggested wait overrides it.
func (g *Governor) backoffWait(ctx context.Context, policy BackoffPolicy, attempt int, suggested time.Duration) (time.Duration, error) {
	delay := policy.Delay(attempt)
	delay = time.Duration(g.randFloat() * float64(delay))
	if suggested > delay {
		delay = suggested
	}
	if g.logger != nil {
		g.logger.Debug("Backing off before retry",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
	}
	if err := g.sleep(ctx, delay); err != nil {
		return 0, err
	}
	return delay, nil
}
