package governor

import "time"

// BreakerState represents a circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns a human-readable state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerSettings controls when a service's breaker trips and recovers.
type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int
	// Interval is the rolling span within which failures count as
	// consecutive; a quiet gap longer than this restarts the count.
	Interval time.Duration
	// Cooldown is how long an open breaker rejects calls before permitting
	// a half-open trial.
	Cooldown time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return s
}

// breaker is the per-service fail-fast state machine. Callers hold the
// owning serviceState lock; the breaker itself is not synchronized.
type breaker struct {
	settings      BreakerSettings
	state         BreakerState
	failures      int
	lastFailureAt time.Time
	openedAt      time.Time
	trialInFlight bool
}

// allow reports whether a call may proceed. When the cooldown has elapsed the
// breaker moves to half-open and admits exactly one trial call; concurrent
// callers are rejected until that trial resolves. retryIn is meaningful only
// when the call is rejected.
func (b *breaker) allow(now time.Time) (ok bool, retryIn time.Duration) {
	switch b.state {
	case BreakerClosed:
		return true, 0
	case BreakerOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed < b.settings.Cooldown {
			return false, b.settings.Cooldown - elapsed
		}
		b.state = BreakerHalfOpen
		b.trialInFlight = true
		return true, 0
	case BreakerHalfOpen:
		if b.trialInFlight {
			return false, b.settings.Cooldown
		}
		b.trialInFlight = true
		return true, 0
	default:
		return true, 0
	}
}

// cancelTrial releases a half-open trial slot that was claimed but whose
// call never started (the limiter blocked or denied it).
func (b *breaker) cancelTrial() {
	if b.state == BreakerHalfOpen {
		b.trialInFlight = false
	}
}

// success records a successful call. A half-open trial success closes the
// breaker; in the closed state the consecutive-failure count resets.
func (b *breaker) success(now time.Time) {
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.trialInFlight = false
	}
	b.failures = 0
	b.lastFailureAt = time.Time{}
}

// failure records a failed call. A half-open trial failure reopens the
// breaker and resets the cooldown timer; in the closed state the breaker
// opens once the consecutive count reaches the threshold.
func (b *breaker) failure(now time.Time) {
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		b.trialInFlight = false
		b.failures = b.settings.Threshold
		b.lastFailureAt = now
		return
	}
	if b.state == BreakerOpen {
		return
	}

	if !b.lastFailureAt.IsZero() && now.Sub(b.lastFailureAt) > b.settings.Interval {
		b.failures = 0
	}
	b.failures++
	b.lastFailureAt = now

	if b.failures >= b.settings.Threshold {
		b.state = BreakerOpen
		b.openedAt = now
	}
}
