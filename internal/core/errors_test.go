package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, OutcomeSuccess, OutcomeOf(nil))
	require.Equal(t, OutcomeRateLimited, OutcomeOf(RateLimited(errors.New("429"), time.Second)))
	require.Equal(t, OutcomeTransient, OutcomeOf(Transient(errors.New("reset"))))
	require.Equal(t, OutcomePermanent, OutcomeOf(Permanent(errors.New("403"))))

	// Unclassified errors never retry.
	require.Equal(t, OutcomePermanent, OutcomeOf(errors.New("mystery")))
}

func TestOutcomeOfWrapped(t *testing.T) {
	inner := RateLimited(errors.New("429"), 30*time.Second)
	wrapped := fmt.Errorf("query upstream: %w", inner)

	require.Equal(t, OutcomeRateLimited, OutcomeOf(wrapped))
	require.Equal(t, 30*time.Second, SuggestedWait(wrapped))
	require.Equal(t, time.Duration(0), SuggestedWait(errors.New("plain")))
}

func TestBackoffExhaustedUnwraps(t *testing.T) {
	inner := errors.New("timeout")
	err := &BackoffExhaustedError{Service: "alpha", Attempts: 3, TotalWait: time.Second, Last: Transient(inner)}

	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "alpha")
	require.Contains(t, err.Error(), "3 attempts")
}

func TestErrorMessages(t *testing.T) {
	limited := &RateLimitedError{Service: "alpha", Wait: 5 * time.Second}
	require.Contains(t, limited.Error(), "alpha")
	require.Contains(t, limited.Error(), "5s")

	open := &CircuitOpenError{Service: "beta", RetryIn: 30 * time.Second}
	require.Contains(t, open.Error(), "circuit open")

	invalid := &ConfigInvalidError{Reason: "burst_limit must be positive"}
	require.Contains(t, invalid.Error(), "invalid policy")
}
