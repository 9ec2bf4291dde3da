package core

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError reports that a quota is exhausted. Wait carries the
// suggested time until the limiting window clears.
type RateLimitedError struct {
	Service string
	Wait    time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exhausted for %s: retry in %s", e.Service, e.Wait)
}

// CircuitOpenError reports that a service's circuit breaker is open and the
// call was rejected without attempting any I/O.
type CircuitOpenError struct {
	Service string
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s: retry in %s", e.Service, e.RetryIn)
}

// BackoffExhaustedError reports that every retry attempt failed. It carries
// the last underlying error and the total time spent waiting between attempts.
type BackoffExhaustedError struct {
	Service   string
	Attempts  int
	TotalWait time.Duration
	Last      error
}

func (e *BackoffExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed for %s after waiting %s: %v", e.Attempts, e.Service, e.TotalWait, e.Last)
}

func (e *BackoffExhaustedError) Unwrap() error {
	return e.Last
}

// ConfigInvalidError reports a rejected policy update. The previous policy is
// retained when this error is returned.
type ConfigInvalidError struct {
	Service string
	Reason  string
}

func (e *ConfigInvalidError) Error() string {
	if e.Service == "" {
		return "invalid policy: " + e.Reason
	}
	return fmt.Sprintf("invalid policy for %s: %s", e.Service, e.Reason)
}

// ErrSnapshotCorrupt marks an unreadable persisted snapshot. Loading degrades
// to fresh in-memory state; it never aborts startup.
var ErrSnapshotCorrupt = errors.New("persisted snapshot is corrupt")

// ClassifiedError attaches an outcome classification to a failed external
// call so the retry loop knows whether and how soon to try again.
type ClassifiedError struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s): %v", e.Outcome, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Outcome, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// RateLimited classifies err as a quota rejection from the upstream,
// optionally carrying a server-suggested wait (e.g. a Retry-After header).
func RateLimited(err error, retryAfter time.Duration) error {
	return &ClassifiedError{Outcome: OutcomeRateLimited, RetryAfter: retryAfter, Err: err}
}

// Transient classifies err as a retryable network-level failure.
func Transient(err error) error {
	return &ClassifiedError{Outcome: OutcomeTransient, Err: err}
}

// Permanent classifies err as not retryable; it propagates immediately.
func Permanent(err error) error {
	return &ClassifiedError{Outcome: OutcomePermanent, Err: err}
}

// OutcomeOf extracts the classification from err. Unclassified errors are
// treated as permanent: retrying is opt-in by contract.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Outcome
	}
	return OutcomePermanent
}

// SuggestedWait extracts a server-suggested retry delay from err, if any.
func SuggestedWait(err error) time.Duration {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.RetryAfter
	}
	return 0
}
