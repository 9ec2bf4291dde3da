package governor

import (
	"math"
	"time"

	"github.com/netlens/netlens/internal/core"
)

const (
	minuteHorizon = time.Minute
	hourHorizon   = time.Hour

	// retentionHorizon bounds how long admission timestamps are kept.
	// Nothing outside the hour window can influence any decision.
	retentionHorizon = hourHorizon
)

// window holds the admission timestamps for one service, oldest first.
type window struct {
	stamps []time.Time
}

// prune drops timestamps outside the retention horizon.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-retentionHorizon)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// record appends an admission timestamp.
func (w *window) record(now time.Time) {
	w.stamps = append(w.stamps, now)
}

// countSince returns how many admissions happened strictly after cutoff.
func (w *window) countSince(cutoff time.Time) int {
	// stamps are ordered, so scan back from the newest.
	n := 0
	for i := len(w.stamps) - 1; i >= 0; i-- {
		if !w.stamps[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

// oldestSince returns the oldest admission strictly after cutoff.
func (w *window) oldestSince(cutoff time.Time) (time.Time, bool) {
	for _, stamp := range w.stamps {
		if stamp.After(cutoff) {
			return stamp, true
		}
	}
	return time.Time{}, false
}

// headroom checks the three horizons against the policy. When every horizon
// has room it returns ok. Otherwise wait is the time until the most
// constrained horizon clears: the max over exhausted horizons, so a single
// sleep is always sufficient.
func (w *window) headroom(policy core.ServicePolicy, margin float64, now time.Time) (ok bool, wait time.Duration) {
	type horizon struct {
		length time.Duration
		limit  int
	}
	horizons := []horizon{
		{policy.BurstWindow, policy.BurstLimit},
		{minuteHorizon, effectiveLimit(policy.RequestsPerMinute, margin)},
		{hourHorizon, effectiveLimit(policy.RequestsPerHour, margin)},
	}

	for _, h := range horizons {
		if h.limit <= 0 {
			continue
		}
		cutoff := now.Add(-h.length)
		if w.countSince(cutoff) < h.limit {
			continue
		}
		oldest, found := w.oldestSince(cutoff)
		if !found {
			continue
		}
		if until := oldest.Add(h.length).Sub(now); until > wait {
			wait = until
		}
	}

	return wait <= 0, wait
}

// usage reports current occupancy without mutating state.
func (w *window) usage(policy core.ServicePolicy, margin float64, now time.Time) core.Usage {
	return core.Usage{
		Service:     policy.Service,
		MinuteUsed:  w.countSince(now.Add(-minuteHorizon)),
		MinuteLimit: effectiveLimit(policy.RequestsPerMinute, margin),
		HourUsed:    w.countSince(now.Add(-hourHorizon)),
		HourLimit:   effectiveLimit(policy.RequestsPerHour, margin),
		BurstUsed:   w.countSince(now.Add(-policy.BurstWindow)),
		BurstLimit:  policy.BurstLimit,
		BurstWindow: policy.BurstWindow,
		AsOf:        now,
	}
}

// effectiveLimit scales a limit by the configured safety margin, never
// dropping below one admissible request.
func effectiveLimit(limit int, margin float64) int {
	if margin <= 0 || margin >= 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit) * margin))
	if adjusted < 1 {
		adjusted = 1
	}
	return adjusted
}
