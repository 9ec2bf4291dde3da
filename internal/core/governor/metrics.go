package governor

import (
	"time"

	"github.com/netlens/netlens/internal/core"
)

// metrics accumulates per-service acquisition counters. Access is guarded by
// the owning serviceState lock, so reads are constant-time copies and writers
// never observe a half-updated view.
type metrics struct {
	total            int64
	grantedImmediate int64
	grantedAfterWait int64
	denied           int64
	sumWait          time.Duration
	maxWait          time.Duration
	lastRequestAt    time.Time
	lastDeniedAt     time.Time
}

func (m *metrics) grant(waited time.Duration, now time.Time) {
	m.total++
	m.lastRequestAt = now
	if waited <= 0 {
		m.grantedImmediate++
		return
	}
	m.grantedAfterWait++
	m.sumWait += waited
	if waited > m.maxWait {
		m.maxWait = waited
	}
}

func (m *metrics) deny(now time.Time) {
	m.total++
	m.denied++
	m.lastDeniedAt = now
}

func (m *metrics) snapshot() core.MetricsSnapshot {
	snap := core.MetricsSnapshot{
		Total:            m.total,
		GrantedImmediate: m.grantedImmediate,
		GrantedAfterWait: m.grantedAfterWait,
		Denied:           m.denied,
		SumWait:          m.sumWait,
		MaxWait:          m.maxWait,
	}
	if !m.lastRequestAt.IsZero() {
		at := m.lastRequestAt
		snap.LastRequestAt = &at
	}
	if !m.lastDeniedAt.IsZero() {
		at := m.lastDeniedAt
		snap.LastDeniedAt = &at
	}
	return snap
}

func (m *metrics) restore(snap core.MetricsSnapshot) {
	m.total = snap.Total
	m.grantedImmediate = snap.GrantedImmediate
	m.grantedAfterWait = snap.GrantedAfterWait
	m.denied = snap.Denied
	m.sumWait = snap.SumWait
	m.maxWait = snap.MaxWait
	if snap.LastRequestAt != nil {
		m.lastRequestAt = *snap.LastRequestAt
	}
	if snap.LastDeniedAt != nil {
		m.lastDeniedAt = *snap.LastDeniedAt
	}
}

func (m *metrics) reset() {
	*m = metrics{}
}
