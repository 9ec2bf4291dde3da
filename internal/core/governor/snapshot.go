package governor

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/core"
)

// Snapshot is the durable image of the governor's limiter and metrics state.
// Unknown fields in a persisted snapshot are ignored on load.
type Snapshot struct {
	SavedAt  time.Time                  `json:"saved_at"`
	Services map[string]ServiceSnapshot `json:"services"`
}

// ServiceSnapshot carries one service's retained admission timestamps and
// cumulative counters.
type ServiceSnapshot struct {
	Timestamps []time.Time          `json:"timestamps"`
	Metrics    core.MetricsSnapshot `json:"metrics"`
}

// SnapshotStore is the durable backend for snapshots. Save must be atomic:
// a reader sees either the previous complete snapshot or the new one.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Snapshot copies every service's state under its lock and assembles the
// result outside any lock, so an in-progress snapshot never blocks
// concurrent acquisitions.
func (g *Governor) Snapshot() Snapshot {
	snap := Snapshot{
		SavedAt:  g.now(),
		Services: make(map[string]ServiceSnapshot),
	}
	for _, service := range g.Services() {
		st := g.state(service)
		st.mu.Lock()
		stamps := make([]time.Time, len(st.window.stamps))
		copy(stamps, st.window.stamps)
		m := st.metrics.snapshot()
		st.mu.Unlock()

		snap.Services[service] = ServiceSnapshot{Timestamps: stamps, Metrics: m}
	}
	return snap
}

// Restore merges a previously persisted snapshot into the governor.
// Timestamps already outside the retention horizon are discarded; cumulative
// counters are preserved. A nil snapshot is a no-op.
func (g *Governor) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	now := g.now()
	cutoff := now.Add(-retentionHorizon)

	for service, saved := range snap.Services {
		kept := make([]time.Time, 0, len(saved.Timestamps))
		for _, stamp := range saved.Timestamps {
			if stamp.After(cutoff) && !stamp.After(now) {
				kept = append(kept, stamp)
			}
		}
		sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })

		st := g.state(service)
		st.mu.Lock()
		st.window.stamps = kept
		st.metrics.restore(saved.Metrics)
		st.mu.Unlock()
	}

	if g.logger != nil {
		g.logger.Debug("Governor state restored",
			zap.Int("services", len(snap.Services)),
			zap.Time("saved_at", snap.SavedAt))
	}
}

// Checkpoint writes the current state to the store.
func (g *Governor) Checkpoint(ctx context.Context, store SnapshotStore) error {
	if store == nil {
		return nil
	}
	return store.Save(ctx, g.Snapshot())
}

// RunCheckpointer flushes state to the store on the given interval until ctx
// is cancelled, then writes one final checkpoint. Save failures are logged
// and never interrupt an in-progress scan.
func (g *Governor) RunCheckpointer(ctx context.Context, store SnapshotStore, interval time.Duration) {
	if store == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush uses a fresh context: the parent is already done.
			if err := g.Checkpoint(context.Background(), store); err != nil && g.logger != nil {
				g.logger.Warn("Final governor checkpoint failed", zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := g.Checkpoint(ctx, store); err != nil && g.logger != nil {
				g.logger.Warn("Governor checkpoint failed", zap.Error(err))
			}
		}
	}
}
