package snapstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
)

func testSnapshot(now time.Time) governor.Snapshot {
	return governor.Snapshot{
		SavedAt: now,
		Services: map[string]governor.ServiceSnapshot{
			"bgp_he_net": {
				Timestamps: []time.Time{now.Add(-30 * time.Second), now.Add(-5 * time.Second)},
				Metrics:    core.MetricsSnapshot{Total: 10, GrantedImmediate: 9, Denied: 1},
			},
			"crt_sh": {
				Timestamps: []time.Time{now.Add(-time.Minute)},
				Metrics:    core.MetricsSnapshot{Total: 3, GrantedImmediate: 3},
			},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "netlens-state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)
	require.NoError(t, store.Save(context.Background(), snap))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.True(t, loaded.SavedAt.Equal(now))
	require.Len(t, loaded.Services, 2)
	require.EqualValues(t, 10, loaded.Services["bgp_he_net"].Metrics.Total)
	require.Len(t, loaded.Services["bgp_he_net"].Timestamps, 2)
}

func TestFileStoreMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, core.ErrSnapshotCorrupt)
}

func TestFileStoreUnreadablePath(t *testing.T) {
	// A path that exists but cannot be read as a file classifies the same
	// as corruption, so startup degrades to fresh state instead of failing.
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, core.ErrSnapshotCorrupt)
}

func TestFileStoreEmptyPathRejected(t *testing.T) {
	_, err := NewFileStore("  ")
	require.Error(t, err)
}

func TestFileStoreSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), testSnapshot(now)))
	require.NoError(t, store.Save(context.Background(), testSnapshot(now.Add(time.Minute))))

	// No temp files linger after a successful save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "state.json", entries[0].Name())
}

func TestFileStoreListAndReset(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), testSnapshot(now)))

	entries, err := store.List(context.Background(), Query{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Entries come back ordered by service.
	require.Equal(t, "bgp_he_net", entries[0].Service)
	require.Equal(t, "crt_sh", entries[1].Service)

	entries, err = store.List(context.Background(), Query{Prefix: "crt"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	removed, err := store.Reset(context.Background(), Query{Service: "bgp_he_net"})
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	entries, err = store.List(context.Background(), Query{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "crt_sh", entries[0].Service)
}

func TestQueryValidate(t *testing.T) {
	require.Error(t, Query{}.Validate())
	require.NoError(t, Query{All: true}.Validate())
	require.NoError(t, Query{Service: "alpha"}.Validate())
	require.NoError(t, Query{Prefix: "al"}.Validate())
}
