package snapstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
)

// FileStore persists snapshots as a single JSON file. Writes go to a
// temporary file in the same directory followed by an atomic rename, so a
// crash mid-write can never corrupt previously durable state.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed snapshot store.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(ctx context.Context, snap governor.Snapshot) error {
	if s == nil {
		return errors.New("file store is not initialized")
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. A missing file returns nil without
// error (first run); an unreadable or undecodable one reports
// ErrSnapshotCorrupt so the caller can degrade to fresh state.
func (s *FileStore) Load(ctx context.Context) (*governor.Snapshot, error) {
	if s == nil {
		return nil, errors.New("file store is not initialized")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %s: %w: %w", s.path, err, core.ErrSnapshotCorrupt)
	}

	snap := &governor.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, core.ErrSnapshotCorrupt)
	}
	if snap.Services == nil {
		snap.Services = make(map[string]governor.ServiceSnapshot)
	}
	return snap, nil
}

// List returns persisted state for services matching the query.
func (s *FileStore) List(ctx context.Context, q Query) ([]Entry, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return listSnapshot(snap, q)
}

// Reset removes persisted state for services matching the query.
func (s *FileStore) Reset(ctx context.Context, q Query) (int64, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	snap, removed, err := resetSnapshot(snap, q)
	if err != nil || snap == nil || removed == 0 {
		return removed, err
	}
	return removed, s.Save(ctx, *snap)
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }
