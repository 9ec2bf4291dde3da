package snapstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
)

// LibsqlStore persists snapshots in a libsql/Turso database, one row per
// service. Saves run in a transaction so readers never see a partial image.
type LibsqlStore struct {
	DB *sql.DB
}

func openLibsql(ctx context.Context, cfg config.StoreConfig) (*LibsqlStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dsn, err := buildLibsqlDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverLibsql, dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}

	store := &LibsqlStore{DB: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS governor_snapshots (
		service TEXT PRIMARY KEY,
		timestamps TEXT NOT NULL,
		metrics TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);`,
}

func (s *LibsqlStore) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}

// Save replaces the persisted snapshot inside a single transaction.
func (s *LibsqlStore) Save(ctx context.Context, snap governor.Snapshot) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM governor_snapshots`); err != nil {
		return fmt.Errorf("clear snapshot rows: %w", err)
	}

	savedAt := snap.SavedAt.UTC().Unix()
	for service, state := range snap.Services {
		stamps, err := json.Marshal(state.Timestamps)
		if err != nil {
			return fmt.Errorf("encode timestamps for %s: %w", service, err)
		}
		metrics, err := json.Marshal(state.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics for %s: %w", service, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO governor_snapshots (service, timestamps, metrics, saved_at)
			VALUES (?, ?, ?, ?)
		`, service, string(stamps), string(metrics), savedAt); err != nil {
			return fmt.Errorf("store snapshot for %s: %w", service, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot save: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. No rows means a first run and returns
// nil; undecodable rows report ErrSnapshotCorrupt.
func (s *LibsqlStore) Load(ctx context.Context) (*governor.Snapshot, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT service, timestamps, metrics, saved_at
		FROM governor_snapshots
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	snap := &governor.Snapshot{Services: make(map[string]governor.ServiceSnapshot)}
	var savedAt int64
	for rows.Next() {
		var (
			service string
			stamps  string
			metrics string
			rowAt   int64
		)
		if err := rows.Scan(&service, &stamps, &metrics, &rowAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		state, err := decodeServiceSnapshot(service, stamps, metrics)
		if err != nil {
			return nil, err
		}
		snap.Services[service] = state
		if rowAt > savedAt {
			savedAt = rowAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if len(snap.Services) == 0 {
		return nil, nil
	}
	snap.SavedAt = time.Unix(savedAt, 0).UTC()
	return snap, nil
}

func decodeServiceSnapshot(service, stamps, metrics string) (governor.ServiceSnapshot, error) {
	var state governor.ServiceSnapshot
	if err := json.Unmarshal([]byte(stamps), &state.Timestamps); err != nil {
		return state, fmt.Errorf("decode timestamps for %s: %w", service, core.ErrSnapshotCorrupt)
	}
	if err := json.Unmarshal([]byte(metrics), &state.Metrics); err != nil {
		return state, fmt.Errorf("decode metrics for %s: %w", service, core.ErrSnapshotCorrupt)
	}
	return state, nil
}

// List returns persisted state for services matching the query.
func (s *LibsqlStore) List(ctx context.Context, q Query) ([]Entry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT service, timestamps, metrics
		FROM governor_snapshots
		%s
		ORDER BY service
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []Entry{}
	for rows.Next() {
		var service, stamps, metrics string
		if err := rows.Scan(&service, &stamps, &metrics); err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}
		state, err := decodeServiceSnapshot(service, stamps, metrics)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Service: service, State: state})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return entries, nil
}

// Reset deletes persisted state for services matching the query.
func (s *LibsqlStore) Reset(ctx context.Context, q Query) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM governor_snapshots
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset snapshots: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset snapshots: %w", err)
	}
	return affected, nil
}

// Close releases database resources.
func (s *LibsqlStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (q Query) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if service := strings.TrimSpace(q.Service); service != "" {
		return "WHERE service = ?", []any{service}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE service LIKE ?", []any{prefix + "%"}, nil
}

func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		return addAuthToken(dsn, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("store path or url is required")
	}

	if path == ":memory:" {
		return path, nil
	}

	if strings.HasPrefix(path, "file:") || strings.HasPrefix(path, "libsql:") {
		return path, nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), nil
}

func ensureStoreDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
