// Package snapstore provides durable backends for governor snapshots: a
// local file with atomic replace, a libsql database, and Redis for
// deployments that share limiter state storage.
package snapstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core/governor"
)

const (
	DriverFile   = "file"
	DriverLibsql = "libsql"
	DriverRedis  = "redis"
)

// Store is a snapshot backend with admin access to individual services.
type Store interface {
	governor.SnapshotStore
	List(ctx context.Context, q Query) ([]Entry, error)
	Reset(ctx context.Context, q Query) (int64, error)
	Close() error
}

// Entry is one service's persisted state.
type Entry struct {
	Service string
	State   governor.ServiceSnapshot
}

// Query selects services for admin operations.
type Query struct {
	All     bool
	Service string
	Prefix  string
}

// Validate ensures the query selects something.
func (q Query) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Service) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --service, or --prefix")
}

func (q Query) matches(service string) bool {
	if q.All {
		return true
	}
	if target := strings.TrimSpace(q.Service); target != "" {
		return service == target
	}
	if prefix := strings.TrimSpace(q.Prefix); prefix != "" {
		return strings.HasPrefix(service, prefix)
	}
	return false
}

// Open initializes the snapshot store selected by configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = DriverFile
	}

	switch driver {
	case DriverFile:
		return NewFileStore(cfg.Path)
	case DriverLibsql:
		return openLibsql(ctx, cfg)
	case DriverRedis:
		return openRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// listSnapshot and resetSnapshot implement admin operations for backends
// that persist the snapshot as a single document.

func listSnapshot(snap *governor.Snapshot, q Query) ([]Entry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	entries := []Entry{}
	if snap == nil {
		return entries, nil
	}
	for service, state := range snap.Services {
		if q.matches(service) {
			entries = append(entries, Entry{Service: service, State: state})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Service < entries[j].Service })
	return entries, nil
}

func resetSnapshot(snap *governor.Snapshot, q Query) (*governor.Snapshot, int64, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}
	if snap == nil {
		return nil, 0, nil
	}
	var removed int64
	for service := range snap.Services {
		if q.matches(service) {
			delete(snap.Services, service)
			removed++
		}
	}
	return snap, removed, nil
}
