// Package store provides the persistence layer for calendar events.
//
// Three drivers are supported:
//   - "sqlite" (default): single-file SQLite database
//   - "postgres": PostgreSQL via pgx
//   - "memory": in-process map, used by tests and for throwaway setups
//
// The only mutation after creation is IncrementExecution, which must be a
// true atomic read-modify-write so that concurrent duplicate callback
// deliveries never lose an increment.
package store

import (
	"context"
	"errors"
	"strings"

	"calendard/internal/event"
	logx "calendard/pkg/logx"
)

var ErrNotFound = errors.New("event not found")

// Config configures the store.
type Config struct {
	Driver string // "sqlite", "postgres", "memory"; empty means "sqlite"
	Path   string // sqlite file path
	DSN    string // postgres connection string

	BusyTimeout string // sqlite busy timeout, Go duration string; empty means default
}

// Store is the persistence API used by intake and the callback processor.
type Store interface {
	// CreateEvent persists a new event. The id must not exist yet.
	CreateEvent(ctx context.Context, ev event.Event) error
	GetEvent(ctx context.Context, id string) (event.Event, error)
	ListEvents(ctx context.Context) ([]event.Event, error)

	// IncrementExecution atomically adds 1 to the stored execution counter
	// and, when finished is true, latches processed to true. The processed
	// flag never transitions back to false. It returns the new counter value
	// or ErrNotFound.
	IncrementExecution(ctx context.Context, id string, finished bool) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "pgx":
		return openPostgres(ctx, cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
