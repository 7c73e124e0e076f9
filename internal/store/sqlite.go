package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"calendard/internal/event"
	logx "calendard/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./calendard.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := 5 * time.Second
	if s := strings.TrimSpace(cfg.BusyTimeout); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			busy = d
		}
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateEvent(ctx context.Context, ev event.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, message, schedule_time, timedelta, repeat_remaining, execution_counter, processed, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Message, ev.ScheduleTime.UTC().Format(time.RFC3339Nano),
		ev.Timedelta, ev.RepeatRemaining, ev.ExecutionCounter, ev.Processed,
		ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetEvent(ctx context.Context, id string) (event.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, message, schedule_time, timedelta, repeat_remaining, execution_counter, processed, created_at
		 FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, ErrNotFound
	}
	return ev, err
}

func (s *sqliteStore) ListEvents(ctx context.Context) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message, schedule_time, timedelta, repeat_remaining, execution_counter, processed, created_at
		 FROM events ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []event.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// IncrementExecution is a single UPDATE so the read-modify-write happens
// inside SQLite itself; processed only ever latches to true.
func (s *sqliteStore) IncrementExecution(ctx context.Context, id string, finished bool) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE events
		 SET execution_counter = execution_counter + 1,
		     processed = CASE WHEN ? THEN 1 ELSE processed END
		 WHERE id = ?
		 RETURNING execution_counter`, finished, id)
	var n int64
	err := row.Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		ev        event.Event
		schedule  string
		createdAt string
	)
	if err := row.Scan(&ev.ID, &ev.Message, &schedule, &ev.Timedelta,
		&ev.RepeatRemaining, &ev.ExecutionCounter, &ev.Processed, &createdAt); err != nil {
		return event.Event{}, err
	}
	var err error
	if ev.ScheduleTime, err = time.Parse(time.RFC3339Nano, schedule); err != nil {
		return event.Event{}, fmt.Errorf("bad schedule_time for %s: %w", ev.ID, err)
	}
	if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return event.Event{}, fmt.Errorf("bad created_at for %s: %w", ev.ID, err)
	}
	return ev, nil
}
