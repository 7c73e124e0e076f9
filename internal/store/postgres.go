package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"calendard/internal/event"
	logx "calendard/pkg/logx"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS events (
    id                TEXT PRIMARY KEY,
    message           TEXT NOT NULL,
    schedule_time     TIMESTAMPTZ NOT NULL,
    timedelta         BIGINT NOT NULL DEFAULT 0,
    repeat_remaining  INT NOT NULL DEFAULT 0,
    execution_counter BIGINT NOT NULL DEFAULT 0,
    processed         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at        TIMESTAMPTZ NOT NULL
)`

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("store.dsn is required for the postgres driver")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	st := &pgStore{pool: pool, log: log}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return st, nil
}

func (s *pgStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *pgStore) CreateEvent(ctx context.Context, ev event.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events(id, message, schedule_time, timedelta, repeat_remaining, execution_counter, processed, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		ev.ID, ev.Message, ev.ScheduleTime, ev.Timedelta,
		ev.RepeatRemaining, ev.ExecutionCounter, ev.Processed, ev.CreatedAt,
	)
	return err
}

func (s *pgStore) GetEvent(ctx context.Context, id string) (event.Event, error) {
	var ev event.Event
	err := s.pool.QueryRow(ctx,
		`SELECT id, message, schedule_time, timedelta, repeat_remaining, execution_counter, processed, created_at
		 FROM events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.Message, &ev.ScheduleTime, &ev.Timedelta,
			&ev.RepeatRemaining, &ev.ExecutionCounter, &ev.Processed, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Event{}, ErrNotFound
	}
	return ev, err
}

func (s *pgStore) ListEvents(ctx context.Context) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message, schedule_time, timedelta, repeat_remaining, execution_counter, processed, created_at
		 FROM events ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []event.Event{}
	for rows.Next() {
		var ev event.Event
		if err := rows.Scan(&ev.ID, &ev.Message, &ev.ScheduleTime, &ev.Timedelta,
			&ev.RepeatRemaining, &ev.ExecutionCounter, &ev.Processed, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *pgStore) IncrementExecution(ctx context.Context, id string, finished bool) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`UPDATE events
		 SET execution_counter = execution_counter + 1,
		     processed = processed OR $1
		 WHERE id = $2
		 RETURNING execution_counter`, finished, id).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}
