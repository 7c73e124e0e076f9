// Package intake validates event creation requests, persists the event, and
// enqueues the first task of its repeat chain.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"calendard/internal/event"
	"calendard/internal/queue"
	"calendard/internal/store"
	logx "calendard/pkg/logx"
)

const defaultMessage = "Empty message"

// CreateRequest mirrors the JSON creation body. Pointer fields distinguish
// "absent" from zero values.
type CreateRequest struct {
	Message   *string `json:"message"`
	Timestamp *string `json:"timestamp"`
	Timedelta *int64  `json:"timedelta"`
	Repeat    *int    `json:"repeat"`
}

type Service struct {
	store   store.Store
	builder *queue.Builder
	queue   queue.Queue
	log     logx.Logger
	now     func() time.Time
}

func New(st store.Store, builder *queue.Builder, q queue.Queue, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: st, builder: builder, queue: q, log: log, now: time.Now}
}

// NewAt is New with an injected clock, for tests.
func NewAt(st store.Store, builder *queue.Builder, q queue.Queue, log logx.Logger, now func() time.Time) *Service {
	s := New(st, builder, q, log)
	if now != nil {
		s.now = now
	}
	return s
}

// Create validates the request, persists a new event, and submits the first
// task. Exactly one store write and one queue submission happen per success.
// Validation failures are *event.ValidationError.
func (s *Service) Create(ctx context.Context, req CreateRequest) (event.Event, error) {
	now := s.now()

	message := defaultMessage
	if req.Message != nil && *req.Message != "" {
		message = *req.Message
	}

	var timestamp time.Time
	if req.Timestamp != nil {
		ts, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			return event.Event{}, event.Invalid(fmt.Sprintf("Invalid timestamp (%v)", err))
		}
		if !ts.After(now) {
			return event.Event{}, event.Invalid("Invalid timestamp (must be a future timestamp)")
		}
		timestamp = ts
	}

	if req.Timedelta != nil && *req.Timedelta < 0 {
		return event.Event{}, event.Invalid("Invalid timedelta (must be a non-negative integer)")
	}
	if req.Repeat != nil && *req.Repeat < 0 {
		return event.Event{}, event.Invalid("Invalid repeat (must be a non-negative integer)")
	}

	// timestamp and timedelta are mutually exclusive: once repeating, only the
	// delta drives subsequent firings, so accepting both would silently drop
	// one of them.
	if req.Timestamp != nil && req.Timedelta != nil {
		return event.Event{}, event.Invalid("timestamp and timedelta are mutually exclusive")
	}
	if req.Timestamp == nil && req.Timedelta == nil {
		return event.Event{}, event.Invalid("at least one of timestamp and timedelta must be set")
	}

	var timedelta int64
	if req.Timedelta != nil {
		timedelta = *req.Timedelta
	}
	repeat := 0
	if req.Repeat != nil {
		repeat = *req.Repeat
	}

	scheduleTime := timestamp
	if req.Timestamp == nil {
		scheduleTime = now.Add(time.Duration(timedelta) * time.Second)
	}

	ev := event.Event{
		ID:              uuid.NewString(),
		Message:         message,
		ScheduleTime:    scheduleTime,
		Timedelta:       timedelta,
		RepeatRemaining: repeat,
		CreatedAt:       now,
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return event.Event{}, fmt.Errorf("persist event: %w", err)
	}

	task := s.builder.BuildAt(ev.ID, ev.Message, ev.ScheduleTime, ev.Timedelta, ev.RepeatRemaining)
	if err := s.queue.Submit(ctx, task); err != nil {
		return event.Event{}, fmt.Errorf("enqueue task: %w", err)
	}

	s.log.Info("event created",
		logx.String("id", ev.ID),
		logx.Time("schedule_time", ev.ScheduleTime),
		logx.Int("repeat", ev.RepeatRemaining))
	return ev, nil
}

func (s *Service) List(ctx context.Context) ([]event.Event, error) {
	return s.store.ListEvents(ctx)
}
