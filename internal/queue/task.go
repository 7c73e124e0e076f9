package queue

import (
	"fmt"
	"time"
)

// BuilderConfig carries the fixed, non-event-specific parts of every task.
type BuilderConfig struct {
	// CallbackURL is where the queue delivers fired tasks.
	CallbackURL string
	// Principal identifies the caller to the callback endpoint (e.g. a
	// service-account name). Forwarded verbatim; the queue does not
	// interpret it.
	Principal string
}

// Builder maps event state to enqueue-able task descriptors. It is pure:
// building a descriptor has no side effects, and the same (id, repeat) pair
// always yields the same task name.
type Builder struct {
	cfg BuilderConfig
	now func() time.Time
}

func NewBuilder(cfg BuilderConfig) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// NewBuilderAt is NewBuilder with an injected clock, for tests.
func NewBuilderAt(cfg BuilderConfig, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{cfg: cfg, now: now}
}

// Build creates the descriptor for one repeat step, scheduled at
// now + timedelta seconds. A timedelta of 0 means "as soon as possible".
func (b *Builder) Build(id, message string, timedelta int64, repeat int) TaskDescriptor {
	return b.BuildAt(id, message, b.now().Add(time.Duration(timedelta)*time.Second), timedelta, repeat)
}

// BuildAt creates a descriptor with an explicit absolute fire time. Used at
// intake when the client supplied a timestamp instead of a delay.
func (b *Builder) BuildAt(id, message string, at time.Time, timedelta int64, repeat int) TaskDescriptor {
	return TaskDescriptor{
		Name:         TaskName(id, repeat),
		TargetURL:    b.cfg.CallbackURL,
		Principal:    b.cfg.Principal,
		ScheduleTime: at,
		Payload: Payload{
			Message:   message,
			Timedelta: timedelta,
			ID:        id,
			Repeat:    repeat,
		},
	}
}

// TaskName derives the queue-level identifier for one repeat step. Distinct
// steps of the same event get distinct names; retries of the same step get
// the same name and are deduplicated by the queue.
func TaskName(id string, repeat int) string {
	return fmt.Sprintf("%s_%d", id, repeat)
}
