// Package callback processes fired queue tasks: it drives the repeat chain
// forward, updates the event's execution counter, and emits a best-effort
// notification.
package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"calendard/internal/queue"
	"calendard/internal/store"
	logx "calendard/pkg/logx"
)

// Notifier is the best-effort side channel. Failures are logged, never
// propagated as the callback's result.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Processor struct {
	store    store.Store
	builder  *queue.Builder
	queue    queue.Queue
	notifier Notifier
	log      logx.Logger
}

func NewProcessor(st store.Store, builder *queue.Builder, q queue.Queue, n Notifier, log logx.Logger) *Processor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Processor{store: st, builder: builder, queue: q, notifier: n, log: log}
}

// Process handles one queue delivery.
//
// A malformed body (empty, bad JSON, or missing id) is logged and dropped
// with a nil error: the queue only redelivers on an error status, and a
// permanently malformed message would just bounce forever. Store and queue
// failures return an error so the queue's retry policy redelivers.
//
// The re-enqueue guard uses the payload's repeat value, which is immutable
// per delivery, so a duplicate delivery of the terminal step can never
// resurrect the chain from stale stored state.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		p.log.Error("task delivered without data")
		return nil
	}

	var payload queue.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		p.log.Error("task payload is not valid JSON", logx.Err(err))
		return nil
	}
	if payload.ID == "" {
		p.log.Error("task payload has no event id")
		return nil
	}

	p.log.Info("task execution started",
		logx.String("id", payload.ID),
		logx.Int("repeat", payload.Repeat))

	// Keep the chain alive: each step re-enqueues its successor with one
	// fewer repeat. Anything at or below zero is terminal; the endpoint is
	// reachable over plain HTTP, and a negative repeat must not start a
	// chain that decrements forever.
	finished := payload.Repeat <= 0
	if !finished {
		next := p.builder.Build(payload.ID, payload.Message, payload.Timedelta, payload.Repeat-1)
		if err := p.queue.Submit(ctx, next); err != nil {
			return fmt.Errorf("enqueue next task: %w", err)
		}
	}

	if _, err := p.store.IncrementExecution(ctx, payload.ID, finished); err != nil {
		return fmt.Errorf("update event %s: %w", payload.ID, err)
	}

	p.notify(ctx, payload)
	return nil
}

func (p *Processor) notify(ctx context.Context, payload queue.Payload) {
	if p.notifier == nil {
		return
	}
	text := fmt.Sprintf("%s (ID: %s)", payload.Message, payload.ID)
	if payload.Repeat > 0 {
		text += fmt.Sprintf(" [repetitions left: %d]", payload.Repeat)
	}
	if err := p.notifier.Notify(ctx, text); err != nil {
		p.log.Warn("notification failed", logx.String("id", payload.ID), logx.Err(err))
	}
}
