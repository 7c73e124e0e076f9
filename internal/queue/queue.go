// Package queue defines the task-queue boundary: the descriptor handed to
// the queue for one future callback invocation, the pure builder that derives
// descriptors from event state, and a local at-least-once dispatcher that
// delivers fired tasks over HTTP.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Payload is the serialized body the queue POSTs back to the callback
// endpoint when a task fires.
type Payload struct {
	Message   string `json:"message"`
	Timedelta int64  `json:"timedelta"`
	ID        string `json:"id"`
	Repeat    int    `json:"repeat"`
}

// TaskDescriptor describes one future callback invocation. It has no
// lifecycle of its own: it is built, submitted, and discarded.
type TaskDescriptor struct {
	// Name is derived from (event id, repeat step). Submitting the same
	// logical step twice collides on the name instead of creating a
	// duplicate queue entry.
	Name         string
	TargetURL    string
	Principal    string
	ScheduleTime time.Time
	Payload      Payload
}

// Body returns the serialized payload.
func (d TaskDescriptor) Body() []byte {
	b, _ := json.Marshal(d.Payload)
	return b
}

// Queue accepts task descriptors for deferred delivery. Implementations
// provide at-least-once semantics; a submitted task cannot be withdrawn.
type Queue interface {
	Submit(ctx context.Context, task TaskDescriptor) error
}
