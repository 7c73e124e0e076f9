// Package event holds the persisted calendar event model shared by the
// intake service, the callback processor, and the store drivers.
package event

import (
	"errors"
	"time"
)

// Event is a persisted scheduled/repeating notification request.
//
// ID is immutable once created. ScheduleTime is the absolute point in time
// at which the next callback is expected to fire. RepeatRemaining counts the
// scheduled firings still ahead (0 = no more repeats after the current one).
// ExecutionCounter counts processed callback invocations and only grows.
// Processed latches to true when the repeat chain is exhausted.
type Event struct {
	ID               string    `json:"id"`
	Message          string    `json:"message"`
	ScheduleTime     time.Time `json:"schedule_time"`
	Timedelta        int64     `json:"timedelta"`
	RepeatRemaining  int       `json:"repeat"`
	ExecutionCounter int64     `json:"execution_counter"`
	Processed        bool      `json:"processed"`
	CreatedAt        time.Time `json:"created_at"`
}

// ValidationError marks client input as malformed or out of range.
// It carries a single human-readable reason and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func Invalid(reason string) error { return &ValidationError{Reason: reason} }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
