// Package notifier implements the best-effort messaging side channel.
//
// Notifications are small operator-facing messages ("standup (ID: ...)
// [repetitions left: 2]", backup reports). The pipeline is a bounded queue
// drained by a worker pool with a token-bucket rate limit and bounded retry.
//
// The notifier must never mask or override the outcome of the primary
// operation: callers treat Notify errors as log-and-continue, and a send
// failure after retries is only recorded in the log.
package notifier
