// Package transport defines the messaging-channel boundary consumed by the
// notifier. Adapters wrap a concrete platform (currently Telegram) behind a
// minimal send-only interface.
package transport

import "context"

// ChatTarget addresses a chat, optionally a forum topic thread inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter sends text to a chat target. Implementations must be safe for
// concurrent use.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
