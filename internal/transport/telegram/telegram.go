// Package telegram adapts the transport.Adapter interface to the Telegram
// Bot API via telebot. The adapter is send-only: calendard never consumes
// inbound updates.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"calendard/internal/transport"
	logx "calendard/pkg/logx"
)

type Config struct {
	Token string
}

type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log}, nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if to.ChatID == 0 {
		return errors.New("telegram chat id is not set")
	}

	sendOpts := &tele.SendOptions{}
	if opt != nil {
		sendOpts.ParseMode = opt.ParseMode
		sendOpts.DisableWebPagePreview = opt.DisablePreview
	}
	if to.ThreadID != 0 {
		sendOpts.ThreadID = to.ThreadID
	}

	// telebot calls are not context-aware; run the send in a goroutine so a
	// canceled context doesn't strand the caller.
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOpts)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return errors.New("telegram send timed out")
	}
}
