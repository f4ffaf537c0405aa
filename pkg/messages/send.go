package messages

import (
	"context"
	"time"
	"unicode/utf8"

	"zapgpt/backend/pkg/logger"
)

// DefaultDelayPerChar roughly simulates human typing speed.
const DefaultDelayPerChar = 100 * time.Millisecond

// TextSender delivers one outbound text message.
type TextSender interface {
	SendText(ctx context.Context, to string, text string) error
}

// SendWithDelay delivers chunks strictly in order, sleeping before each
// one in proportion to its length. A zero delay sends immediately; a
// negative one falls back to the default. A failed send is logged and
// does not abort the remaining chunks. Context cancellation stops the
// sequence between chunks.
func SendWithDelay(ctx context.Context, sender TextSender, to string, chunks []string, delayPerChar time.Duration, log *logger.Logger) {
	if delayPerChar < 0 {
		delayPerChar = DefaultDelayPerChar
	}

	for _, chunk := range chunks {
		delay := time.Duration(utf8.RuneCountInString(chunk)) * delayPerChar

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := sender.SendText(ctx, to, chunk); err != nil {
			log.Error("failed to send message chunk", "to", to, "error", err.Error())
		}
	}
}
