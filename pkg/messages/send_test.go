package messages

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zapgpt/backend/pkg/logger"
)

type fakeSender struct {
	sent    []string
	failOn  map[int]bool
	attempt int
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.attempt++
	if f.failOn[f.attempt] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, text)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestSendWithDelayDeliversInOrder(t *testing.T) {
	sender := &fakeSender{}

	SendWithDelay(context.Background(), sender, "5511999999999", []string{"one", "two", "three"}, time.Nanosecond, testLogger())

	assert.Equal(t, []string{"one", "two", "three"}, sender.sent)
}

func TestSendWithDelayContinuesAfterFailedChunk(t *testing.T) {
	sender := &fakeSender{failOn: map[int]bool{2: true}}

	SendWithDelay(context.Background(), sender, "5511999999999", []string{"a", "b", "c"}, time.Nanosecond, testLogger())

	assert.Equal(t, 3, sender.attempt)
	assert.Equal(t, []string{"a", "c"}, sender.sent)
}

func TestSendWithDelayZeroDelaySendsImmediately(t *testing.T) {
	sender := &fakeSender{}

	start := time.Now()
	SendWithDelay(context.Background(), sender, "5511999999999", []string{"Claro!", "O plano Pro custa R$49."}, 0, testLogger())

	// zero must not fall back to the 100ms/char default (that would
	// take ~3s for these chunks)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"Claro!", "O plano Pro custa R$49."}, sender.sent)
}

func TestSendWithDelayNegativeDelayUsesDefault(t *testing.T) {
	sender := &fakeSender{}

	start := time.Now()
	SendWithDelay(context.Background(), sender, "5511999999999", []string{"hi"}, -1, testLogger())

	// two chars at the 100ms/char default
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, []string{"hi"}, sender.sent)
}

func TestSendWithDelayStopsOnCancelledContext(t *testing.T) {
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	SendWithDelay(ctx, sender, "5511999999999", []string{"never"}, time.Hour, testLogger())

	assert.Empty(t, sender.sent)
}
