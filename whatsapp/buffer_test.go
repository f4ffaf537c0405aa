package whatsapp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type flushRecorder struct {
	mu    sync.Mutex
	calls []string
	keys  []ConvKey
}

func (r *flushRecorder) flush(key ConvKey, from, combined string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, combined)
	r.keys = append(r.keys, key)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *flushRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

func TestDebounceBufferCombinesBurst(t *testing.T) {
	rec := &flushRecorder{}
	buf := NewDebounceBuffer(30*time.Millisecond, rec.flush)
	key := ConvKey{BotID: 1, ChatID: "5511999@c.us"}

	buf.Add(key, "5511999@c.us", "oi")
	buf.Add(key, "5511999@c.us", "tudo bem?")
	buf.Add(key, "5511999@c.us", "queria saber o preço")

	assert.Equal(t, 3, buf.PendingFragments(key))

	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "oi \n tudo bem? \n queria saber o preço", rec.last())
	assert.Equal(t, 0, buf.PendingFragments(key))

	// no second flush for the same burst
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestDebounceBufferEachAddRestartsWindow(t *testing.T) {
	rec := &flushRecorder{}
	buf := NewDebounceBuffer(50*time.Millisecond, rec.flush)
	key := ConvKey{BotID: 1, ChatID: "a@c.us"}

	buf.Add(key, "a@c.us", "one")
	time.Sleep(30 * time.Millisecond)
	buf.Add(key, "a@c.us", "two")
	time.Sleep(30 * time.Millisecond)

	// 60ms since the first fragment, but only 30ms of quiet: no flush yet.
	assert.Equal(t, 0, rec.count())

	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "one \n two", rec.last())
}

func TestDebounceBufferKeysAreIndependent(t *testing.T) {
	rec := &flushRecorder{}
	buf := NewDebounceBuffer(20*time.Millisecond, rec.flush)

	buf.Add(ConvKey{BotID: 1, ChatID: "a@c.us"}, "a@c.us", "from a")
	buf.Add(ConvKey{BotID: 1, ChatID: "b@c.us"}, "b@c.us", "from b")
	buf.Add(ConvKey{BotID: 2, ChatID: "a@c.us"}, "a@c.us", "other bot")

	assert.Eventually(t, func() bool { return rec.count() == 3 },
		time.Second, 5*time.Millisecond)
}

func TestDebounceBufferCancelBot(t *testing.T) {
	rec := &flushRecorder{}
	buf := NewDebounceBuffer(20*time.Millisecond, rec.flush)

	buf.Add(ConvKey{BotID: 1, ChatID: "a@c.us"}, "a@c.us", "dropped")
	buf.Add(ConvKey{BotID: 2, ChatID: "b@c.us"}, "b@c.us", "survives")

	buf.CancelBot(1)
	assert.Equal(t, 0, buf.PendingFragments(ConvKey{BotID: 1, ChatID: "a@c.us"}))

	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "survives", rec.last())

	// bot 1's burst is gone for good
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}
