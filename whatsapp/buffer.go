package whatsapp

import (
	"strings"
	"sync"
	"time"
)

// fragmentSeparator joins the burst's fragments in arrival order.
const fragmentSeparator = " \n "

// ConvKey identifies one contact's pending buffer on one bot.
type ConvKey struct {
	BotID  uint
	ChatID string
}

// FlushFunc receives the combined text of one burst exactly once.
type FlushFunc func(key ConvKey, from, combined string)

type bufferEntry struct {
	fragments []string
	from      string
	timer     *time.Timer
	gen       uint64
}

// DebounceBuffer collapses a contact's rapid sequence of messages into
// one logical turn: every fragment restarts the quiet-window timer, and
// only when the window elapses with no further input is the combined
// text handed downstream.
type DebounceBuffer struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[ConvKey]*bufferEntry
	flush   FlushFunc
}

// NewDebounceBuffer creates a buffer flushing after window of quiet.
func NewDebounceBuffer(window time.Duration, flush FlushFunc) *DebounceBuffer {
	return &DebounceBuffer{
		window:  window,
		entries: make(map[ConvKey]*bufferEntry),
		flush:   flush,
	}
}

// Add appends a fragment to the key's pending burst and restarts its
// flush timer.
func (b *DebounceBuffer) Add(key ConvKey, from, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		entry = &bufferEntry{}
		b.entries[key] = entry
	}

	entry.fragments = append(entry.fragments, text)
	entry.from = from
	entry.gen++

	if entry.timer != nil {
		entry.timer.Stop()
	}

	// The generation guard keeps a timer that already fired (but lost
	// the race to Stop) from flushing a burst that has since grown.
	gen := entry.gen
	entry.timer = time.AfterFunc(b.window, func() {
		b.fire(key, gen)
	})
}

func (b *DebounceBuffer) fire(key ConvKey, gen uint64) {
	b.mu.Lock()
	entry, ok := b.entries[key]
	if !ok || entry.gen != gen || len(entry.fragments) == 0 {
		b.mu.Unlock()
		return
	}

	combined := strings.Join(entry.fragments, fragmentSeparator)
	from := entry.from
	delete(b.entries, key)
	b.mu.Unlock()

	b.flush(key, from, combined)
}

// CancelBot discards all pending fragments and timers for a bot's
// conversations without invoking the flush handler. Messages in flight
// at shutdown are dropped, not answered.
func (b *DebounceBuffer) CancelBot(botID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, entry := range b.entries {
		if key.BotID != botID {
			continue
		}
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(b.entries, key)
	}
}

// PendingFragments reports how many fragments are buffered for a key.
func (b *DebounceBuffer) PendingFragments(key ConvKey) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.entries[key]; ok {
		return len(entry.fragments)
	}
	return 0
}
