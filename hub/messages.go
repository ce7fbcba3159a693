package hub

import (
	"sync"

	"github.com/airdcpp-web/dcppcore/identity"
)

// chatMessage is one entry retained in a messageCache.
type chatMessage struct {
	From identity.SID
	Text string
}

// messageCache is a bounded ring buffer of recent MSG frames for one hub,
// the oldest entry evicted once capacity is reached.
type messageCache struct {
	mu   sync.Mutex
	cap  int
	buf  []chatMessage
	next int
	full bool
}

func newMessageCache(capacity int) *messageCache {
	return &messageCache{cap: capacity, buf: make([]chatMessage, capacity)}
}

func (m *messageCache) add(from identity.SID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = chatMessage{From: from, Text: text}
	m.next = (m.next + 1) % m.cap
	if m.next == 0 {
		m.full = true
	}
}

// Recent returns cached messages oldest-first.
func (m *messageCache) Recent() []chatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		out := make([]chatMessage, m.next)
		copy(out, m.buf[:m.next])
		return out
	}
	out := make([]chatMessage, m.cap)
	copy(out, m.buf[m.next:])
	copy(out[m.cap-m.next:], m.buf[:m.next])
	return out
}
