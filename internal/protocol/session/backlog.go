package session

import (
	"sync"

	"github.com/danmuck/ranctl/internal/protocol"
)

// Backlog holds messages that arrived before their connection bound to an
// agent. It is bounded; Push reports false once full.
type Backlog struct {
	mu      sync.Mutex
	limit   int
	items   []*protocol.Message
	dropped int
}

func NewBacklog(limit int) *Backlog {
	if limit <= 0 {
		limit = DefaultConfig().PrebindBacklog
	}
	return &Backlog{limit: limit}
}

func (b *Backlog) Push(msg *protocol.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.limit {
		b.dropped++
		return false
	}
	b.items = append(b.items, msg)
	return true
}

// Drain returns queued messages in arrival order and empties the backlog.
func (b *Backlog) Drain() []*protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Backlog) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
