// Package events carries the engine's domain events to the journal, the SSE
// stream and the notifiers.
package events

import (
	"sync"

	"github.com/nebulatrade/tradesim/internal/entity"
)

// Broadcaster fans out trade events to subscribers via buffered channels.
// Delivery is best-effort: a slow reader drops events rather than blocking
// the trading path.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan entity.TradeEvent]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[chan entity.TradeEvent]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping if a reader is slow.
func (b *Broadcaster) Publish(e entity.TradeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe.
func (b *Broadcaster) Subscribe() chan entity.TradeEvent {
	ch := make(chan entity.TradeEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan entity.TradeEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
