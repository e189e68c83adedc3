package events

import (
	"log/slog"
	"sync"
)

// Publisher fans events out to in-process subscribers. Delivery is
// non-blocking: a subscriber whose buffer is full loses the event (with a
// warning) rather than stalling the controller's resolution path.
//
// All methods are safe for concurrent use.
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[string]chan Envelope
}

// NewPublisher returns an empty, ready-to-use [Publisher].
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[string]chan Envelope),
	}
}

// Emit wraps data in an [Envelope] and delivers it to all subscribers.
func (p *Publisher) Emit(t Type, data any) {
	env := newEnvelope(t, data)

	p.mu.RLock()
	defer p.mu.RUnlock()
	for id, ch := range p.subscribers {
		select {
		case ch <- env:
		default:
			slog.Warn("event dropped: subscriber buffer full",
				"subscriber", id, "event_type", string(t))
		}
	}
}

// Subscribe registers a subscriber under id and returns its channel.
// Re-subscribing with an existing id replaces (and closes) the previous
// channel. The caller must call [Publisher.Unsubscribe] with the same id
// when done.
func (p *Publisher) Subscribe(id string, bufSize int) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan Envelope, bufSize)

	p.mu.Lock()
	if prev, ok := p.subscribers[id]; ok {
		close(prev)
	}
	p.subscribers[id] = ch
	p.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Unknown ids
// are a no-op.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
	p.mu.Unlock()
}

// Close unsubscribes everyone. Emit after Close is a harmless no-op.
func (p *Publisher) Close() {
	p.mu.Lock()
	for id, ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, id)
	}
	p.mu.Unlock()
}
