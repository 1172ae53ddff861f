package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 16

// Broadcaster fans changes out to in-process subscribers such as SSE streams.
// A subscriber whose buffer is full misses the change rather than blocking Publish.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int64]chan Change
	nextID int64
	closed bool
	logger *zap.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int64]chan Change),
		logger: logger,
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Change, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster) remove(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish hands c to every subscriber without blocking
func (b *Broadcaster) Publish(_ context.Context, c Change) error {
	if err := c.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- c:
		default:
			b.logger.Warn("change_dropped_slow_subscriber",
				zap.Int64("subscriber", id),
				zap.String("change_id", c.ID.String()))
		}
	}
	return nil
}

// Close unsubscribes everyone
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

var _ Publisher = (*Broadcaster)(nil)
