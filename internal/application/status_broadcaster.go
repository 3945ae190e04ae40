package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alorle/gazibo/internal/playback"
)

const statusBufferSize = 32

// StatusEvent is one player notification together with the snapshot it describes.
type StatusEvent struct {
	Notice   playback.Notice
	Snapshot playback.Snapshot
}

// StatusBroadcaster fans player notifications out to any number of subscribers.
// New subscribers first receive the latest event. Slow subscribers whose
// buffers are full are dropped.
type StatusBroadcaster struct {
	mu      sync.Mutex
	clients map[string]chan StatusEvent
	last    *StatusEvent
	closed  bool
	logger  *slog.Logger
}

func NewStatusBroadcaster(logger *slog.Logger) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[string]chan StatusEvent),
		logger:  logger,
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *StatusBroadcaster) Publish(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = &ev

	for id, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping slow status subscriber", "subscriber", id)
			close(ch)
			delete(b.clients, id)
		}
	}
}

// Subscribe registers a subscriber and calls fn for every event until ctx is
// done, the broadcaster is closed, the subscriber is dropped or fn fails.
func (b *StatusBroadcaster) Subscribe(ctx context.Context, fn func(StatusEvent) error) error {
	id := uuid.NewString()
	ch := make(chan StatusEvent, statusBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	if b.last != nil {
		ch <- *b.last
	}
	b.clients[id] = ch
	b.mu.Unlock()

	defer b.unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}

// Close ends every subscription.
func (b *StatusBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *StatusBroadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// unsubscribe removes a subscriber. Its channel is closed only by Publish or Close.
func (b *StatusBroadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, id)
}
