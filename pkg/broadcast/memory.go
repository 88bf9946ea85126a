package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster drops messages for slow consumers rather than blocking the broadcast operation.
// All methods are safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	channels   map[string]map[*subscriber[T]]struct{}
	bufferSize int
	closed     bool
	mu         sync.RWMutex
	cleanupWg  sync.WaitGroup
}

// NewMemoryBroadcaster creates a new in-memory broadcaster.
// bufferSize is the per-subscriber channel buffer, at least 1.
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		channels: make(map[string]map[*subscriber[T]]struct{}),
		// zero-buffer channels would turn every send into a drop
		bufferSize: max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber on channel. It is removed when ctx is
// cancelled or Close is called on it. After the broadcaster is closed,
// Subscribe returns an already-closed subscriber.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context, channel string) Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber[T](b.bufferSize)
	if b.closed {
		_ = sub.Close()
		return sub
	}

	subs, ok := b.channels[channel]
	if !ok {
		subs = make(map[*subscriber[T]]struct{})
		b.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	sub.onClose = func() { b.remove(channel, sub) }

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Broadcast sends data to all subscribers of channel without blocking.
// A subscriber whose buffer is full is closed.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, channel string, data T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message[T]{Channel: channel, Data: data}
	for sub := range b.channels[channel] {
		if !sub.send(msg) {
			// closing takes the write lock, so it cannot run under RLock
			go func() { _ = sub.Close() }()
		}
	}

	return nil
}

// SubscriberCount returns the number of live subscribers on channel.
func (b *MemoryBroadcaster[T]) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// Close shuts down the broadcaster and closes all subscribers.
// It is safe to call Close multiple times.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var subs []*subscriber[T]
	for _, set := range b.channels {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	clear(b.channels)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}

	b.cleanupWg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) remove(channel string, sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[channel]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.channels, channel)
	}
}
