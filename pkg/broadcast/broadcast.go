package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Broadcast after the broadcaster was closed.
var ErrClosed = errors.New("broadcast: broadcaster is closed")

// Message wraps data of type T published on a channel.
type Message[T any] struct {
	Channel string `json:"channel"`
	Data    T      `json:"data"`
}

// Subscriber receives messages from one channel.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the channel messages arrive on. It is closed when the
	// subscription ends.
	Receive(ctx context.Context) <-chan Message[T]

	// Close is idempotent.
	Close() error
}

// Broadcaster sends messages to every subscriber of a channel.
type Broadcaster[T any] interface {
	// Subscribe listens on channel until ctx is cancelled or the subscriber is closed.
	Subscribe(ctx context.Context, channel string) Subscriber[T]

	// Broadcast publishes data on channel. Messages may be dropped for slow consumers.
	Broadcast(ctx context.Context, channel string, data T) error

	Close() error
}

type subscriber[T any] struct {
	ch      chan Message[T]
	done    chan struct{}
	closed  bool
	mu      sync.RWMutex
	onClose func()
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{
		ch:   make(chan Message[T], bufferSize),
		done: make(chan struct{}),
	}
}

func (s *subscriber[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	close(s.ch)
	close(s.done)
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
