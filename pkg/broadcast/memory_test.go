package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/broadcast"
)

func receive[T any](t *testing.T, sub broadcast.Subscriber[T]) broadcast.Message[T] {
	t.Helper()
	select {
	case msg, ok := <-sub.Receive(context.Background()):
		require.True(t, ok, "subscriber closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return broadcast.Message[T]{}
}

func requireClosed[T any](t *testing.T, sub broadcast.Subscriber[T]) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Receive(context.Background()):
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryBroadcaster_ChannelIsolation(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[string](4)
	defer b.Close()

	ctx := context.Background()
	a := b.Subscribe(ctx, "job:a")
	other := b.Subscribe(ctx, "job:b")

	require.NoError(t, b.Broadcast(ctx, "job:a", "hello"))

	msg := receive(t, a)
	assert.Equal(t, "job:a", msg.Channel)
	assert.Equal(t, "hello", msg.Data)

	select {
	case m := <-other.Receive(ctx):
		t.Fatalf("unexpected message on other channel: %v", m)
	default:
	}
}

func TestMemoryBroadcaster_FanOutPreservesOrder(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](16)
	defer b.Close()

	ctx := context.Background()
	subs := []broadcast.Subscriber[int]{
		b.Subscribe(ctx, "c"),
		b.Subscribe(ctx, "c"),
		b.Subscribe(ctx, "c"),
	}
	assert.Equal(t, 3, b.SubscriberCount("c"))

	for i := range 5 {
		require.NoError(t, b.Broadcast(ctx, "c", i))
	}

	for _, sub := range subs {
		for want := range 5 {
			assert.Equal(t, want, receive(t, sub).Data)
		}
	}
}

func TestMemoryBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[string](4)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, "c")
	cancel()

	requireClosed(t, sub)
	require.Eventually(t, func() bool { return b.SubscriberCount("c") == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBroadcaster_SubscriberClose(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[string](4)
	defer b.Close()

	sub := b.Subscribe(context.Background(), "c")
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	assert.Equal(t, 0, b.SubscriberCount("c"))
	require.NoError(t, b.Broadcast(context.Background(), "c", "ignored"))
}

func TestMemoryBroadcaster_SlowConsumerDropped(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	ctx := context.Background()
	slow := b.Subscribe(ctx, "c")

	require.NoError(t, b.Broadcast(ctx, "c", 1))
	require.NoError(t, b.Broadcast(ctx, "c", 2))

	assert.Equal(t, 1, receive(t, slow).Data)
	requireClosed(t, slow)
}

func TestMemoryBroadcaster_Close(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[string](4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.Subscribe(ctx, "c")
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	requireClosed(t, sub)
	require.ErrorIs(t, b.Broadcast(ctx, "c", "late"), broadcast.ErrClosed)

	late := b.Subscribe(ctx, "c")
	requireClosed(t, late)
}

func TestMemoryBroadcaster_ConcurrentUse(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](64)
	defer b.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(ctx, "c")
			_ = sub.Close()
		}()
		go func() {
			defer wg.Done()
			_ = b.Broadcast(ctx, "c", i)
		}()
	}
	wg.Wait()
}
