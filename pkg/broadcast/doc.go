// Package broadcast delivers typed messages to subscribers of named channels.
//
// Two implementations share the Broadcaster interface. MemoryBroadcaster fans
// messages out inside one process. RedisBroadcaster rides on Redis pub/sub so
// subscribers connected to any instance see every publish.
//
// Basic usage:
//
//	b := broadcast.NewMemoryBroadcaster[JobEvent](16)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx, "job:42")
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, "job:42", JobEvent{Status: "processing"})
//
//	for msg := range sub.Receive(ctx) {
//		fmt.Println(msg.Channel, msg.Data)
//	}
//
// Delivery is best effort. A subscriber whose buffer is full is dropped and
// its receive channel closed, so a slow consumer never blocks a publisher.
package broadcast
