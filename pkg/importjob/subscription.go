package importjob

import (
	"context"
	"sync"
)

// Subscription streams the events of one job. The channel returned by Events
// closes after the terminal event, when ctx ends or on Close.
type Subscription struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Subscribe replays the transitions the job already went through and then
// forwards live events. Returns ErrJobNotFound for unknown ids.
func (t *Tracker) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	// subscribe before reading so no transition falls between the two
	live := t.events.Subscribe(ctx, Channel(id))

	job, err := t.store.Get(ctx, id)
	if err != nil {
		_ = live.Close()
		return nil, err
	}

	s := &Subscription{
		events: make(chan Event, len(job.History)+2),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.events)
		defer live.Close()

		type key struct {
			seq int
			typ EventType
		}
		seen := make(map[key]bool)

		send := func(ev Event) bool {
			seen[key{ev.Seq, ev.Type}] = true
			select {
			case s.events <- ev:
				return true
			case <-ctx.Done():
			case <-s.done:
			}
			return false
		}

		for _, ev := range replay(job) {
			if !send(ev) {
				return
			}
		}
		if job.Status.Terminal() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case msg, ok := <-live.Receive(ctx):
				if !ok {
					return
				}
				ev := msg.Data
				if seen[key{ev.Seq, ev.Type}] {
					continue
				}
				if !send(ev) || ev.Type != EventStatus {
					return
				}
			}
		}
	}()

	return s, nil
}

// replay rebuilds the events of every transition in job.History. Only the
// last one carries the job's file path, error and metadata.
func replay(job Job) []Event {
	out := make([]Event, 0, len(job.History)+1)
	for i, tr := range job.History[:max(len(job.History)-1, 0)] {
		out = append(out, Event{
			Type:   EventStatus,
			JobID:  job.ID,
			Status: tr.Status,
			Seq:    i + 1,
			At:     tr.At,
		})
	}
	if len(job.History) > 0 {
		out = append(out, events(job)...)
	}
	return out
}
