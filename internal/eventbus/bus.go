// Package eventbus carries task lifecycle events from the task store to its
// in-process consumers (the notification bridge). Publishing never blocks: a
// slow subscriber drops events rather than stalling a store mutation.
package eventbus

import (
	"sync"
	"time"
)

// Event is a task lifecycle signal. Topic names the transition, Task carries
// the payload.
type Event struct {
	Topic string
	At    time.Time
	Task  TaskEvent
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no background goroutines.
func New() Bus {
	return &fanout{subs: map[int]chan Event{}}
}

type fanout struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func (f *fanout) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default: // full buffer: drop for this subscriber
		}
	}
}

func (f *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			// Publish holds mu across its sends, so removing the channel
			// under mu makes the close race-free.
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
