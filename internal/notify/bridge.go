package notify

import (
	"context"
	"fmt"
	"sync"

	"taskherd/internal/eventbus"
	"taskherd/pkg/logx"
)

// EventBridge turns task events from the bus into notification records.
// Creation is synchronous per event; delivery stays with the dispatcher.
type EventBridge struct {
	store *Store
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.Mutex
	unsub func()
	done  chan struct{}
}

func NewEventBridge(store *Store, bus eventbus.Bus, log logx.Logger) *EventBridge {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EventBridge{store: store, bus: bus, log: log}
}

func (b *EventBridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsub != nil {
		return
	}
	ch, unsub := b.bus.Subscribe(64)
	b.unsub = unsub
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				b.handle(e)
			}
		}
	}()
}

func (b *EventBridge) Stop(ctx context.Context) {
	b.mu.Lock()
	unsub := b.unsub
	done := b.done
	b.unsub = nil
	b.done = nil
	b.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
}

func (b *EventBridge) handle(e eventbus.Event) {
	te := e.Task

	var in CreateInput
	switch e.Topic {
	case eventbus.TopicTaskAssigned:
		if te.AgentID == "" {
			return
		}
		in = CreateInput{
			AgentID: te.AgentID,
			Type:    TypeTaskAssigned,
			Title:   "Task assigned: " + te.Title,
			Text:    fmt.Sprintf("You were assigned %q", te.Title),
		}
	case eventbus.TopicTaskCompleted:
		if te.AgentID == "" {
			return
		}
		in = CreateInput{
			AgentID: te.AgentID,
			Type:    TypeTaskCompleted,
			Title:   "Task completed: " + te.Title,
		}
	case eventbus.TopicTaskUnblocked:
		if te.AgentID == "" {
			return
		}
		in = CreateInput{
			AgentID: te.AgentID,
			Type:    TypeTaskUnblocked,
			Title:   "Task unblocked: " + te.Title,
			Text:    "All dependencies are done; the task moved back to queued.",
		}
	case eventbus.TopicTaskCommented:
		if te.AgentID == "" || te.AgentID == te.Actor {
			return // no self-notification for own comments
		}
		in = CreateInput{
			AgentID: te.AgentID,
			Type:    TypeTaskComment,
			Title:   "New comment on: " + te.Title,
			Text:    te.Note,
		}
	default:
		return
	}
	in.TaskID = te.TaskID
	in.ProjectID = te.ProjectID

	if _, err := b.store.Create(in); err != nil {
		b.log.Warn("notification create failed", logx.String("task", te.TaskID), logx.String("type", in.Type), logx.Err(err))
	}
}
