package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Bus is an in-process fan-out. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

type subscriber struct {
	ch     chan *Event
	filter func(*Event) bool
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	return b.SubscribeFunc(bufSize, nil)
}

// SubscribeFunc subscribes to the events filter accepts. Rejected events
// never take buffer space. A nil filter accepts everything.
func (b *Bus) SubscribeFunc(bufSize int, filter func(*Event) bool) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = &subscriber{ch: ch, filter: filter}
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType Type, taskID string, payload any, recipients []string) *Event {
	event := &Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		TaskID:     taskID,
		Payload:    payload,
		Recipients: recipients,
		CreatedAt:  time.Now(),
	}
	b.Publish(event)
	return event
}
