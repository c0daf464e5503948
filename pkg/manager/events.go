package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names a lifecycle event
type EventKind string

const (
	EventStart   EventKind = "start"
	EventSuccess EventKind = "success"
	EventFailed  EventKind = "failed"
)

// Event is published on every lifecycle transition. Record is a snapshot
// taken when the transition happened.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Kind       EventKind   `json:"kind"`
	OccurredAt time.Time   `json:"occurred_at"`
	Record     Record      `json:"record"`
	Data       interface{} `json:"data,omitempty"`
}

// Handler receives lifecycle events
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts an ordinary function to Handler
type HandlerFunc func(Event)

// HandleEvent calls f(e)
func (f HandlerFunc) HandleEvent(e Event) { f(e) }

type subscription struct {
	id      int
	kind    EventKind
	all     bool
	handler Handler
}

// bus delivers events synchronously, in subscription order
type bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

func (b *bus) subscribe(kind EventKind, all bool, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, all: all, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *bus) publish(e Event) {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.all || s.kind == e.Kind {
			targets = append(targets, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h.HandleEvent(e)
	}
}

func newEvent(kind EventKind, rec Record, data interface{}, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: at,
		Record:     rec,
		Data:       data,
	}
}
