package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"automata/internal/clock"
)

// Publisher accepts events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(e Event)
}

// Handler receives published events. Handlers run on the publisher's
// goroutine and must hand off any slow work.
type Handler func(e Event)

// Subscription represents an active bus subscription.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  int
	bus *Bus
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

type subscriberEntry struct {
	id      int
	handler Handler
}

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	logger *zap.Logger
	clock  clock.Clock

	subsMu      sync.RWMutex
	subscribers []subscriberEntry
	nextID      int
}

// NewBus creates an event bus. A nil clock uses the real clock.
func NewBus(logger *zap.Logger, c clock.Clock) *Bus {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Bus{
		logger: logger.Named("events"),
		clock:  c,
	}
}

// Subscribe registers handler for every subsequent event.
func (b *Bus) Subscribe(handler Handler) Subscription {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	b.nextID++
	b.subscribers = append(b.subscribers, subscriberEntry{id: b.nextID, handler: handler})
	return &subscription{id: b.nextID, bus: b}
}

func (b *Bus) unsubscribe(id int) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish stamps the event with an ID and time when missing and delivers
// it to every subscriber. A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = b.clock.Now()
	}

	b.subsMu.RLock()
	handlers := make([]Handler, len(b.subscribers))
	for i, s := range b.subscribers {
		handlers[i] = s.handler
	}
	b.subsMu.RUnlock()

	b.logger.Debug("Publishing event",
		zap.String("type", string(e.Type)),
		zap.String("name", e.Name),
		zap.Int("subscribers", len(handlers)))

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("type", string(e.Type)),
				zap.Any("panic", r))
		}
	}()
	h(e)
}
