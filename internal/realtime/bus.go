package realtime

import (
	"log/slog"
	"sync"
)

const subscriberBufferSize = 16

// Subscription receives the events of the topics it subscribed to.
type Subscription struct {
	bus    *Bus
	topics map[Topic]struct{}
	ch     chan Event
}

// C returns the delivery channel. It is closed on unsubscribe.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

func (s *Subscription) wants(t Topic) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[t]
	return ok
}

// Bus fans realtime events out to in-process subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers interest in the given topics, or in every topic when none are given.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	s := &Subscription{
		bus:    b,
		topics: make(map[Topic]struct{}, len(topics)),
		ch:     make(chan Event, subscriberBufferSize),
	}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// Publish delivers ev to every interested subscriber and returns how many
// received it. A subscriber with a full buffer already has a pending
// invalidation queued, so the event is dropped for it rather than blocking.
func (b *Bus) Publish(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for s := range b.subs {
		if !s.wants(ev.Topic) {
			continue
		}
		select {
		case s.ch <- ev:
			delivered++
		default:
			b.logger.Debug("subscriber buffer full, event coalesced", "topic", ev.Topic)
		}
	}
	return delivered
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
