// Package bus implements the in-process incident bus: synchronous
// publish/subscribe with a bounded replay ring and independent per-
// subscriber buffers so a slow sink never blocks the publisher or its
// peers.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/metrics"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// Bus fans normalized events out to live subscribers and keeps a bounded
// ring of recent events for hydration and diagnostics.
type Bus struct {
	mu           sync.Mutex
	ring         []models.BusEvent
	ringCapacity int
	hydrateCount int
	subBuf       int
	subs         map[string]*subscriber
	logger       *slog.Logger
}

type subscriber struct {
	id string
	ch chan models.BusEvent
}

// Subscription is a live consumer handle. Events arrive on C until Close.
type Subscription struct {
	ID  string
	C   <-chan models.BusEvent
	bus *Bus
}

// New creates a bus from configuration.
func New(cfg config.BusConfig) *Bus {
	return &Bus{
		ringCapacity: cfg.RingCapacity,
		hydrateCount: cfg.HydrateCount,
		subBuf:       cfg.SubscriberBuffer,
		subs:         make(map[string]*subscriber),
		logger:       slog.With("component", "bus"),
	}
}

// Publish appends the event to the ring (drop-oldest when full) and
// delivers it to every current subscriber. Publish never blocks: a
// subscriber whose buffer is full misses this event.
func (b *Bus) Publish(evt models.BusEvent) {
	b.mu.Lock()
	b.ring = append(b.ring, evt)
	if len(b.ring) > b.ringCapacity {
		b.ring = b.ring[len(b.ring)-b.ringCapacity:]
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn("Subscriber buffer full, dropping event",
				"subscriber", sub.id, "event_type", evt.Type, "site", evt.SiteID)
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a live consumer. Up to the last hydrateCount buffered
// events are delivered immediately, then new events stream until Close.
func (b *Bus) Subscribe() *Subscription {
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan models.BusEvent, b.subBuf),
	}

	b.mu.Lock()
	start := len(b.ring) - b.hydrateCount
	if start < 0 {
		start = 0
	}
	for _, evt := range b.ring[start:] {
		select {
		case sub.ch <- evt:
		default:
		}
	}
	b.subs[sub.id] = sub
	metrics.BusSubscribers.Set(float64(len(b.subs)))
	b.mu.Unlock()

	return &Subscription{ID: sub.id, C: sub.ch, bus: b}
}

// Close detaches the subscription. The event channel is closed so range
// loops over it terminate.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subs[s.ID]; ok {
		delete(s.bus.subs, s.ID)
		close(sub.ch)
		metrics.BusSubscribers.Set(float64(len(s.bus.subs)))
	}
	s.bus.mu.Unlock()
}

// RecentEvents returns a snapshot copy of the replay ring.
func (b *Bus) RecentEvents() []models.BusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.BusEvent, len(b.ring))
	copy(out, b.ring)
	return out
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
