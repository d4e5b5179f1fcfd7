package events

import (
	"context"
	"sync"

	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

const firehoseKey = "*"

// Bus fans events out to per-entity subscribers. Publish never blocks: each
// subscriber owns a bounded buffer and a slow consumer loses its oldest
// events, not the publisher's time.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscriber]struct{}
	bufSize int
	closed  bool
}

// NewBus creates a bus whose subscribers buffer up to bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Bus{
		subs:    make(map[string]map[*Subscriber]struct{}),
		bufSize: bufferSize,
	}
}

func entityKey(kind models.EntityKind, id string) string {
	return string(kind) + "/" + id
}

// Subscribe attaches a subscriber to one entity's stream.
func (b *Bus) Subscribe(kind models.EntityKind, id string) *Subscriber {
	return b.attach(entityKey(kind, id))
}

// SubscribeAll attaches a firehose subscriber that receives every event.
func (b *Bus) SubscribeAll() *Subscriber {
	return b.attach(firehoseKey)
}

func (b *Bus) attach(key string) *Subscriber {
	sub := &Subscriber{
		bus:    b,
		key:    key,
		buf:    make([]models.Event, 0, b.bufSize),
		cap:    b.bufSize,
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closeLocked()
		return sub
	}
	set, ok := b.subs[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		b.subs[key] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (b *Bus) detach(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.key)
		}
	}
}

// Publish delivers ev to the entity's subscribers and the firehose. It
// returns without waiting on any consumer.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs[entityKey(ev.EntityKind, ev.EntityID)] {
		sub.offer(ev)
	}
	for sub := range b.subs[firehoseKey] {
		sub.offer(ev)
	}
}

// Close detaches and closes every subscriber. Further publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.closeLocked()
		}
	}
	b.subs = make(map[string]map[*Subscriber]struct{})
}

// Subscriber is one consumer's view of a stream. Events arrive in publish
// order; when the buffer overflows the oldest events are dropped and Dropped
// counts them.
type Subscriber struct {
	bus *Bus
	key string

	mu      sync.Mutex
	buf     []models.Event
	cap     int
	dropped int
	closed  bool
	notify  chan struct{}
}

func (s *Subscriber) offer(ev models.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.buf) == s.cap {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:len(s.buf)-1]
		s.dropped++
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the subscriber is closed, or ctx
// is done. ok is false once no further events will arrive.
func (s *Subscriber) Next(ctx context.Context) (models.Event, bool) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			ev := s.buf[0]
			copy(s.buf, s.buf[1:])
			s.buf = s.buf[:len(s.buf)-1]
			s.mu.Unlock()
			return ev, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return models.Event{}, false
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return models.Event{}, false
		}
	}
}

// Dropped returns how many events this subscriber has lost to overflow.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscriber from the bus. Buffered events remain
// readable until drained.
func (s *Subscriber) Close() {
	s.bus.detach(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeNotifyLocked()
}

// closeLocked is called with the bus lock held during Bus.Close.
func (s *Subscriber) closeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeNotifyLocked()
}

func (s *Subscriber) closeNotifyLocked() {
	if s.closed {
		return
	}
	s.closed = true
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
