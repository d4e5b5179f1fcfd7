package store

import (
	"sync"

	"github.com/YohanV1/TissueLab-Scheduler/internal/events"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// outbox decouples mutation from delivery. Mutations append under the
// store's lock, which fixes the global event order; a single goroutine
// drains to the bus so no publish ever runs with the store lock held.
type outbox struct {
	bus *events.Bus

	mu      sync.Mutex
	pending []models.Event
	closed  bool
	notify  chan struct{}
	done    chan struct{}
}

func newOutbox(bus *events.Bus) *outbox {
	o := &outbox{
		bus:    bus,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go o.drain()
	return o
}

func (o *outbox) append(ev models.Event) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.pending = append(o.pending, ev)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *outbox) drain() {
	defer close(o.done)
	for {
		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		closed := o.closed
		o.mu.Unlock()

		for _, ev := range batch {
			o.bus.Publish(ev)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) > 0 {
			continue
		}
		<-o.notify
	}
}

// close flushes remaining events and stops the drain goroutine.
func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	<-o.done
}
