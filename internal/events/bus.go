package events

import "sync"

// Bus fans lifecycle events out to subscribers. Delivery to each subscriber
// preserves emission order; a subscriber that stops draining loses its oldest
// pending event rather than blocking the engine.
type Bus struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	backlog int
}

// NewBus creates a bus whose subscriber channels buffer up to backlog events.
func NewBus(backlog int) *Bus {
	if backlog <= 0 {
		backlog = 64
	}
	return &Bus{
		subs:    make(map[chan Event]struct{}),
		backlog: backlog,
	}
}

// Subscribe registers a new subscriber. The caller must invoke the returned
// cancel function to avoid leaks.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.backlog)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber. Sends and channel closes share
// the bus mutex, so a cancelled subscriber can never be written to.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Full buffer: shed the oldest event so the relative order of
			// everything still delivered is intact.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
