package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/xiaot623/docpilot/internal/domain"
)

// Bus fans session events out to subscribers. Each subscriber owns an
// unbounded mailbox, so a slow reader never loses events and never blocks
// the publisher. Events reach every subscriber in publication order.
type Bus struct {
	mu          sync.Mutex
	seq         int64
	subscribers map[string]*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]*Subscription)}
}

// Subscription is a live registration on a Bus.
type Subscription struct {
	ID string

	bus  *Bus
	out  chan domain.Event
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []domain.Event
	closed bool
}

// Subscribe registers a new subscriber. initial events are delivered first,
// then every event published afterwards, until Close is called.
func (b *Bus) Subscribe(initial ...domain.Event) *Subscription {
	sub := &Subscription{
		ID:   uuid.New().String(),
		bus:  b,
		out:  make(chan domain.Event),
		done: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	sub.queue = append(sub.queue, initial...)

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish stamps ev with the next sequence number, hands it to record when
// record is non-nil, and queues it for every live subscriber. record runs
// before any subscriber can see the event.
func (b *Bus) Publish(ev domain.Event, record func(domain.Event)) domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev.Seq = b.seq
	if record != nil {
		record(ev)
	}
	for _, sub := range b.subscribers {
		sub.push(ev)
	}
	return ev
}

// Count returns the number of live subscribers.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
}

// Events delivers queued events. The channel is closed after Close.
func (s *Subscription) Events() <-chan domain.Event {
	return s.out
}

// Close unsubscribes. Events still queued are discarded. Calling Close more
// than once is harmless.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s.ID)
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		s.cond.Broadcast()
		close(s.done)
	})
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// push queues ev; after Close it does nothing.
func (s *Subscription) push(ev domain.Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *Subscription) next() (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return domain.Event{}, false
	}
	ev := s.queue[0]
	s.queue[0] = domain.Event{}
	s.queue = s.queue[1:]
	return ev, true
}

// pump moves events from the mailbox to out, one at a time.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		ev, ok := s.next()
		if !ok {
			return
		}
		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
