package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("events: bus is closed")
	ErrSubscriptionClosed = errors.New("events: subscription is closed")
)

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ev Event) int
}

// Stats tracks delivery for one subscription.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Pending   int
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueLimit bounds every subscription queue to n events. When a queue
// is full the oldest pending event is dropped and counted. Zero keeps the
// queues unbounded.
func WithQueueLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.limit = n
		}
	}
}

// Bus fans every published event out to all current subscriptions.
//
// Each subscription owns an independent queue, so Publish never blocks on a
// slow consumer and one consumer cannot stall another. Subscribe and Publish
// serialize on the bus lock: a Subscribe that returned before Publish was
// called always receives that event, a subscription never sees an event
// published before it existed, and no event is delivered twice. Because
// publishes are serialized too, every subscriber observes the same relative
// order.
type Bus struct {
	mu        sync.Mutex
	subs      map[uint64]*Subscription
	nextID    uint64
	limit     int
	closed    bool
	published atomic.Uint64
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{subs: make(map[uint64]*Subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscription. It receives only events published
// after Subscribe returns.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	b.nextID++
	s := &Subscription{
		bus:   b,
		id:    b.nextID,
		limit: b.limit,
		ready: make(chan struct{}, 1),
	}
	b.subs[s.id] = s
	return s, nil
}

// Publish enqueues ev on every live subscription and returns how many
// accepted it. Publishing with no subscribers, or after Close, is not an
// error.
func (b *Bus) Publish(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	b.published.Add(1)

	n := 0
	for _, s := range b.subs {
		if s.enqueue(ev) {
			n++
		}
	}
	return n
}

// Published returns the number of events accepted by Publish.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the bus down and closes every subscription. Events already
// queued remain receivable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.shut()
	}
	b.subs = nil
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs != nil {
		delete(b.subs, id)
	}
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	bus   *Bus
	id    uint64
	limit int

	mu     sync.Mutex
	queue  []Event
	closed bool
	stats  Stats
	ready  chan struct{} // signalled when the queue becomes non-empty or closes
}

func (s *Subscription) enqueue(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.limit > 0 && len(s.queue) >= s.limit {
		s.shift()
		s.stats.Dropped++
	}
	s.queue = append(s.queue, ev)
	s.stats.Delivered++
	s.signal()
	return true
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// shift removes and returns the head of the queue, clearing its slot so the
// backing array does not pin the event. The queue must not be empty.
func (s *Subscription) shift() Event {
	ev := s.queue[0]
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	return ev
}

// TryReceive returns the oldest pending event without blocking.
func (s *Subscription) TryReceive() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pop()
}

func (s *Subscription) pop() (Event, bool) {
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.shift()
	if len(s.queue) > 0 || s.closed {
		s.signal()
	}
	return ev, true
}

// Receive blocks until an event is available, the subscription is closed
// and drained, or ctx is done.
func (s *Subscription) Receive(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		ev, ok := s.pop()
		closed := s.closed
		s.mu.Unlock()

		if ok {
			return ev, nil
		}
		if closed {
			return Event{}, ErrSubscriptionClosed
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Stats returns a snapshot of the delivery counters.
func (s *Subscription) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Pending = len(s.queue)
	return st
}

// Close unsubscribes. Pending events can still be drained with Receive or
// TryReceive.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
	s.shut()
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.signal()
}
