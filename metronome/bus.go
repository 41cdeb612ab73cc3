package metronome

import (
	"sync"
	"sync/atomic"
)

// DefaultSubscriptionBuffer is the per-subscriber queue depth used by
// Engine.Subscribe when the caller passes 0.
const DefaultSubscriptionBuffer = 64

// Bus fans events out to subscribers without ever blocking the
// publisher. The subscriber list is copy-on-write behind an atomic
// pointer: Subscribe and Close swap the slice under a mutex while the
// scheduler's publish path only does an atomic load, so the time-critical
// side never contends with the control side.
type Bus struct {
	mu   sync.Mutex
	subs atomic.Pointer[[]*Subscription]
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscription is one observer's bounded event queue. When the queue is
// full the oldest unconsumed event is dropped to make room; Dropped
// counts how many were lost. The channel is never closed; consumers
// stop reading when they lose interest and call Close to detach.
type Subscription struct {
	bus     *Bus
	ch      chan Event
	dropped atomic.Uint64
}

func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	s := &Subscription{bus: b, ch: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	var next []*Subscription
	if cur := b.subs.Load(); cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, s)
	b.subs.Store(&next)
	return s
}

// C yields events in publication order, minus any overflow drops.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because this
// subscriber fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription. Events already buffered remain
// readable; no further events arrive.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	cur := s.bus.subs.Load()
	if cur == nil {
		return
	}
	var next []*Subscription
	for _, sub := range *cur {
		if sub != s {
			next = append(next, sub)
		}
	}
	s.bus.subs.Store(&next)
}

// Publish delivers ev to every current subscriber with a bounded number
// of channel operations per subscriber. A full queue sheds its oldest
// event rather than stalling the caller.
func (b *Bus) Publish(ev Event) {
	subs := b.subs.Load()
	if subs == nil {
		return
	}
	for _, s := range *subs {
		select {
		case s.ch <- ev:
			continue
		default:
		}
		// Full: shed the oldest and retry once. The receiver may have
		// drained concurrently, in which case the retry just succeeds.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}
