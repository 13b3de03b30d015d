package events

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueLen is the default bounded per-subscriber queue depth.
const DefaultQueueLen = 100

// DefaultSubscriberCap is the default global subscriber cap.
const DefaultSubscriberCap = 32

// Subscription is a live subscriber's channel plus its drop counter.
type Subscription struct {
	ch    chan Event
	drops atomic.Uint64
	em    *Emitter
}

// Channel returns the subscription's receive channel.
func (s *Subscription) Channel() <-chan Event { return s.ch }

// Drops returns the count of events dropped (overflow) for this
// subscriber so far.
func (s *Subscription) Drops() uint64 { return s.drops.Load() }

// Unsubscribe removes the subscription from the emitter.
func (s *Subscription) Unsubscribe() { s.em.unsubscribe(s) }

// Emitter is the bounded multi-subscriber event queue. The subscriber
// list is guarded by a mutex that is never held during event delivery: a
// locked subscriber-collection phase followed by a lock-free delivery
// phase.
type Emitter struct {
	queueLen      int
	subscriberCap int

	nextID atomic.Uint64

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Option configures an Emitter at construction.
type Option func(*Emitter)

func WithQueueLen(n int) Option      { return func(e *Emitter) { e.queueLen = n } }
func WithSubscriberCap(n int) Option { return func(e *Emitter) { e.subscriberCap = n } }

func New(opts ...Option) *Emitter {
	e := &Emitter{queueLen: DefaultQueueLen, subscriberCap: DefaultSubscriberCap}
	for _, o := range opts {
		o(e)
	}
	e.subs = make(map[*Subscription]struct{})
	return e
}

// Subscribe registers a new subscriber, or returns (nil, false) if the
// global subscriber cap is already reached.
func (e *Emitter) Subscribe() (*Subscription, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.subs) >= e.subscriberCap {
		return nil, false
	}
	sub := &Subscription{ch: make(chan Event, e.queueLen), em: e}
	e.subs[sub] = struct{}{}
	return sub, true
}

func (e *Emitter) unsubscribe(s *Subscription) {
	e.mu.Lock()
	delete(e.subs, s)
	e.mu.Unlock()
}

// snapshot returns the current subscriber list without holding the lock
// during delivery.
func (e *Emitter) snapshot() []*Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Subscription, 0, len(e.subs))
	for s := range e.subs {
		out = append(out, s)
	}
	return out
}

func (e *Emitter) publish(kind Kind, set func(*Event)) uint64 {
	id := e.nextID.Add(1)
	ev := Event{ID: id, Kind: kind}
	set(&ev)
	for _, sub := range e.snapshot() {
		deliver(sub, ev)
	}
	return id
}

// deliver attempts a non-blocking send; on a full queue it drops the
// oldest queued event and retries once, counting the drop: a slow
// subscriber loses events, it never blocks polling.
func deliver(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}
	select {
	case <-sub.ch:
		sub.drops.Add(1)
	default:
	}
	select {
	case sub.ch <- ev:
	default:
		sub.drops.Add(1)
	}
}

func (e *Emitter) PublishSignalUpdate(ev SignalUpdate) uint64 {
	return e.publish(KindSignalUpdate, func(out *Event) { out.SignalUpdate = &ev })
}

func (e *Emitter) PublishQualityChange(ev QualityChange) uint64 {
	return e.publish(KindQualityChange, func(out *Event) { out.QualityChange = &ev })
}

func (e *Emitter) PublishModeChange(ev ModeChange) uint64 {
	return e.publish(KindModeChange, func(out *Event) { out.ModeChange = &ev })
}

func (e *Emitter) PublishParameterChange(ev ParameterChange) uint64 {
	return e.publish(KindParameterChange, func(out *Event) { out.ParameterChange = &ev })
}

func (e *Emitter) PublishBTError(ev BTError) uint64 {
	return e.publish(KindBTError, func(out *Event) { out.BTError = &ev })
}
