package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber queue length used when none is given.
const DefaultBufferSize = 64

// Bus fans events out to subscribers without blocking the emitter.
// A subscriber whose queue is full misses the event; its drop counter grows.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	bufferSize  int
	closed      bool

	now func() time.Time
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  bufferSize,
		now:         time.Now,
	}
}

// Subscription receives events from a Bus until it is closed.
type Subscription struct {
	bus     *Bus
	ch      chan Event
	kinds   []Kind
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events were missed because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

// Subscribe registers a subscriber that receives events of the given kinds
// (all kinds when none are given). The subscription ends when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, kinds ...Kind) *Subscription {
	sub := &Subscription{
		bus:   b,
		ch:    make(chan Event, b.bufferSize),
		kinds: kinds,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub
}

// Emit stamps the event time if unset and offers it to every subscriber.
func (b *Bus) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subscribers {
		if !ev.Matches(sub.kinds) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close ends every subscription. Further emits are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	sub.once.Do(func() { close(sub.ch) })
}

var _ Emitter = (*Bus)(nil)
