// Package bus is an in-process publish/subscribe hub.
//
// The last event of every topic is retained: a new subscriber to a topic
// first receives that event, then every later one. Publishing never
// blocks: each subscription buffers a bounded number of events and drops
// the oldest pending one when full.
package bus

import (
	"context"
	"sort"
	"sync"

	"github.com/oneconcern/gibsync/pkg/errors"
	"go.uber.org/zap"
)

// DefaultBufferSize of subscriptions
const DefaultBufferSize = 64

// ErrClosed is returned when publishing on a closed bus
var ErrClosed = errors.New("bus closed")

// Event published on a topic
type Event struct {
	Topic   string
	Payload interface{}
}

// Option for the bus
type Option func(*Bus)

// BufferSize of every subscription
func BufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.size = size
		}
	}
}

// Logger for the bus
func Logger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bus dispatches events to subscriptions
type Bus struct {
	mu     sync.Mutex
	last   map[string]Event
	subs   map[*Subscription]struct{}
	closed bool
	size   int
	logger *zap.Logger
}

// New bus
func New(opts ...Option) *Bus {
	b := &Bus{
		last:   make(map[string]Event),
		subs:   make(map[*Subscription]struct{}),
		size:   DefaultBufferSize,
		logger: zap.NewNop(),
	}
	for _, apply := range opts {
		apply(b)
	}
	return b
}

// Publish an event to the subscribers of its topic and retain it for later subscribers
func (b *Bus) Publish(topic string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	ev := Event{Topic: topic, Payload: payload}
	b.last[topic] = ev
	for sub := range b.subs {
		if sub.all || sub.topic == topic {
			sub.deliver(ev)
		}
	}
	return nil
}

// Last event published on a topic
func (b *Bus) Last(topic string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.last[topic]
	return ev, ok
}

// Subscribe to a topic. The last event of this topic, if any, is delivered first.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.subscription(topic, false)
	if ev, ok := b.last[topic]; ok {
		sub.deliver(ev)
	}
	return sub
}

// SubscribeAll topics. The last event of every topic is delivered first, by topic order.
func (b *Bus) SubscribeAll() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.subscription("", true)
	topics := make([]string, 0, len(b.last))
	for t := range b.last {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		sub.deliver(b.last[t])
	}
	return sub
}

func (b *Bus) subscription(topic string, all bool) *Subscription {
	sub := &Subscription{
		bus:    b,
		topic:  topic,
		all:    all,
		ch:     make(chan Event, b.size),
		logger: b.logger,
	}
	if b.closed {
		sub.done = true
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close the bus and every subscription. Events already buffered by a
// subscription are still delivered before its channel reports closure.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.close()
	}
	b.subs = nil
}

// Subscription receives the events of a topic, or of all topics
type Subscription struct {
	bus    *Bus
	topic  string
	all    bool
	logger *zap.Logger

	mu      sync.Mutex
	ch      chan Event
	done    bool
	dropped int
}

// C is the channel of events. It is closed when the subscription is cancelled.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped counts the events dropped because the subscriber lagged behind
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Cancel the subscription
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s)
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.ch <- ev:
		return
	default:
	}
	// full: drop the oldest pending event
	select {
	case old := <-s.ch:
		s.dropped++
		s.logger.Debug("subscriber lagging, event dropped", zap.String("topic", old.Topic))
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// Listen consumes the events of a subscription until the context is done or the subscription is cancelled.
//
// The returned channel is closed when listening stops. The subscription is cancelled on return.
func Listen(ctx context.Context, sub *Subscription, fn func(Event)) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}()
	return stopped
}
