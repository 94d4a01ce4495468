package bus

import (
	"context"
	"fmt"
	"sync"
)

// MemBusConfig configures an in-memory message bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 64).
	SubscriberBufferSize int
}

// MemBus is an in-memory message bus implementation.
type MemBus struct {
	mu      sync.RWMutex
	subs    map[string][]*memSub // sessionID -> subscribers
	bufSize int
	closed  bool
}

// NewMemBus creates a new in-memory message bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	return &MemBus{
		subs:    make(map[string][]*memSub),
		bufSize: bufSize,
	}
}

// Publish delivers env to the session's subscribers. Unlike a telemetry bus
// it never drops: a full subscriber buffer blocks until the reader catches
// up, the subscription closes, or ctx is done.
func (b *MemBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := append([]*memSub(nil), b.subs[env.SessionID]...)
	b.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w %q", ErrNoSubscribers, env.SessionID)
	}
	for _, sub := range targets {
		if err := sub.send(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a subscriber for a session.
func (b *MemBus) Subscribe(sessionID string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b, sessionID, b.bufSize)
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	return sub
}

// Sessions returns the number of sessions with live subscribers.
func (b *MemBus) Sessions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down the bus and all active subscriptions.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	b.subs = make(map[string][]*memSub)
	return nil
}

func (b *MemBus) remove(target *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.sessionID]
	for i, sub := range subs {
		if sub == target {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, target.sessionID)
		return
	}
	b.subs[target.sessionID] = subs
}

// memSub is an in-memory subscription.
type memSub struct {
	bus       *MemBus
	sessionID string
	ch        chan Envelope
	done      chan struct{}
	once      sync.Once
}

func newMemSub(b *MemBus, sessionID string, bufSize int) *memSub {
	return &memSub{
		bus:       b,
		sessionID: sessionID,
		ch:        make(chan Envelope, bufSize),
		done:      make(chan struct{}),
	}
}

// Messages returns the delivery channel for this subscription.
func (s *memSub) Messages() <-chan Envelope {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *memSub) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes and releases resources.
func (s *memSub) Close() error {
	s.close()
	s.bus.remove(s)
	return nil
}

// close signals shutdown, guarded against double-close. The delivery channel
// stays open so a concurrent send can never panic.
func (s *memSub) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *memSub) send(ctx context.Context, env Envelope) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ch <- env:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Compile-time interface checks.
var _ MessageBus = (*MemBus)(nil)
var _ Subscription = (*memSub)(nil)
