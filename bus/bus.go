// Package bus carries outbound protocol messages from session workers to the
// stream writers that deliver them. Messages are keyed by session ID so one
// session never observes another's traffic.
package bus

import (
	"context"
	"errors"

	"github.com/petal-labs/petalmcp/mcp"
)

var (
	// ErrClosed is returned when publishing to a closed bus or subscription.
	ErrClosed = errors.New("bus: closed")
	// ErrNoSubscribers is returned when a session has nobody listening.
	ErrNoSubscribers = errors.New("bus: no subscribers for session")
)

// Envelope is one outbound message addressed to a session.
type Envelope struct {
	SessionID string
	Message   mcp.Message
}

// MessageBus distributes envelopes to the subscribers of a session.
type MessageBus interface {
	// Publish delivers env to every subscriber of env.SessionID, blocking
	// until each has accepted it or ctx is done.
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers a subscriber for one session.
	// Returns a Subscription that must be closed when done.
	Subscribe(sessionID string) Subscription

	// Sessions returns the number of sessions with at least one subscriber.
	Sessions() int

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives envelopes for one session.
type Subscription interface {
	// Messages returns the delivery channel. It is never closed; select on
	// Done to observe shutdown.
	Messages() <-chan Envelope

	// Done is closed once the subscription or its bus is closed.
	Done() <-chan struct{}

	// Close unsubscribes and releases resources.
	Close() error
}
