// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
// Delivery is at-least-once with no ordering guarantee between subjects or
// between messages published by independent units of work.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for the local tracker's outbound signal topics. The local forge
// publishes these; the outbound pipeline consumes them.
const (
	SubjectTicketCreated = "forge.ticket.created"
	SubjectTicketComment = "forge.ticket.comment.added"
	SubjectTicketDropped = "forge.ticket.dropped"
	SubjectTicketTagged  = "forge.ticket.tag.added"
)

// SubjectTaskPrefix is the subject prefix for units of work enqueued by the
// task dispatcher. The full subject is SubjectTaskPrefix + "." + task name.
const SubjectTaskPrefix = "sync"
