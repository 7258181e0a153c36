// Package broadcast defines the port for broadcasting real-time sync events
// to connected clients.
package broadcast

import "context"

// Broadcaster sends a typed event to all connected clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Event types broadcast by the sync pipelines.
const (
	EventInboundCreated  = "sync.inbound.created"
	EventInboundComment  = "sync.inbound.comment"
	EventInboundStatus   = "sync.inbound.status"
	EventInboundDeleted  = "sync.inbound.deleted"
	EventOutboundCreated = "sync.outbound.created"
	EventOutboundComment = "sync.outbound.comment"
	EventOutboundStatus  = "sync.outbound.status"
	EventOutboundDeleted = "sync.outbound.deleted"
)
