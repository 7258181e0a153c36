// Package database defines the link store port (interface).
package database

import (
	"context"

	"github.com/forgesync/ticketbridge/internal/domain/link"
)

// Store is the port interface for the link store, the only shared mutable
// state between the two sync pipelines. Implementations must map uniqueness
// violations on ticket mappings to domain.ErrConflict so a second concurrent
// attempt to synchronize the same ticket is recognizable as "already done".
type Store interface {
	// Project links
	GetLink(ctx context.Context, localProjectID int64) (*link.ProjectLink, error)
	GetLinkByRemoteProject(ctx context.Context, remoteProjectID int64) (*link.ProjectLink, error)
	ListLinks(ctx context.Context) ([]link.ProjectLink, error)
	UpsertLink(ctx context.Context, req link.UpsertRequest) (*link.ProjectLink, error)
	DeleteLink(ctx context.Context, localProjectID int64) error

	// Ticket mappings
	FindMappingByLocal(ctx context.Context, remoteProjectID, localTicketID int64, kind link.TicketKind) (*link.TicketMapping, error)
	FindMappingByRemote(ctx context.Context, remoteProjectID, remoteRef int64, kind link.TicketKind) (*link.TicketMapping, error)
	ListMappings(ctx context.Context, remoteProjectID int64) ([]link.TicketMapping, error)
	CreateMapping(ctx context.Context, m *link.TicketMapping) error
	DeleteMapping(ctx context.Context, id int64) error
}
