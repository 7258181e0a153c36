// Package tracker defines the port through which the engine drives the
// local ticket tracker. The tracker itself (issues, comments, tags, its
// storage) is an external collaborator; the engine only replays events
// against this interface.
package tracker

import (
	"context"

	"github.com/forgesync/ticketbridge/internal/domain/ticket"
)

// Tracker is the local ticket tracker API consumed by the sync engine.
type Tracker interface {
	// NextTicketID allocates the next ticket id for the project. The id is
	// reserved for the caller; creating the ticket with it must succeed
	// unless the project disappeared.
	NextTicketID(ctx context.Context, projectID int64) (int64, error)

	// CreateTicket creates a ticket with a pre-allocated id.
	CreateTicket(ctx context.Context, projectID int64, t ticket.NewTicket) error

	// GetTicket returns a ticket with its comments and tags.
	GetTicket(ctx context.Context, projectID, ticketID int64) (*ticket.Ticket, error)

	// AddComment appends a comment to a ticket.
	AddComment(ctx context.Context, projectID, ticketID int64, body, user string) error

	// ListProjectTags returns the project's colored tags.
	ListProjectTags(ctx context.Context, projectID int64) ([]ticket.Tag, error)

	// CreateProjectTag adds a colored tag to the project.
	CreateProjectTag(ctx context.Context, projectID int64, name, color string) error

	// SetTicketTags replaces the ticket's tag set in one transaction and
	// returns the tracker's human-readable change messages.
	SetTicketTags(ctx context.Context, projectID, ticketID int64, tags []string, user string) ([]string, error)

	// NotifyMetadataChange emits an aggregated change notification on the
	// ticket for the given messages.
	NotifyMetadataChange(ctx context.Context, projectID, ticketID int64, messages []string, user string) error

	// DeleteTicket removes a ticket.
	DeleteTicket(ctx context.Context, projectID, ticketID int64, user string) error
}
