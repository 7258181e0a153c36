// Package remote defines the port for the remote tracker's REST API.
package remote

import (
	"context"

	"github.com/forgesync/ticketbridge/internal/domain/link"
)

// Item is a work item (issue or user story) on the remote tracker.
type Item struct {
	// ID is the remote-internal primary key, needed for history, comment
	// and status calls.
	ID int64 `json:"id"`
	// Ref is the per-project sequence number, the half of the ticket
	// mapping key owned by the remote side.
	Ref         int64  `json:"ref"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	StatusID    int64  `json:"status"`
	Version     int    `json:"version"`
}

// NewItem holds the fields for creating a remote item. Priority and status
// apply to issues only; user stories carry subject and description alone.
type NewItem struct {
	Subject     string
	Description string
	Priority    string
	StatusName  string
}

// Status is one entry of a remote workflow's ordered status list.
type Status struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Order int    `json:"order"`
}

// HistoryEntry is one entry of a remote item's history, as used for
// comment deduplication.
type HistoryEntry struct {
	Comment           string `json:"comment"`
	DeleteCommentDate any    `json:"delete_comment_date"`
}

// Project is a remote project resolved by slug.
type Project struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Webhook is a webhook registration on a remote project.
type Webhook struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Key  string `json:"key"`
}

// Client is the remote tracker API consumed by the sync engine. One client
// is bound to one remote instance and auth token (one ProjectLink).
type Client interface {
	// GetProjectBySlug resolves a remote project by its slug.
	GetProjectBySlug(ctx context.Context, slug string) (*Project, error)

	// CreateItem creates an item of the given kind and returns it with the
	// remote-assigned ref.
	CreateItem(ctx context.Context, projectID int64, kind link.TicketKind, item NewItem) (*Item, error)

	// GetItemByRef fetches an item by its per-project ref.
	GetItemByRef(ctx context.Context, projectID int64, kind link.TicketKind, ref int64) (*Item, error)

	// History returns the item's history entries, newest last.
	History(ctx context.Context, kind link.TicketKind, itemID int64) ([]HistoryEntry, error)

	// AddComment appends a comment to an item.
	AddComment(ctx context.Context, kind link.TicketKind, item *Item, body string) error

	// DeleteItem removes an item.
	DeleteItem(ctx context.Context, kind link.TicketKind, itemID int64) error

	// ListStatuses returns the ordered workflow status list for the kind.
	ListStatuses(ctx context.Context, projectID int64, kind link.TicketKind) ([]Status, error)

	// SetStatus moves an item to the given workflow status.
	SetStatus(ctx context.Context, kind link.TicketKind, item *Item, statusID int64) error

	// ListWebhooks returns the webhooks registered on a remote project.
	ListWebhooks(ctx context.Context, projectID int64) ([]Webhook, error)

	// CreateWebhook registers a webhook on a remote project.
	CreateWebhook(ctx context.Context, projectID int64, name, url, key string) error

	// UpdateWebhook updates an existing webhook's URL and key.
	UpdateWebhook(ctx context.Context, hookID int64, url, key string) error
}

// Factory builds a Client for the given remote instance. Sync tasks resolve
// the base URL and token from the ProjectLink at execution time.
type Factory func(baseURL, authToken string) Client
