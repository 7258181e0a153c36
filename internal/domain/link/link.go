// Package link defines the persisted linkage between a local project and a
// remote project, plus the per-ticket identity mapping.
package link

import "time"

// ProjectKind is the workflow style of the remote project.
type ProjectKind string

const (
	KindKanban ProjectKind = "kanban"
	KindScrum  ProjectKind = "scrum"
)

// TicketKind is the remote item type a local ticket maps to.
type TicketKind string

const (
	TicketIssue     TicketKind = "issue"
	TicketUserStory TicketKind = "userstory"
)

// ValidTicketKind reports whether k is one of the known ticket kinds.
func ValidTicketKind(k TicketKind) bool {
	return k == TicketIssue || k == TicketUserStory
}

// ItemKindFor returns the remote item kind used when replaying a local
// ticket to a project of the given kind. Kanban boards carry user stories,
// everything else carries issues.
func ItemKindFor(pk ProjectKind) TicketKind {
	if pk == KindKanban {
		return TicketUserStory
	}
	return TicketIssue
}

// ProjectLink connects one local project to one remote project. At most one
// link exists per local project, and a remote project can be linked at most
// once across all local projects.
type ProjectLink struct {
	ID                int64       `json:"id"`
	LocalProjectID    int64       `json:"local_project_id"`
	RemoteBaseURL     string      `json:"remote_base_url"`
	RemoteAuthToken   string      `json:"remote_auth_token"`
	RemoteProjectSlug string      `json:"remote_project_slug"`
	RemoteProjectKind ProjectKind `json:"remote_project_kind"`
	RemoteProjectID   int64       `json:"remote_project_id"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// TicketMapping connects one local ticket to its remote counterpart. Its
// presence is the authoritative evidence that the ticket has been
// synchronized; its absence means "not yet synced". Rows are created once
// and never mutated, only deleted when either side deletes the ticket.
type TicketMapping struct {
	ID              int64      `json:"id"`
	RemoteProjectID int64      `json:"remote_project_id"`
	RemoteTicketRef int64      `json:"remote_ticket_ref"`
	LocalTicketID   int64      `json:"local_ticket_id"`
	TicketKind      TicketKind `json:"ticket_kind"`
	CreatedAt       time.Time  `json:"created_at"`
}

// UpsertRequest holds the fields needed to create or update a ProjectLink.
// Produced by the link settings workflow.
type UpsertRequest struct {
	LocalProjectID    int64       `json:"local_project_id"`
	RemoteBaseURL     string      `json:"remote_base_url"`
	RemoteAuthToken   string      `json:"remote_auth_token"`
	RemoteProjectSlug string      `json:"remote_project_slug"`
	RemoteProjectKind ProjectKind `json:"remote_project_kind"`
	RemoteProjectID   int64       `json:"remote_project_id"`
}
