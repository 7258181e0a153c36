// Package ticket defines the local tracker's ticket shapes as seen by the
// sync engine, including the payload carried on outbound signal topics.
package ticket

import "time"

// Ticket is a local ticket as exposed by the tracker API.
type Ticket struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Status   string    `json:"status"`
	Priority string    `json:"priority"`
	Tags     []string  `json:"tags"`
	Comments []Comment `json:"comments"`
}

// Comment is a single comment on a local ticket.
type Comment struct {
	ID      int64     `json:"id"`
	User    string    `json:"user"`
	Body    string    `json:"comment"`
	Created time.Time `json:"date_created"`
}

// Tag is a colored project-level tag.
type Tag struct {
	Name  string `json:"tag"`
	Color string `json:"tag_color"`
}

// ProjectRef identifies the local project an event belongs to.
type ProjectRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	User      string `json:"user"`
}

// Event is the payload published on the local signal topics
// (ticket.created, ticket.comment.added, ticket.dropped, ticket.tag.added).
type Event struct {
	Project ProjectRef `json:"project"`
	Ticket  Ticket     `json:"ticket"`
	Agent   string     `json:"agent"`
}

// LatestComment returns the newest comment on the event's ticket, or nil
// when the ticket has none. Comments arrive ordered oldest first.
func (e *Event) LatestComment() *Comment {
	if len(e.Ticket.Comments) == 0 {
		return nil
	}
	return &e.Ticket.Comments[len(e.Ticket.Comments)-1]
}

// NewTicket holds the fields needed to create a local ticket during inbound
// replay. The ID is pre-allocated by the engine so the mapping and the
// ticket agree on identity.
type NewTicket struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	User    string   `json:"user"`
}
