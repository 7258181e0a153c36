// Package webhook defines the inbound event shapes delivered by the remote
// tracker's webhook.
package webhook

import "encoding/json"

// Actions carried by remote webhook deliveries.
const (
	ActionCreate = "create"
	ActionChange = "change"
	ActionDelete = "delete"
)

// Event is the JSON body posted by the remote tracker.
type Event struct {
	Type   string  `json:"type"`
	Action string  `json:"action"`
	Data   Data    `json:"data"`
	Change *Change `json:"change,omitempty"`
}

// Data describes the remote item the event is about.
type Data struct {
	Project     Project  `json:"project"`
	Ref         int64    `json:"ref"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Tags        []string `json:"tags"`
	AssignedTo  any      `json:"assigned_to"`
	Milestone   any      `json:"milestone"`
}

// Project identifies the remote project.
type Project struct {
	ID int64 `json:"id"`
}

// Status is a remote workflow status with its display color.
type Status struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Change describes what a "change" action modified.
type Change struct {
	Comment           string          `json:"comment"`
	EditCommentDate   any             `json:"edit_comment_date"`
	DeleteCommentDate any             `json:"delete_comment_date"`
	Diff              json.RawMessage `json:"diff,omitempty"`
}

// StatusDiff is the diff entry present when the remote status changed.
type StatusDiff struct {
	Status *FromTo `json:"status"`
}

// FromTo carries the old and new status names of a status change.
type FromTo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StatusDiffOf decodes the change diff and returns the status transition,
// or nil when the change did not touch the status field.
func (c *Change) StatusDiffOf() *FromTo {
	if c == nil || len(c.Diff) == 0 {
		return nil
	}
	var d StatusDiff
	if err := json.Unmarshal(c.Diff, &d); err != nil {
		return nil
	}
	return d.Status
}
