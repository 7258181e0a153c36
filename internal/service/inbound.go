package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	obs "github.com/forgesync/ticketbridge/internal/adapter/otel"
	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/domain/ticket"
	"github.com/forgesync/ticketbridge/internal/domain/webhook"
	"github.com/forgesync/ticketbridge/internal/port/broadcast"
	"github.com/forgesync/ticketbridge/internal/port/database"
	"github.com/forgesync/ticketbridge/internal/port/tracker"
)

// Change messages the local tracker emits for plain comment activity.
// Excluded from the aggregated metadata notification.
var commentNoise = map[string]struct{}{
	"Comment added":   {},
	"Updated comment": {},
}

// Inbound replays remotely originated webhook events against the local
// tracker.
type Inbound struct {
	store    database.Store
	resolver *Resolver
	tracker  tracker.Tracker
	bc       broadcast.Broadcaster
	metrics  *obs.Metrics
	agent    string
}

// NewInbound creates the inbound pipeline. agent is the local user all
// replayed actions are attributed to.
func NewInbound(store database.Store, resolver *Resolver, tr tracker.Tracker, bc broadcast.Broadcaster, metrics *obs.Metrics, agent string) *Inbound {
	return &Inbound{
		store:    store,
		resolver: resolver,
		tracker:  tr,
		bc:       bc,
		metrics:  metrics,
		agent:    agent,
	}
}

// Register binds the inbound task handlers onto the dispatcher.
func (i *Inbound) Register(d *Dispatcher) error {
	for task, h := range map[Task]func(context.Context, *webhook.Event) error{
		TaskInboundCreate:       i.Create,
		TaskInboundAddComment:   i.AddComment,
		TaskInboundUpdateStatus: i.UpdateStatus,
		TaskInboundDelete:       i.Delete,
	} {
		handler := h
		if err := d.Register(task, webhookHandler(handler)); err != nil {
			return err
		}
	}
	return nil
}

// Create materializes a remote ticket locally. The local ticket is created
// first, the mapping row after; a duplicate mapping insert means a
// concurrent unit already synchronized the ticket, and the duplicate local
// ticket it may leave behind is reclaimed by the reconciliation sweep.
func (i *Inbound) Create(ctx context.Context, ev *webhook.Event) error {
	l, kind, err := i.linkAndKind(ctx, ev, TaskInboundCreate)
	if err != nil || l == nil {
		return err
	}

	m, err := i.resolver.FindByRemote(ctx, l.RemoteProjectID, ev.Data.Ref, kind)
	if err != nil {
		return err
	}
	if m != nil {
		i.skip(ctx, TaskInboundCreate, "already synchronized", "remote_ref", ev.Data.Ref)
		return nil
	}

	localID, err := i.tracker.NextTicketID(ctx, l.LocalProjectID)
	if err != nil {
		return fmt.Errorf("allocate local ticket id: %w", err)
	}

	tags := append([]string{ev.Data.Status.Name}, ev.Data.Tags...)
	err = i.tracker.CreateTicket(ctx, l.LocalProjectID, ticket.NewTicket{
		ID:      localID,
		Title:   ev.Data.Subject,
		Content: ev.Data.Description,
		Tags:    tags,
		User:    i.agent,
	})
	if err != nil {
		return fmt.Errorf("create local ticket: %w", err)
	}

	err = i.store.CreateMapping(ctx, &link.TicketMapping{
		RemoteProjectID: l.RemoteProjectID,
		RemoteTicketRef: ev.Data.Ref,
		LocalTicketID:   localID,
		TicketKind:      kind,
	})
	switch {
	case errors.Is(err, domain.ErrConflict):
		slog.Info("mapping already present after local create",
			"remote_ref", ev.Data.Ref, "local_ticket_id", localID)
		return nil
	case err != nil:
		slog.Error("mapping write failed after local create",
			"remote_ref", ev.Data.Ref, "local_ticket_id", localID, "error", err)
		return err
	}

	i.broadcast(ctx, broadcast.EventInboundCreated, syncEvent{
		LocalProjectID: l.LocalProjectID,
		LocalTicketID:  localID,
		RemoteRef:      ev.Data.Ref,
		Kind:           string(kind),
	})
	return nil
}

// AddComment appends the remote comment locally unless the exact text is
// already present on the ticket. A missing mapping triggers creation replay
// first, so comments arriving before their create event are safe.
func (i *Inbound) AddComment(ctx context.Context, ev *webhook.Event) error {
	l, kind, err := i.linkAndKind(ctx, ev, TaskInboundAddComment)
	if err != nil || l == nil {
		return err
	}

	if ev.Change == nil || ev.Change.Comment == "" {
		i.skip(ctx, TaskInboundAddComment, "no comment in change", "remote_ref", ev.Data.Ref)
		return nil
	}

	m, ok, err := i.resolveTicket(ctx, l, kind, ev, TaskInboundAddComment)
	if err != nil || !ok {
		return err
	}

	body := ev.Change.Comment
	t, err := i.tracker.GetTicket(ctx, l.LocalProjectID, m.LocalTicketID)
	if err != nil {
		return fmt.Errorf("fetch local ticket: %w", err)
	}
	for _, c := range t.Comments {
		if c.Body == body {
			i.skip(ctx, TaskInboundAddComment, "comment already present", "local_ticket_id", m.LocalTicketID)
			return nil
		}
	}

	if err := i.tracker.AddComment(ctx, l.LocalProjectID, m.LocalTicketID, body, i.agent); err != nil {
		return fmt.Errorf("add local comment: %w", err)
	}

	i.broadcast(ctx, broadcast.EventInboundComment, syncEvent{
		LocalProjectID: l.LocalProjectID,
		LocalTicketID:  m.LocalTicketID,
		RemoteRef:      ev.Data.Ref,
		Kind:           string(kind),
	})
	return nil
}

// UpdateStatus translates a remote status change into a tag swap on the
// local ticket: the old status tag is removed, the new one added (created
// on the project first if missing, with the remote display color).
func (i *Inbound) UpdateStatus(ctx context.Context, ev *webhook.Event) error {
	l, kind, err := i.linkAndKind(ctx, ev, TaskInboundUpdateStatus)
	if err != nil || l == nil {
		return err
	}

	diff := ev.Change.StatusDiffOf()
	if diff == nil {
		i.skip(ctx, TaskInboundUpdateStatus, "no status diff", "remote_ref", ev.Data.Ref)
		return nil
	}

	m, ok, err := i.resolveTicket(ctx, l, kind, ev, TaskInboundUpdateStatus)
	if err != nil || !ok {
		return err
	}

	if err := i.ensureProjectTag(ctx, l.LocalProjectID, diff.To, ev.Data.Status.Color); err != nil {
		return err
	}

	t, err := i.tracker.GetTicket(ctx, l.LocalProjectID, m.LocalTicketID)
	if err != nil {
		return fmt.Errorf("fetch local ticket: %w", err)
	}

	tags := swapTag(t.Tags, diff.From, diff.To)
	messages, err := i.tracker.SetTicketTags(ctx, l.LocalProjectID, m.LocalTicketID, tags, i.agent)
	if err != nil {
		return fmt.Errorf("update local tags: %w", err)
	}

	var kept []string
	for _, msg := range messages {
		if _, noise := commentNoise[msg]; !noise {
			kept = append(kept, msg)
		}
	}
	if len(kept) > 0 {
		if err := i.tracker.NotifyMetadataChange(ctx, l.LocalProjectID, m.LocalTicketID, kept, i.agent); err != nil {
			return fmt.Errorf("notify metadata change: %w", err)
		}
	}

	i.broadcast(ctx, broadcast.EventInboundStatus, syncEvent{
		LocalProjectID: l.LocalProjectID,
		LocalTicketID:  m.LocalTicketID,
		RemoteRef:      ev.Data.Ref,
		Kind:           string(kind),
		Status:         diff.To,
	})
	return nil
}

// Delete removes the local ticket and its mapping row.
func (i *Inbound) Delete(ctx context.Context, ev *webhook.Event) error {
	l, kind, err := i.linkAndKind(ctx, ev, TaskInboundDelete)
	if err != nil || l == nil {
		return err
	}

	m, err := i.resolver.FindByRemote(ctx, l.RemoteProjectID, ev.Data.Ref, kind)
	if err != nil {
		return err
	}
	if m == nil {
		i.skip(ctx, TaskInboundDelete, "ticket not synchronized", "remote_ref", ev.Data.Ref)
		return nil
	}

	if err := i.tracker.DeleteTicket(ctx, l.LocalProjectID, m.LocalTicketID, i.agent); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete local ticket: %w", err)
	}
	if err := i.store.DeleteMapping(ctx, m.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete mapping: %w", err)
	}

	i.broadcast(ctx, broadcast.EventInboundDeleted, syncEvent{
		LocalProjectID: l.LocalProjectID,
		LocalTicketID:  m.LocalTicketID,
		RemoteRef:      ev.Data.Ref,
		Kind:           string(kind),
	})
	return nil
}

// linkAndKind resolves the project link for the event's remote project and
// validates the item kind. A nil link with nil error means no-op.
func (i *Inbound) linkAndKind(ctx context.Context, ev *webhook.Event, task Task) (*link.ProjectLink, link.TicketKind, error) {
	kind := link.TicketKind(ev.Type)
	if !link.ValidTicketKind(kind) {
		i.skip(ctx, task, "unknown item kind", "type", ev.Type)
		return nil, "", nil
	}

	l, err := i.resolver.LinkByRemoteProject(ctx, ev.Data.Project.ID)
	if err != nil {
		return nil, "", err
	}
	if l == nil {
		i.skip(ctx, task, "no link for remote project", "remote_project_id", ev.Data.Project.ID)
		return nil, "", nil
	}
	return l, kind, nil
}

// resolveTicket resolves the event's mapping, lazily running creation
// replay on a miss.
func (i *Inbound) resolveTicket(ctx context.Context, l *link.ProjectLink, kind link.TicketKind, ev *webhook.Event, task Task) (*link.TicketMapping, bool, error) {
	m, outcome, err := i.resolver.ResolveLocalTicket(ctx, l.RemoteProjectID, ev.Data.Ref, kind, func(ctx context.Context) error {
		return i.Create(ctx, ev)
	})
	if err != nil {
		return nil, false, err
	}
	if outcome == ResolveFailed {
		slog.Error("could not resolve local ticket", "task", task, "remote_ref", ev.Data.Ref)
		return nil, false, nil
	}
	if outcome == ResolveCreated {
		slog.Info("local ticket created lazily", "task", task, "remote_ref", ev.Data.Ref)
	}
	return m, true, nil
}

// ensureProjectTag creates the tag on the project if it does not exist yet.
func (i *Inbound) ensureProjectTag(ctx context.Context, projectID int64, name, color string) error {
	tags, err := i.tracker.ListProjectTags(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list project tags: %w", err)
	}
	for _, t := range tags {
		if t.Name == name {
			return nil
		}
	}
	if err := i.tracker.CreateProjectTag(ctx, projectID, name, color); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("create project tag: %w", err)
	}
	return nil
}

func (i *Inbound) skip(ctx context.Context, task Task, reason string, args ...any) {
	i.metrics.RecordSkipped(ctx, string(task))
	slog.Info("task skipped: "+reason, append([]any{"task", task}, args...)...)
}

func (i *Inbound) broadcast(ctx context.Context, eventType string, payload syncEvent) {
	if i.bc != nil {
		i.bc.BroadcastEvent(ctx, eventType, payload)
	}
}

// swapTag returns the tag set with from removed and to appended once.
func swapTag(tags []string, from, to string) []string {
	out := make([]string, 0, len(tags)+1)
	for _, t := range tags {
		if t == from || t == to {
			continue
		}
		out = append(out, t)
	}
	return append(out, to)
}
