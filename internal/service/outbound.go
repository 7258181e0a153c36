package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	obs "github.com/forgesync/ticketbridge/internal/adapter/otel"
	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/domain/ticket"
	"github.com/forgesync/ticketbridge/internal/port/broadcast"
	"github.com/forgesync/ticketbridge/internal/port/cache"
	"github.com/forgesync/ticketbridge/internal/port/database"
	"github.com/forgesync/ticketbridge/internal/port/messagequeue"
	"github.com/forgesync/ticketbridge/internal/port/remote"
)

// signalTasks maps the local tracker's signal topics to outbound tasks.
// Subjects outside this table are never subscribed to.
var signalTasks = map[string]Task{
	messagequeue.SubjectTicketCreated: TaskCreateRemoteTicket,
	messagequeue.SubjectTicketComment: TaskAddRemoteComment,
	messagequeue.SubjectTicketDropped: TaskDeleteRemoteTicket,
	messagequeue.SubjectTicketTagged:  TaskUpdateRemoteStatus,
}

// Outbound replays locally originated ticket events against the remote
// tracker.
type Outbound struct {
	store     database.Store
	resolver  *Resolver
	newClient remote.Factory
	cache     cache.Cache
	statusTTL time.Duration
	bc        broadcast.Broadcaster
	metrics   *obs.Metrics
}

// NewOutbound creates the outbound pipeline. cache, bc and metrics may be
// nil-valued collaborators in tests.
func NewOutbound(store database.Store, resolver *Resolver, factory remote.Factory, c cache.Cache, statusTTL time.Duration, bc broadcast.Broadcaster, metrics *obs.Metrics) *Outbound {
	return &Outbound{
		store:     store,
		resolver:  resolver,
		newClient: factory,
		cache:     c,
		statusTTL: statusTTL,
		bc:        bc,
		metrics:   metrics,
	}
}

// Register binds the outbound task handlers onto the dispatcher.
func (o *Outbound) Register(d *Dispatcher) error {
	for task, h := range map[Task]func(context.Context, *ticket.Event) error{
		TaskCreateRemoteTicket: o.CreateRemoteTicket,
		TaskAddRemoteComment:   o.AddRemoteComment,
		TaskDeleteRemoteTicket: o.DeleteRemoteTicket,
		TaskUpdateRemoteStatus: o.UpdateRemoteStatus,
	} {
		handler := h
		if err := d.Register(task, func(ctx context.Context, payload json.RawMessage) error {
			var ev ticket.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				return fmt.Errorf("decode ticket event: %w", err)
			}
			return handler(ctx, &ev)
		}); err != nil {
			return err
		}
	}
	return nil
}

// BindSignals subscribes to the local signal topics and turns each message
// into its task. The returned cancel functions are owned by the queue's
// Drain.
func (o *Outbound) BindSignals(ctx context.Context, q messagequeue.Queue, d *Dispatcher) error {
	for subject, task := range signalTasks {
		task := task
		_, err := q.Subscribe(ctx, subject, func(ctx context.Context, subj string, data []byte) error {
			var ev ticket.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("decode signal on %s: %w", subj, err)
			}
			return d.Enqueue(ctx, task, &ev)
		})
		if err != nil {
			return fmt.Errorf("bind signal %s: %w", subject, err)
		}
	}
	return nil
}

// CreateRemoteTicket replays a local ticket creation on the remote tracker.
// The mapping row is written only after the remote creation is confirmed;
// a duplicate mapping insert means a concurrent unit already synchronized
// the ticket.
func (o *Outbound) CreateRemoteTicket(ctx context.Context, ev *ticket.Event) error {
	l, err := o.resolver.LinkByLocalProject(ctx, ev.Project.ID)
	if err != nil {
		return err
	}
	if l == nil {
		o.skip(ctx, TaskCreateRemoteTicket, "no link for project", "project_id", ev.Project.ID)
		return nil
	}

	kind := link.ItemKindFor(l.RemoteProjectKind)
	m, err := o.resolver.FindByLocal(ctx, l.RemoteProjectID, ev.Ticket.ID, kind)
	if err != nil {
		return err
	}
	if m != nil {
		o.skip(ctx, TaskCreateRemoteTicket, "already synchronized", "local_ticket_id", ev.Ticket.ID)
		return nil
	}

	client := o.newClient(l.RemoteBaseURL, l.RemoteAuthToken)
	item, err := client.CreateItem(ctx, l.RemoteProjectID, kind, remote.NewItem{
		Subject:     ev.Ticket.Title,
		Description: ev.Ticket.Content,
		Priority:    ev.Ticket.Priority,
		StatusName:  ev.Ticket.Status,
	})
	if err != nil {
		return fmt.Errorf("create remote %s: %w", kind, err)
	}

	err = o.store.CreateMapping(ctx, &link.TicketMapping{
		RemoteProjectID: l.RemoteProjectID,
		RemoteTicketRef: item.Ref,
		LocalTicketID:   ev.Ticket.ID,
		TicketKind:      kind,
	})
	switch {
	case errors.Is(err, domain.ErrConflict):
		// A concurrent unit won the race; the sweep reclaims our duplicate
		// remote item if the refs differ.
		slog.Info("mapping already present after remote create",
			"local_ticket_id", ev.Ticket.ID, "remote_ref", item.Ref)
		return nil
	case err != nil:
		// The remote item exists without a mapping; the reconciliation
		// sweep cannot see it, so log loudly.
		slog.Error("mapping write failed after remote create",
			"local_ticket_id", ev.Ticket.ID, "remote_ref", item.Ref, "error", err)
		return err
	}

	o.broadcast(ctx, broadcast.EventOutboundCreated, syncEvent{
		LocalProjectID: ev.Project.ID,
		LocalTicketID:  ev.Ticket.ID,
		RemoteRef:      item.Ref,
		Kind:           string(kind),
	})
	return nil
}

// AddRemoteComment forwards the newest local comment unless the exact text
// already appears in the remote item's history. The dedup key is the text
// alone; authorship is ignored.
func (o *Outbound) AddRemoteComment(ctx context.Context, ev *ticket.Event) error {
	l, kind, m, err := o.resolveMapped(ctx, ev, TaskAddRemoteComment)
	if err != nil || m == nil {
		return err
	}

	comment := ev.LatestComment()
	if comment == nil {
		o.skip(ctx, TaskAddRemoteComment, "ticket has no comments", "local_ticket_id", ev.Ticket.ID)
		return nil
	}

	client := o.newClient(l.RemoteBaseURL, l.RemoteAuthToken)
	item, err := client.GetItemByRef(ctx, l.RemoteProjectID, kind, m.RemoteTicketRef)
	if err != nil {
		return fmt.Errorf("fetch remote item: %w", err)
	}

	history, err := client.History(ctx, kind, item.ID)
	if err != nil {
		return fmt.Errorf("fetch remote history: %w", err)
	}
	for _, entry := range history {
		// Deleted remote comments don't count as present.
		if entry.DeleteCommentDate != nil {
			continue
		}
		if entry.Comment == comment.Body {
			o.skip(ctx, TaskAddRemoteComment, "comment already present", "local_ticket_id", ev.Ticket.ID)
			return nil
		}
	}

	if err := client.AddComment(ctx, kind, item, comment.Body); err != nil {
		return fmt.Errorf("add remote comment: %w", err)
	}

	o.broadcast(ctx, broadcast.EventOutboundComment, syncEvent{
		LocalProjectID: ev.Project.ID,
		LocalTicketID:  ev.Ticket.ID,
		RemoteRef:      m.RemoteTicketRef,
		Kind:           string(kind),
	})
	return nil
}

// DeleteRemoteTicket replays a local ticket deletion. The mapping row is
// removed after the remote delete; if the remote item is already gone the
// mapping is still cleaned up.
func (o *Outbound) DeleteRemoteTicket(ctx context.Context, ev *ticket.Event) error {
	l, kind, m, err := o.resolveMapped(ctx, ev, TaskDeleteRemoteTicket)
	if err != nil || m == nil {
		return err
	}

	client := o.newClient(l.RemoteBaseURL, l.RemoteAuthToken)
	item, err := client.GetItemByRef(ctx, l.RemoteProjectID, kind, m.RemoteTicketRef)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Already gone remotely; just drop the mapping.
	case err != nil:
		return fmt.Errorf("fetch remote item: %w", err)
	default:
		if err := client.DeleteItem(ctx, kind, item.ID); err != nil {
			return fmt.Errorf("delete remote %s: %w", kind, err)
		}
	}

	if err := o.store.DeleteMapping(ctx, m.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Error("mapping delete failed after remote delete",
			"mapping_id", m.ID, "error", err)
		return err
	}

	o.broadcast(ctx, broadcast.EventOutboundDeleted, syncEvent{
		LocalProjectID: ev.Project.ID,
		LocalTicketID:  ev.Ticket.ID,
		RemoteRef:      m.RemoteTicketRef,
		Kind:           string(kind),
	})
	return nil
}

// UpdateRemoteStatus pushes the ticket's tag-derived workflow status to the
// remote item. The remote status list is cached; statuses change rarely but
// are needed on every update.
func (o *Outbound) UpdateRemoteStatus(ctx context.Context, ev *ticket.Event) error {
	l, kind, m, err := o.resolveMapped(ctx, ev, TaskUpdateRemoteStatus)
	if err != nil || m == nil {
		return err
	}

	client := o.newClient(l.RemoteBaseURL, l.RemoteAuthToken)
	statuses, err := o.statuses(ctx, client, l.RemoteProjectID, kind)
	if err != nil {
		return fmt.Errorf("fetch remote statuses: %w", err)
	}

	winner, ok := matchStatusTag(ev.Ticket.Tags, statuses)
	if !ok {
		o.skip(ctx, TaskUpdateRemoteStatus, "no tag names a remote status", "local_ticket_id", ev.Ticket.ID)
		return nil
	}

	item, err := client.GetItemByRef(ctx, l.RemoteProjectID, kind, m.RemoteTicketRef)
	if err != nil {
		return fmt.Errorf("fetch remote item: %w", err)
	}
	if err := client.SetStatus(ctx, kind, item, winner.ID); err != nil {
		return fmt.Errorf("set remote status: %w", err)
	}

	o.broadcast(ctx, broadcast.EventOutboundStatus, syncEvent{
		LocalProjectID: ev.Project.ID,
		LocalTicketID:  ev.Ticket.ID,
		RemoteRef:      m.RemoteTicketRef,
		Kind:           string(kind),
		Status:         winner.Name,
	})
	return nil
}

// resolveMapped resolves the project link and the ticket's mapping. A nil
// mapping with nil error means the task should no-op.
func (o *Outbound) resolveMapped(ctx context.Context, ev *ticket.Event, task Task) (*link.ProjectLink, link.TicketKind, *link.TicketMapping, error) {
	l, err := o.resolver.LinkByLocalProject(ctx, ev.Project.ID)
	if err != nil {
		return nil, "", nil, err
	}
	if l == nil {
		o.skip(ctx, task, "no link for project", "project_id", ev.Project.ID)
		return nil, "", nil, nil
	}

	kind := link.ItemKindFor(l.RemoteProjectKind)
	m, err := o.resolver.FindByLocal(ctx, l.RemoteProjectID, ev.Ticket.ID, kind)
	if err != nil {
		return nil, "", nil, err
	}
	if m == nil {
		o.skip(ctx, task, "ticket not synchronized", "local_ticket_id", ev.Ticket.ID)
		return nil, "", nil, nil
	}
	return l, kind, m, nil
}

// statuses returns the remote workflow status list, from cache when fresh.
func (o *Outbound) statuses(ctx context.Context, client remote.Client, remoteProjectID int64, kind link.TicketKind) ([]remote.Status, error) {
	key := fmt.Sprintf("statuses:%d:%s", remoteProjectID, kind)

	if o.cache != nil {
		if data, ok, err := o.cache.Get(ctx, key); err == nil && ok {
			var statuses []remote.Status
			if err := json.Unmarshal(data, &statuses); err == nil {
				return statuses, nil
			}
		}
	}

	statuses, err := client.ListStatuses(ctx, remoteProjectID, kind)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		if data, err := json.Marshal(statuses); err == nil {
			_ = o.cache.Set(ctx, key, data, o.statusTTL)
		}
	}
	return statuses, nil
}

func (o *Outbound) skip(ctx context.Context, task Task, reason string, args ...any) {
	o.metrics.RecordSkipped(ctx, string(task))
	slog.Info("task skipped: "+reason, append([]any{"task", task}, args...)...)
}

func (o *Outbound) broadcast(ctx context.Context, eventType string, payload syncEvent) {
	if o.bc != nil {
		o.bc.BroadcastEvent(ctx, eventType, payload)
	}
}

// syncEvent is the payload broadcast to admin clients after a sync effect.
type syncEvent struct {
	LocalProjectID int64  `json:"local_project_id"`
	LocalTicketID  int64  `json:"local_ticket_id"`
	RemoteRef      int64  `json:"remote_ref"`
	Kind           string `json:"kind"`
	Status         string `json:"status,omitempty"`
}
