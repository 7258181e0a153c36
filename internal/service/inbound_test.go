package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/domain/ticket"
	"github.com/forgesync/ticketbridge/internal/domain/webhook"
	"github.com/forgesync/ticketbridge/internal/port/broadcast"
)

func createEvent() *webhook.Event {
	return &webhook.Event{
		Type:   "issue",
		Action: webhook.ActionCreate,
		Data: webhook.Data{
			Project:     webhook.Project{ID: 42},
			Ref:         7,
			Subject:     "Bug X",
			Description: "It crashes",
			Status:      webhook.Status{Name: "New", Color: "#fff"},
		},
	}
}

func newInbound(store *mockStore, tr *mockTracker, bc *mockBroadcaster) *Inbound {
	i := NewInbound(store, NewResolver(store), tr, nil, nil, "ticketbridge")
	if bc != nil {
		i.bc = bc
	}
	return i
}

func TestInboundCreate(t *testing.T) {
	store := &mockStore{links: []link.ProjectLink{scrumLink()}}
	tr := newMockTracker()
	bc := &mockBroadcaster{}
	in := newInbound(store, tr, bc)

	if err := in.Create(context.Background(), createEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.mappings) != 1 {
		t.Fatalf("mappings = %d, want 1", len(store.mappings))
	}
	m := store.mappings[0]
	if m.RemoteProjectID != 42 || m.RemoteTicketRef != 7 || m.TicketKind != link.TicketIssue {
		t.Errorf("unexpected mapping: %+v", m)
	}

	tk, err := tr.GetTicket(context.Background(), 5, m.LocalTicketID)
	if err != nil {
		t.Fatalf("local ticket missing: %v", err)
	}
	if tk.Title != "Bug X" {
		t.Errorf("title = %q, want Bug X", tk.Title)
	}
	if len(tk.Tags) != 1 || tk.Tags[0] != "New" {
		t.Errorf("tags = %v, want [New]", tk.Tags)
	}
	if len(bc.events) != 1 || bc.events[0] != broadcast.EventInboundCreated {
		t.Errorf("unexpected broadcasts: %v", bc.events)
	}
}

func TestInboundCreateIdempotent(t *testing.T) {
	store := &mockStore{links: []link.ProjectLink{scrumLink()}}
	tr := newMockTracker()
	in := newInbound(store, tr, nil)

	for range 2 {
		if err := in.Create(context.Background(), createEvent()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if tr.createCalls != 1 {
		t.Errorf("local creates = %d, want 1", tr.createCalls)
	}
	if len(store.mappings) != 1 {
		t.Errorf("mappings = %d, want 1", len(store.mappings))
	}
}

func TestInboundCreateNoLink(t *testing.T) {
	store := &mockStore{}
	tr := newMockTracker()
	in := newInbound(store, tr, nil)

	if err := in.Create(context.Background(), createEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.createCalls != 0 {
		t.Errorf("ticket created without a link")
	}
}

func TestInboundCreateSeedsStatusAndTags(t *testing.T) {
	store := &mockStore{links: []link.ProjectLink{scrumLink()}}
	tr := newMockTracker()
	in := newInbound(store, tr, nil)

	ev := createEvent()
	ev.Data.Tags = []string{"crash", "urgent"}
	if err := in.Create(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tk := tr.tickets[store.mappings[0].LocalTicketID]
	want := []string{"New", "crash", "urgent"}
	if len(tk.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tk.Tags, want)
	}
	for i := range want {
		if tk.Tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", tk.Tags, want)
		}
	}
}

func TestInboundAddCommentLazyCreate(t *testing.T) {
	store := &mockStore{links: []link.ProjectLink{scrumLink()}}
	tr := newMockTracker()
	in := newInbound(store, tr, nil)

	ev := createEvent()
	ev.Action = webhook.ActionChange
	ev.Change = &webhook.Change{Comment: "me too"}

	if err := in.AddComment(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.mappings) != 1 {
		t.Fatalf("lazy create did not produce a mapping")
	}
	tk := tr.tickets[store.mappings[0].LocalTicketID]
	if len(tk.Comments) != 1 || tk.Comments[0].Body != "me too" {
		t.Fatalf("comments = %+v, want one 'me too'", tk.Comments)
	}
}

func TestInboundAddCommentDedup(t *testing.T) {
	store := &mockStore{
		links: []link.ProjectLink{scrumLink()},
		mappings: []link.TicketMapping{
			{ID: 1, RemoteProjectID: 42, RemoteTicketRef: 7, LocalTicketID: 3, TicketKind: link.TicketIssue},
		},
	}
	tr := newMockTracker()
	tr.tickets[3] = &ticket.Ticket{ID: 3, Comments: []ticket.Comment{{User: "alice", Body: "me too"}}}
	in := newInbound(store, tr, nil)

	ev := createEvent()
	ev.Action = webhook.ActionChange
	ev.Change = &webhook.Change{Comment: "me too"}

	if err := in.AddComment(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.tickets[3].Comments) != 1 {
		t.Fatalf("duplicate comment appended: %+v", tr.tickets[3].Comments)
	}
}

func TestInboundUpdateStatus(t *testing.T) {
	store := &mockStore{
		links: []link.ProjectLink{scrumLink()},
		mappings: []link.TicketMapping{
			{ID: 1, RemoteProjectID: 42, RemoteTicketRef: 7, LocalTicketID: 3, TicketKind: link.TicketIssue},
		},
	}
	tr := newMockTracker()
	tr.tickets[3] = &ticket.Ticket{ID: 3, Tags: []string{"New"}}
	tr.projectTags = []ticket.Tag{{Name: "New", Color: "#fff"}}
	tr.setTagsMessages = []string{"Comment added", "Ticket tagged with: Done"}
	in := newInbound(store, tr, nil)

	ev := createEvent()
	ev.Action = webhook.ActionChange
	ev.Data.Status = webhook.Status{Name: "Done", Color: "#0f0"}
	ev.Change = &webhook.Change{Diff: json.RawMessage(`{"status":{"from":"New","to":"Done"}}`)}

	if err := in.UpdateStatus(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if color, ok := tr.createdTags["Done"]; !ok || color != "#0f0" {
		t.Errorf("project tag Done not created with remote color, got %v", tr.createdTags)
	}
	tk := tr.tickets[3]
	if len(tk.Tags) != 1 || tk.Tags[0] != "Done" {
		t.Errorf("ticket tags = %v, want [Done]", tk.Tags)
	}
	if len(tr.notified) != 1 {
		t.Fatalf("notifications = %d, want 1", len(tr.notified))
	}
	if len(tr.notified[0]) != 1 || tr.notified[0][0] != "Ticket tagged with: Done" {
		t.Errorf("notification messages = %v, comment noise should be filtered", tr.notified[0])
	}
}

func TestInboundUpdateStatusAllNoise(t *testing.T) {
	store := &mockStore{
		links: []link.ProjectLink{scrumLink()},
		mappings: []link.TicketMapping{
			{ID: 1, RemoteProjectID: 42, RemoteTicketRef: 7, LocalTicketID: 3, TicketKind: link.TicketIssue},
		},
	}
	tr := newMockTracker()
	tr.tickets[3] = &ticket.Ticket{ID: 3, Tags: []string{"New"}}
	tr.projectTags = []ticket.Tag{{Name: "Done", Color: "#0f0"}}
	tr.setTagsMessages = []string{"Comment added"}
	in := newInbound(store, tr, nil)

	ev := createEvent()
	ev.Action = webhook.ActionChange
	ev.Change = &webhook.Change{Diff: json.RawMessage(`{"status":{"from":"New","to":"Done"}}`)}

	if err := in.UpdateStatus(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.notified) != 0 {
		t.Errorf("notification emitted for pure comment noise: %v", tr.notified)
	}
}

func TestInboundDelete(t *testing.T) {
	store := &mockStore{
		links: []link.ProjectLink{scrumLink()},
		mappings: []link.TicketMapping{
			{ID: 1, RemoteProjectID: 42, RemoteTicketRef: 7, LocalTicketID: 3, TicketKind: link.TicketIssue},
		},
	}
	tr := newMockTracker()
	tr.tickets[3] = &ticket.Ticket{ID: 3}
	in := newInbound(store, tr, nil)

	ev := createEvent()
	ev.Action = webhook.ActionDelete
	if err := in.Delete(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tr.deleted) != 1 || tr.deleted[0] != 3 {
		t.Errorf("deleted tickets = %v, want [3]", tr.deleted)
	}
	if len(store.mappings) != 0 {
		t.Errorf("mapping not removed: %+v", store.mappings)
	}
}

func TestInboundUnknownKind(t *testing.T) {
	store := &mockStore{links: []link.ProjectLink{scrumLink()}}
	tr := newMockTracker()
	in := newInbound(store, tr, nil)

	ev := createEvent()
	ev.Type = "epic"
	if err := in.Create(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.createCalls != 0 {
		t.Errorf("ticket created for unknown kind")
	}
}
