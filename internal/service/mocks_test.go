package service

import (
	"context"
	"time"

	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/domain/ticket"
	"github.com/forgesync/ticketbridge/internal/port/messagequeue"
	"github.com/forgesync/ticketbridge/internal/port/remote"
)

// mockStore is an in-memory database.Store.
type mockStore struct {
	links    []link.ProjectLink
	mappings []link.TicketMapping
	nextID   int64

	createMappingCalls int
	createMappingErr   error
}

func (s *mockStore) GetLink(_ context.Context, localProjectID int64) (*link.ProjectLink, error) {
	for i := range s.links {
		if s.links[i].LocalProjectID == localProjectID {
			l := s.links[i]
			return &l, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *mockStore) GetLinkByRemoteProject(_ context.Context, remoteProjectID int64) (*link.ProjectLink, error) {
	for i := range s.links {
		if s.links[i].RemoteProjectID == remoteProjectID {
			l := s.links[i]
			return &l, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *mockStore) ListLinks(_ context.Context) ([]link.ProjectLink, error) {
	return append([]link.ProjectLink(nil), s.links...), nil
}

func (s *mockStore) UpsertLink(_ context.Context, req link.UpsertRequest) (*link.ProjectLink, error) {
	for i := range s.links {
		if s.links[i].LocalProjectID == req.LocalProjectID {
			s.links[i].RemoteBaseURL = req.RemoteBaseURL
			s.links[i].RemoteAuthToken = req.RemoteAuthToken
			s.links[i].RemoteProjectSlug = req.RemoteProjectSlug
			s.links[i].RemoteProjectKind = req.RemoteProjectKind
			s.links[i].RemoteProjectID = req.RemoteProjectID
			l := s.links[i]
			return &l, nil
		}
	}
	s.nextID++
	l := link.ProjectLink{
		ID:                s.nextID,
		LocalProjectID:    req.LocalProjectID,
		RemoteBaseURL:     req.RemoteBaseURL,
		RemoteAuthToken:   req.RemoteAuthToken,
		RemoteProjectSlug: req.RemoteProjectSlug,
		RemoteProjectKind: req.RemoteProjectKind,
		RemoteProjectID:   req.RemoteProjectID,
	}
	s.links = append(s.links, l)
	return &l, nil
}

func (s *mockStore) DeleteLink(_ context.Context, localProjectID int64) error {
	for i := range s.links {
		if s.links[i].LocalProjectID == localProjectID {
			s.links = append(s.links[:i], s.links[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *mockStore) FindMappingByLocal(_ context.Context, remoteProjectID, localTicketID int64, kind link.TicketKind) (*link.TicketMapping, error) {
	for i := range s.mappings {
		m := s.mappings[i]
		if m.RemoteProjectID == remoteProjectID && m.LocalTicketID == localTicketID && m.TicketKind == kind {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *mockStore) FindMappingByRemote(_ context.Context, remoteProjectID, remoteRef int64, kind link.TicketKind) (*link.TicketMapping, error) {
	for i := range s.mappings {
		m := s.mappings[i]
		if m.RemoteProjectID == remoteProjectID && m.RemoteTicketRef == remoteRef && m.TicketKind == kind {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *mockStore) ListMappings(_ context.Context, remoteProjectID int64) ([]link.TicketMapping, error) {
	var out []link.TicketMapping
	for _, m := range s.mappings {
		if m.RemoteProjectID == remoteProjectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *mockStore) CreateMapping(_ context.Context, m *link.TicketMapping) error {
	s.createMappingCalls++
	if s.createMappingErr != nil {
		return s.createMappingErr
	}
	for _, ex := range s.mappings {
		if ex.RemoteProjectID == m.RemoteProjectID && ex.TicketKind == m.TicketKind &&
			(ex.LocalTicketID == m.LocalTicketID || ex.RemoteTicketRef == m.RemoteTicketRef) {
			return domain.ErrConflict
		}
	}
	s.nextID++
	m.ID = s.nextID
	s.mappings = append(s.mappings, *m)
	return nil
}

func (s *mockStore) DeleteMapping(_ context.Context, id int64) error {
	for i := range s.mappings {
		if s.mappings[i].ID == id {
			s.mappings = append(s.mappings[:i], s.mappings[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// mockQueue records published messages and lets tests deliver directly to
// subscribed handlers.
type mockQueue struct {
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		published: make(map[string][][]byte),
		handlers:  make(map[string]messagequeue.Handler),
	}
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.handlers[subject] = h
	return func() { delete(q.handlers, subject) }, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) deliver(ctx context.Context, subject string, data []byte) error {
	return q.handlers[subject](ctx, subject, data)
}

// mockTracker is an in-memory local tracker.
type mockTracker struct {
	nextID      int64
	tickets     map[int64]*ticket.Ticket
	projectTags []ticket.Tag

	createCalls     int
	createdTags     map[string]string
	setTagsMessages []string
	notified        [][]string
	deleted         []int64
}

func newMockTracker() *mockTracker {
	return &mockTracker{tickets: make(map[int64]*ticket.Ticket), createdTags: make(map[string]string)}
}

func (t *mockTracker) NextTicketID(_ context.Context, _ int64) (int64, error) {
	t.nextID++
	return t.nextID, nil
}

func (t *mockTracker) CreateTicket(_ context.Context, _ int64, nt ticket.NewTicket) error {
	t.createCalls++
	t.tickets[nt.ID] = &ticket.Ticket{
		ID:      nt.ID,
		Title:   nt.Title,
		Content: nt.Content,
		Tags:    append([]string(nil), nt.Tags...),
	}
	return nil
}

func (t *mockTracker) GetTicket(_ context.Context, _, ticketID int64) (*ticket.Ticket, error) {
	tk, ok := t.tickets[ticketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return tk, nil
}

func (t *mockTracker) AddComment(_ context.Context, _, ticketID int64, body, user string) error {
	tk, ok := t.tickets[ticketID]
	if !ok {
		return domain.ErrNotFound
	}
	tk.Comments = append(tk.Comments, ticket.Comment{User: user, Body: body})
	return nil
}

func (t *mockTracker) ListProjectTags(_ context.Context, _ int64) ([]ticket.Tag, error) {
	return t.projectTags, nil
}

func (t *mockTracker) CreateProjectTag(_ context.Context, _ int64, name, color string) error {
	t.createdTags[name] = color
	t.projectTags = append(t.projectTags, ticket.Tag{Name: name, Color: color})
	return nil
}

func (t *mockTracker) SetTicketTags(_ context.Context, _, ticketID int64, tags []string, _ string) ([]string, error) {
	if tk, ok := t.tickets[ticketID]; ok {
		tk.Tags = append([]string(nil), tags...)
	}
	return t.setTagsMessages, nil
}

func (t *mockTracker) NotifyMetadataChange(_ context.Context, _, _ int64, messages []string, _ string) error {
	t.notified = append(t.notified, messages)
	return nil
}

func (t *mockTracker) DeleteTicket(_ context.Context, _, ticketID int64, _ string) error {
	if _, ok := t.tickets[ticketID]; !ok {
		return domain.ErrNotFound
	}
	t.deleted = append(t.deleted, ticketID)
	delete(t.tickets, ticketID)
	return nil
}

// mockRemote is an in-memory remote tracker client.
type mockRemote struct {
	project  *remote.Project
	items    map[int64]*remote.Item // by ref
	history  []remote.HistoryEntry
	statuses []remote.Status
	webhooks []remote.Webhook

	nextID          int64
	createCalls     int
	createdKinds    []link.TicketKind
	comments        []string
	deletedItemIDs  []int64
	statusSet       []int64
	statusListCalls int
	createdHooks    []remote.Webhook
	updatedHooks    []remote.Webhook
}

func newMockRemote() *mockRemote {
	return &mockRemote{items: make(map[int64]*remote.Item)}
}

// factory returns a remote.Factory that always hands out this mock.
func (r *mockRemote) factory() remote.Factory {
	return func(_, _ string) remote.Client { return r }
}

func (r *mockRemote) GetProjectBySlug(_ context.Context, slug string) (*remote.Project, error) {
	if r.project == nil || r.project.Slug != slug {
		return nil, domain.ErrNotFound
	}
	return r.project, nil
}

func (r *mockRemote) CreateItem(_ context.Context, _ int64, kind link.TicketKind, item remote.NewItem) (*remote.Item, error) {
	r.createCalls++
	r.createdKinds = append(r.createdKinds, kind)
	r.nextID++
	it := &remote.Item{
		ID:          r.nextID,
		Ref:         r.nextID + 100,
		Subject:     item.Subject,
		Description: item.Description,
	}
	r.items[it.Ref] = it
	return it, nil
}

func (r *mockRemote) GetItemByRef(_ context.Context, _ int64, _ link.TicketKind, ref int64) (*remote.Item, error) {
	it, ok := r.items[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return it, nil
}

func (r *mockRemote) History(_ context.Context, _ link.TicketKind, _ int64) ([]remote.HistoryEntry, error) {
	return r.history, nil
}

func (r *mockRemote) AddComment(_ context.Context, _ link.TicketKind, _ *remote.Item, body string) error {
	r.comments = append(r.comments, body)
	return nil
}

func (r *mockRemote) DeleteItem(_ context.Context, _ link.TicketKind, itemID int64) error {
	r.deletedItemIDs = append(r.deletedItemIDs, itemID)
	for ref, it := range r.items {
		if it.ID == itemID {
			delete(r.items, ref)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *mockRemote) ListStatuses(_ context.Context, _ int64, _ link.TicketKind) ([]remote.Status, error) {
	r.statusListCalls++
	return r.statuses, nil
}

func (r *mockRemote) SetStatus(_ context.Context, _ link.TicketKind, _ *remote.Item, statusID int64) error {
	r.statusSet = append(r.statusSet, statusID)
	return nil
}

func (r *mockRemote) ListWebhooks(_ context.Context, _ int64) ([]remote.Webhook, error) {
	return r.webhooks, nil
}

func (r *mockRemote) CreateWebhook(_ context.Context, projectID int64, name, url, key string) error {
	h := remote.Webhook{ID: int64(len(r.webhooks) + 1), Name: name, URL: url, Key: key}
	r.createdHooks = append(r.createdHooks, h)
	r.webhooks = append(r.webhooks, h)
	return nil
}

func (r *mockRemote) UpdateWebhook(_ context.Context, hookID int64, url, key string) error {
	r.updatedHooks = append(r.updatedHooks, remote.Webhook{ID: hookID, URL: url, Key: key})
	return nil
}

// mockBroadcaster records broadcast event types.
type mockBroadcaster struct {
	events []string
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.events = append(b.events, eventType)
}

// mockCache is a map-backed cache ignoring TTLs.
type mockCache struct {
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *mockCache) Close() {}
