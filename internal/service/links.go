package service

import (
	"context"
	"fmt"

	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/port/database"
	"github.com/forgesync/ticketbridge/internal/port/remote"
)

// WebhookName is the name the engine registers its callback webhook under
// on the remote project.
const WebhookName = "forge_webhook"

// LinkService manages project links: validating the remote side, keeping
// the callback webhook registered, and persisting the link.
type LinkService struct {
	store      database.Store
	newClient  remote.Factory
	webhookURL string
	webhookKey string
}

// NewLinkService creates the link settings service. webhookURL is the
// public URL of this engine's webhook endpoint; webhookKey signs deliveries
// (may be empty).
func NewLinkService(store database.Store, factory remote.Factory, webhookURL, webhookKey string) *LinkService {
	return &LinkService{
		store:      store,
		newClient:  factory,
		webhookURL: webhookURL,
		webhookKey: webhookKey,
	}
}

// Upsert validates the remote project by slug, ensures the callback
// webhook is registered on it, and creates or updates the link.
func (s *LinkService) Upsert(ctx context.Context, req link.UpsertRequest) (*link.ProjectLink, error) {
	if !validKind(req.RemoteProjectKind) {
		return nil, fmt.Errorf("invalid remote project kind %q", req.RemoteProjectKind)
	}

	client := s.newClient(req.RemoteBaseURL, req.RemoteAuthToken)
	project, err := client.GetProjectBySlug(ctx, req.RemoteProjectSlug)
	if err != nil {
		return nil, fmt.Errorf("resolve remote project %q: %w", req.RemoteProjectSlug, err)
	}
	req.RemoteProjectID = project.ID

	if s.webhookURL != "" {
		if err := s.ensureWebhook(ctx, client, project.ID); err != nil {
			return nil, err
		}
	}

	l, err := s.store.UpsertLink(ctx, req)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns the link for a local project.
func (s *LinkService) Get(ctx context.Context, localProjectID int64) (*link.ProjectLink, error) {
	return s.store.GetLink(ctx, localProjectID)
}

// List returns all links.
func (s *LinkService) List(ctx context.Context) ([]link.ProjectLink, error) {
	return s.store.ListLinks(ctx)
}

// Delete removes the link for a local project. Mapping rows cascade.
func (s *LinkService) Delete(ctx context.Context, localProjectID int64) error {
	return s.store.DeleteLink(ctx, localProjectID)
}

// ensureWebhook registers the callback webhook on the remote project, or
// repoints an existing one whose URL or key drifted.
func (s *LinkService) ensureWebhook(ctx context.Context, client remote.Client, remoteProjectID int64) error {
	hooks, err := client.ListWebhooks(ctx, remoteProjectID)
	if err != nil {
		return fmt.Errorf("list remote webhooks: %w", err)
	}

	for _, h := range hooks {
		if h.Name != WebhookName {
			continue
		}
		if h.URL == s.webhookURL && h.Key == s.webhookKey {
			return nil
		}
		if err := client.UpdateWebhook(ctx, h.ID, s.webhookURL, s.webhookKey); err != nil {
			return fmt.Errorf("update remote webhook: %w", err)
		}
		return nil
	}

	if err := client.CreateWebhook(ctx, remoteProjectID, WebhookName, s.webhookURL, s.webhookKey); err != nil {
		return fmt.Errorf("create remote webhook: %w", err)
	}
	return nil
}

func validKind(k link.ProjectKind) bool {
	return k == link.KindKanban || k == link.KindScrum
}
