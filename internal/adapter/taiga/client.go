// Package taiga implements the remote tracker port against a Taiga-style
// REST API.
package taiga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/port/remote"
	"github.com/forgesync/ticketbridge/internal/resilience"
)

// Client talks to one Taiga instance with one auth token.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithBreaker attaches a circuit breaker to all outgoing calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given Taiga instance.
func NewClient(baseURL, authToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Factory returns a remote.Factory building clients with the given options.
// Sync tasks use it to dial the instance recorded on each ProjectLink.
func Factory(opts ...Option) remote.Factory {
	return func(baseURL, authToken string) remote.Client {
		return NewClient(baseURL, authToken, opts...)
	}
}

// kindPath maps a ticket kind to its REST collection.
func kindPath(kind link.TicketKind) string {
	if kind == link.TicketUserStory {
		return "userstories"
	}
	return "issues"
}

// statusPath maps a ticket kind to its workflow status collection.
func statusPath(kind link.TicketKind) string {
	if kind == link.TicketUserStory {
		return "userstory-statuses"
	}
	return "issue-statuses"
}

func (c *Client) GetProjectBySlug(ctx context.Context, slug string) (*remote.Project, error) {
	q := url.Values{"slug": {slug}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/projects/by_slug?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("get project %q: %w", slug, err)
	}

	var p remote.Project
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse project %q: %w", slug, err)
	}
	return &p, nil
}

func (c *Client) CreateItem(ctx context.Context, projectID int64, kind link.TicketKind, item remote.NewItem) (*remote.Item, error) {
	payload := map[string]any{
		"project":     projectID,
		"subject":     item.Subject,
		"description": item.Description,
	}

	// Issues carry priority and an initial workflow status; user stories
	// start in the board's default column.
	if kind == link.TicketIssue && item.StatusName != "" {
		statuses, err := c.ListStatuses(ctx, projectID, kind)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", kind, err)
		}
		for _, s := range statuses {
			if s.Name == item.StatusName {
				payload["status"] = s.ID
				break
			}
		}
	}
	if kind == link.TicketIssue && item.Priority != "" {
		if id, err := c.priorityID(ctx, projectID, item.Priority); err == nil && id != 0 {
			payload["priority"] = id
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/"+kindPath(kind), data)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	var created remote.Item
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse created %s: %w", kind, err)
	}
	return &created, nil
}

func (c *Client) GetItemByRef(ctx context.Context, projectID int64, kind link.TicketKind, ref int64) (*remote.Item, error) {
	q := url.Values{
		"project": {fmt.Sprintf("%d", projectID)},
		"ref":     {fmt.Sprintf("%d", ref)},
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/"+kindPath(kind)+"/by_ref?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("get %s ref %d: %w", kind, ref, err)
	}

	var item remote.Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("parse %s ref %d: %w", kind, ref, err)
	}
	return &item, nil
}

func (c *Client) History(ctx context.Context, kind link.TicketKind, itemID int64) ([]remote.HistoryEntry, error) {
	path := fmt.Sprintf("/api/v1/history/%s/%d", historyKind(kind), itemID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("history of %s %d: %w", kind, itemID, err)
	}

	var entries []remote.HistoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse history of %s %d: %w", kind, itemID, err)
	}
	return entries, nil
}

// historyKind maps a ticket kind to the history API's singular resource name.
func historyKind(kind link.TicketKind) string {
	if kind == link.TicketUserStory {
		return "userstory"
	}
	return "issue"
}

// AddComment appends a comment. Taiga models comments as a patch carrying
// the current item version.
func (c *Client) AddComment(ctx context.Context, kind link.TicketKind, item *remote.Item, body string) error {
	data, err := json.Marshal(map[string]any{
		"comment": body,
		"version": item.Version,
	})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}

	path := fmt.Sprintf("/api/v1/%s/%d", kindPath(kind), item.ID)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, data); err != nil {
		return fmt.Errorf("comment on %s %d: %w", kind, item.ID, err)
	}
	return nil
}

func (c *Client) DeleteItem(ctx context.Context, kind link.TicketKind, itemID int64) error {
	path := fmt.Sprintf("/api/v1/%s/%d", kindPath(kind), itemID)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, itemID, err)
	}
	return nil
}

func (c *Client) ListStatuses(ctx context.Context, projectID int64, kind link.TicketKind) ([]remote.Status, error) {
	q := url.Values{"project": {fmt.Sprintf("%d", projectID)}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/"+statusPath(kind)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("list %s statuses: %w", kind, err)
	}

	var statuses []remote.Status
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("parse %s statuses: %w", kind, err)
	}
	return statuses, nil
}

func (c *Client) SetStatus(ctx context.Context, kind link.TicketKind, item *remote.Item, statusID int64) error {
	data, err := json.Marshal(map[string]any{
		"status":  statusID,
		"version": item.Version,
	})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	path := fmt.Sprintf("/api/v1/%s/%d", kindPath(kind), item.ID)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, data); err != nil {
		return fmt.Errorf("set status of %s %d: %w", kind, item.ID, err)
	}
	return nil
}

func (c *Client) ListWebhooks(ctx context.Context, projectID int64) ([]remote.Webhook, error) {
	q := url.Values{"project": {fmt.Sprintf("%d", projectID)}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/webhooks?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}

	var hooks []remote.Webhook
	if err := json.Unmarshal(body, &hooks); err != nil {
		return nil, fmt.Errorf("parse webhooks: %w", err)
	}
	return hooks, nil
}

func (c *Client) CreateWebhook(ctx context.Context, projectID int64, name, hookURL, key string) error {
	data, err := json.Marshal(map[string]any{
		"project": projectID,
		"name":    name,
		"url":     hookURL,
		"key":     key,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/api/v1/webhooks", data); err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

func (c *Client) UpdateWebhook(ctx context.Context, hookID int64, hookURL, key string) error {
	data, err := json.Marshal(map[string]any{
		"url": hookURL,
		"key": key,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook update: %w", err)
	}

	path := fmt.Sprintf("/api/v1/webhooks/%d", hookID)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, data); err != nil {
		return fmt.Errorf("update webhook %d: %w", hookID, err)
	}
	return nil
}

// priorityID resolves a priority display name to its id, or 0 when unknown.
func (c *Client) priorityID(ctx context.Context, projectID int64, name string) (int64, error) {
	q := url.Values{"project": {fmt.Sprintf("%d", projectID)}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/priorities?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}

	var priorities []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &priorities); err != nil {
		return 0, err
	}
	for _, p := range priorities {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return 0, nil
}

// doRequest performs an HTTP request with auth, optionally through the
// circuit breaker, and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	call := func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
		case resp.StatusCode >= 400:
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(respBody, 200))
		}
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(ctx, call); err != nil {
			return nil, err
		}
		return respBody, nil
	}
	if err := call(ctx); err != nil {
		return nil, err
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
