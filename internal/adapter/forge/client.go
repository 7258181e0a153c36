// Package forge implements the local tracker port against the forge's REST
// API. All replayed actions run under the engine's API token and carry the
// acting username explicitly.
package forge

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
	"github.com/forgesync/ticketbridge/internal/domain/ticket"
	"github.com/forgesync/ticketbridge/internal/resilience"
)

// Client talks to one forge instance.
type Client struct {
	baseURL    string
	token      string
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

// NewClient creates a client for the given forge instance.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) NextTicketID(ctx context.Context, projectID int64) (int64, error) {
	path := fmt.Sprintf("/api/projects/%d/tickets/next-id", projectID)
	body, err := c.doRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return 0, fmt.Errorf("allocate ticket id: %w", err)
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse ticket id: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) CreateTicket(ctx context.Context, projectID int64, t ticket.NewTicket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal ticket: %w", err)
	}

	path := fmt.Sprintf("/api/projects/%d/tickets", projectID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, data); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (c *Client) GetTicket(ctx context.Context, projectID, ticketID int64) (*ticket.Ticket, error) {
	path := fmt.Sprintf("/api/projects/%d/tickets/%d", projectID, ticketID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", ticketID, err)
	}

	var t ticket.Ticket
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("parse ticket %d: %w", ticketID, err)
	}
	return &t, nil
}

func (c *Client) AddComment(ctx context.Context, projectID, ticketID int64, body, user string) error {
	data, err := json.Marshal(map[string]string{
		"comment": body,
		"user":    user,
	})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}

	path := fmt.Sprintf("/api/projects/%d/tickets/%d/comments", projectID, ticketID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, data); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (c *Client) ListProjectTags(ctx context.Context, projectID int64) ([]ticket.Tag, error) {
	path := fmt.Sprintf("/api/projects/%d/tags", projectID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("list project tags: %w", err)
	}

	var tags []ticket.Tag
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("parse project tags: %w", err)
	}
	return tags, nil
}

func (c *Client) CreateProjectTag(ctx context.Context, projectID int64, name, color string) error {
	data, err := json.Marshal(ticket.Tag{Name: name, Color: color})
	if err != nil {
		return fmt.Errorf("marshal tag: %w", err)
	}

	path := fmt.Sprintf("/api/projects/%d/tags", projectID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, data); err != nil {
		return fmt.Errorf("create project tag %q: %w", name, err)
	}
	return nil
}

func (c *Client) SetTicketTags(ctx context.Context, projectID, ticketID int64, tags []string, user string) ([]string, error) {
	data, err := json.Marshal(map[string]any{
		"tags": tags,
		"user": user,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	path := fmt.Sprintf("/api/projects/%d/tickets/%d/tags", projectID, ticketID)
	body, err := c.doRequest(ctx, http.MethodPut, path, data)
	if err != nil {
		return nil, fmt.Errorf("set ticket tags: %w", err)
	}

	var resp struct {
		Messages []string `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse tag messages: %w", err)
	}
	return resp.Messages, nil
}

func (c *Client) NotifyMetadataChange(ctx context.Context, projectID, ticketID int64, messages []string, user string) error {
	data, err := json.Marshal(map[string]any{
		"messages": messages,
		"user":     user,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	path := fmt.Sprintf("/api/projects/%d/tickets/%d/notify", projectID, ticketID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, data); err != nil {
		return fmt.Errorf("notify metadata change: %w", err)
	}
	return nil
}

func (c *Client) DeleteTicket(ctx context.Context, projectID, ticketID int64, user string) error {
	q := url.Values{"user": {user}}
	path := fmt.Sprintf("/api/projects/%d/tickets/%d?%s", projectID, ticketID, q.Encode())
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("delete ticket %d: %w", ticketID, err)
	}
	return nil
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
		req.Header.Set("Authorization", "token "+c.token)
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
		case resp.StatusCode == http.StatusConflict:
			return fmt.Errorf("%s %s: %w", method, path, domain.ErrConflict)
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
