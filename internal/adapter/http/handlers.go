// Package http exposes the engine's HTTP surface: the remote tracker's
// webhook endpoint, the link admin API and health.
package http

import (
	"io"
	"net/http"

	"github.com/forgesync/ticketbridge/internal/adapter/ws"
	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/port/messagequeue"
	"github.com/forgesync/ticketbridge/internal/service"
)

// Handlers bundles the HTTP handlers and their collaborators.
type Handlers struct {
	webhooks *service.WebhookDispatcher
	links    *service.LinkService
	hub      *ws.Hub
	queue    messagequeue.Queue
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(webhooks *service.WebhookDispatcher, links *service.LinkService, hub *ws.Hub, queue messagequeue.Queue) *Handlers {
	return &Handlers{webhooks: webhooks, links: links, hub: hub, queue: queue}
}

// HandleWebhook receives a delivery from the remote tracker. The remote
// side ignores the response body; errors still return 5xx for operator
// visibility.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, bodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	ack, err := h.webhooks.HandleDelivery(r.Context(), body)
	if err != nil {
		writeDomainError(w, err, "delivery not processed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(ack))
}

// linkResponse is a ProjectLink with the auth token redacted.
type linkResponse struct {
	ID                int64            `json:"id"`
	LocalProjectID    int64            `json:"local_project_id"`
	RemoteBaseURL     string           `json:"remote_base_url"`
	RemoteProjectSlug string           `json:"remote_project_slug"`
	RemoteProjectKind link.ProjectKind `json:"remote_project_kind"`
	RemoteProjectID   int64            `json:"remote_project_id"`
}

func redactLink(l *link.ProjectLink) linkResponse {
	return linkResponse{
		ID:                l.ID,
		LocalProjectID:    l.LocalProjectID,
		RemoteBaseURL:     l.RemoteBaseURL,
		RemoteProjectSlug: l.RemoteProjectSlug,
		RemoteProjectKind: l.RemoteProjectKind,
		RemoteProjectID:   l.RemoteProjectID,
	}
}

// UpsertLink links a local project to a remote one, validating the remote
// side and registering the callback webhook first.
func (h *Handlers) UpsertLink(w http.ResponseWriter, r *http.Request) {
	localProjectID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}

	req, ok := readJSON[link.UpsertRequest](w, r)
	if !ok {
		return
	}
	req.LocalProjectID = localProjectID
	if req.RemoteBaseURL == "" || req.RemoteProjectSlug == "" {
		writeError(w, http.StatusBadRequest, "remote_base_url and remote_project_slug are required")
		return
	}

	l, err := h.links.Upsert(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "remote project not found")
		return
	}
	writeJSON(w, http.StatusOK, redactLink(l))
}

// GetLink returns the link for a local project, token redacted.
func (h *Handlers) GetLink(w http.ResponseWriter, r *http.Request) {
	localProjectID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}

	l, err := h.links.Get(r.Context(), localProjectID)
	if err != nil {
		writeDomainError(w, err, "link not found")
		return
	}
	writeJSON(w, http.StatusOK, redactLink(l))
}

// ListLinks returns all links, tokens redacted.
func (h *Handlers) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "links not found")
		return
	}
	out := make([]linkResponse, 0, len(links))
	for i := range links {
		out = append(out, redactLink(&links[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteLink removes the link for a local project. Mapping rows cascade.
func (h *Handlers) DeleteLink(w http.ResponseWriter, r *http.Request) {
	localProjectID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}

	if err := h.links.Delete(r.Context(), localProjectID); err != nil {
		writeDomainError(w, err, "link not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports process liveness and queue connectivity.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.queue != nil && !h.queue.IsConnected() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	resp := map[string]any{"status": status}
	if h.hub != nil {
		resp["ws_connections"] = h.hub.ConnectionCount()
	}
	writeJSON(w, code, resp)
}
