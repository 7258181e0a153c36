package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/forgesync/ticketbridge/internal/middleware"
)

// MountRoutes registers all routes on the given chi router. webhookKey
// enables signature verification on the webhook endpoint when non-empty.
func MountRoutes(r chi.Router, h *Handlers, webhookKey string) {
	// Taiga webhook (outside the admin API, signature-verified)
	r.With(middleware.WebhookSignature(webhookKey)).
		Post("/webhook", h.HandleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/links", h.ListLinks)
		r.Put("/projects/{id}/link", h.UpsertLink)
		r.Get("/projects/{id}/link", h.GetLink)
		r.Delete("/projects/{id}/link", h.DeleteLink)
	})

	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}
}
