package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgesync/ticketbridge/internal/domain/webhook"
)

// AckOK is the fixed acknowledgement returned for every accepted delivery.
// The remote tracker only checks for a 2xx; the body is informational.
const AckOK = "all good"

// WebhookDispatcher turns remote webhook deliveries into inbound tasks.
type WebhookDispatcher struct {
	dispatcher *Dispatcher
	settle     time.Duration
}

// NewWebhookDispatcher creates the dispatcher front of the inbound
// pipeline. settle is the delay imposed before processing each delivery to
// reduce reactions to echoes of the engine's own outbound writes.
func NewWebhookDispatcher(d *Dispatcher, settle time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{dispatcher: d, settle: settle}
}

// HandleDelivery parses one webhook body and enqueues the matching inbound
// task. Deliveries that match no table entry are logged and acknowledged;
// the remote tracker retries nothing either way.
func (w *WebhookDispatcher) HandleDelivery(ctx context.Context, body []byte) (string, error) {
	if w.settle > 0 {
		select {
		case <-time.After(w.settle):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var ev webhook.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("decode webhook body: %w", err)
	}

	task, ok := w.route(&ev)
	if !ok {
		return AckOK, nil
	}

	if err := w.dispatcher.Enqueue(ctx, task, &ev); err != nil {
		return "", err
	}
	return AckOK, nil
}

// route picks the inbound task for a delivery, or none for the
// ignored-and-logged cases.
func (w *WebhookDispatcher) route(ev *webhook.Event) (Task, bool) {
	switch ev.Action {
	case webhook.ActionCreate:
		return TaskInboundCreate, true

	case webhook.ActionChange:
		if c := ev.Change; c != nil && c.Comment != "" {
			if c.DeleteCommentDate != nil {
				slog.Info("ignoring deleted comment", "remote_ref", ev.Data.Ref)
				return "", false
			}
			if c.EditCommentDate != nil {
				slog.Info("ignoring edited comment", "remote_ref", ev.Data.Ref)
				return "", false
			}
			return TaskInboundAddComment, true
		}
		if ev.Change.StatusDiffOf() != nil {
			return TaskInboundUpdateStatus, true
		}
		slog.Info("ignoring change with neither comment nor status diff",
			"remote_ref", ev.Data.Ref)
		return "", false

	case webhook.ActionDelete:
		return TaskInboundDelete, true

	default:
		slog.Info("ignoring unknown webhook action", "action", ev.Action)
		return "", false
	}
}

// webhookHandler adapts a typed inbound handler to the dispatcher's raw
// payload signature.
func webhookHandler(h func(context.Context, *webhook.Event) error) TaskHandler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var ev webhook.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode webhook event: %w", err)
		}
		return h(ctx, &ev)
	}
}
