// Package service implements the synchronization engine: the task
// dispatcher, the mapping resolver, and the inbound and outbound replay
// pipelines.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	obs "github.com/forgesync/ticketbridge/internal/adapter/otel"
	"github.com/forgesync/ticketbridge/internal/port/messagequeue"
)

// Task names the unit-of-work kinds the dispatcher accepts. The set is
// closed: unknown names are rejected at enqueue and at dispatch.
type Task string

const (
	TaskCreateRemoteTicket  Task = "create-remote-ticket"
	TaskAddRemoteComment    Task = "add-remote-comment"
	TaskDeleteRemoteTicket  Task = "delete-remote-ticket"
	TaskUpdateRemoteStatus  Task = "update-remote-status"
	TaskInboundCreate       Task = "inbound-create"
	TaskInboundAddComment   Task = "inbound-add-comment"
	TaskInboundUpdateStatus Task = "inbound-update-status"
	TaskInboundDelete       Task = "inbound-delete"
)

var knownTasks = map[Task]struct{}{
	TaskCreateRemoteTicket:  {},
	TaskAddRemoteComment:    {},
	TaskDeleteRemoteTicket:  {},
	TaskUpdateRemoteStatus:  {},
	TaskInboundCreate:       {},
	TaskInboundAddComment:   {},
	TaskInboundUpdateStatus: {},
	TaskInboundDelete:       {},
}

// TaskHandler executes one unit of work. The payload is the envelope's raw
// payload; handlers own their own decoding.
type TaskHandler func(ctx context.Context, payload json.RawMessage) error

// Dispatcher routes enqueued units of work to their handlers over the
// durable queue. Delivery is at-least-once with no ordering guarantee and
// no retry on handler failure; handler idempotency is the sole defense
// against duplicate effects.
type Dispatcher struct {
	queue    messagequeue.Queue
	metrics  *obs.Metrics
	handlers map[Task]TaskHandler
	cancels  []func()
}

// NewDispatcher creates a Dispatcher on the given queue. metrics may be nil.
func NewDispatcher(queue messagequeue.Queue, metrics *obs.Metrics) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		metrics:  metrics,
		handlers: make(map[Task]TaskHandler),
	}
}

// Register binds a handler to a task. Must be called before Start.
func (d *Dispatcher) Register(task Task, h TaskHandler) error {
	if _, ok := knownTasks[task]; !ok {
		return fmt.Errorf("unknown task %q", task)
	}
	if _, dup := d.handlers[task]; dup {
		return fmt.Errorf("task %q already registered", task)
	}
	d.handlers[task] = h
	return nil
}

// Enqueue publishes one fire-and-forget unit of work. The payload is
// marshaled into the task envelope under a fresh id so redeliveries of the
// same unit are traceable in logs.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task, payload any) error {
	if _, ok := knownTasks[task]; !ok {
		return fmt.Errorf("unknown task %q", task)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for task %s: %w", task, err)
	}

	env := messagequeue.Envelope{
		ID:      uuid.NewString(),
		Task:    string(task),
		Payload: data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope for task %s: %w", task, err)
	}

	subject := subjectFor(task)
	if err := d.queue.Publish(ctx, subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	slog.Debug("task enqueued", "task", task, "task_id", env.ID)
	return nil
}

// Start creates one durable subscription per registered task. Stop cancels
// them.
func (d *Dispatcher) Start(ctx context.Context) error {
	for task := range d.handlers {
		cancel, err := d.queue.Subscribe(ctx, subjectFor(task), d.dispatch)
		if err != nil {
			d.Stop()
			return fmt.Errorf("subscribe %s: %w", subjectFor(task), err)
		}
		d.cancels = append(d.cancels, cancel)
	}
	return nil
}

// Stop cancels all task subscriptions.
func (d *Dispatcher) Stop() {
	for _, cancel := range d.cancels {
		cancel()
	}
	d.cancels = nil
}

func (d *Dispatcher) dispatch(ctx context.Context, subject string, data []byte) error {
	var env messagequeue.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope on %s: %w", subject, err)
	}

	h, ok := d.handlers[Task(env.Task)]
	if !ok {
		return fmt.Errorf("unknown task %q on %s", env.Task, subject)
	}

	ctx, span := obs.StartTaskSpan(ctx, env.Task, env.ID)
	defer span.End()

	start := time.Now()
	if err := h(ctx, env.Payload); err != nil {
		d.metrics.RecordFailed(ctx, env.Task)
		return fmt.Errorf("task %s (%s): %w", env.Task, env.ID, err)
	}
	d.metrics.RecordExecuted(ctx, env.Task, time.Since(start))
	return nil
}

func subjectFor(task Task) string {
	return messagequeue.SubjectTaskPrefix + "." + string(task)
}
