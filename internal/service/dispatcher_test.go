package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/forgesync/ticketbridge/internal/port/messagequeue"
)

func TestDispatcherRejectsUnknownTask(t *testing.T) {
	d := NewDispatcher(newMockQueue(), nil)

	if err := d.Enqueue(context.Background(), Task("no-such-task"), nil); err == nil {
		t.Fatal("expected enqueue of unknown task to fail")
	}
	if err := d.Register(Task("no-such-task"), func(context.Context, json.RawMessage) error { return nil }); err == nil {
		t.Fatal("expected registration of unknown task to fail")
	}
}

func TestDispatcherEnqueuePublishesEnvelope(t *testing.T) {
	q := newMockQueue()
	d := NewDispatcher(q, nil)

	payload := map[string]int{"ref": 7}
	if err := d.Enqueue(context.Background(), TaskInboundCreate, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := q.published["sync.inbound-create"]
	if len(msgs) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(msgs))
	}

	var env messagequeue.Envelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Task != string(TaskInboundCreate) {
		t.Errorf("task = %q, want %q", env.Task, TaskInboundCreate)
	}
	if env.ID == "" {
		t.Error("expected a non-empty envelope id")
	}

	var got map[string]int
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got["ref"] != 7 {
		t.Errorf("payload ref = %d, want 7", got["ref"])
	}
}

func TestDispatcherRoutesToHandler(t *testing.T) {
	q := newMockQueue()
	d := NewDispatcher(q, nil)

	var got json.RawMessage
	if err := d.Register(TaskInboundDelete, func(_ context.Context, payload json.RawMessage) error {
		got = payload
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	env, _ := json.Marshal(messagequeue.Envelope{
		ID:      "u-1",
		Task:    string(TaskInboundDelete),
		Payload: json.RawMessage(`{"ref":9}`),
	})
	if err := q.deliver(context.Background(), "sync.inbound-delete", env); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if string(got) != `{"ref":9}` {
		t.Errorf("handler payload = %s, want {\"ref\":9}", got)
	}
}

func TestDispatcherRejectsUnknownTaskAtDispatch(t *testing.T) {
	q := newMockQueue()
	d := NewDispatcher(q, nil)

	if err := d.Register(TaskInboundDelete, func(context.Context, json.RawMessage) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	env, _ := json.Marshal(messagequeue.Envelope{
		ID:      "u-2",
		Task:    "create-remote-ticket", // known task, but not registered here
		Payload: json.RawMessage(`{}`),
	})
	if err := q.deliver(context.Background(), "sync.inbound-delete", env); err == nil {
		t.Fatal("expected dispatch of unregistered task to fail")
	}
}
