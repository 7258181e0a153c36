package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errRemote = errors.New("remote down")

func failing(context.Context) error { return errRemote }
func succeeding(context.Context) error { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	ctx := context.Background()

	for range 3 {
		if err := b.Execute(ctx, failing); !errors.Is(err, errRemote) {
			t.Fatalf("expected remote error, got %v", err)
		}
	}

	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	if err := b.Execute(ctx, failing); !errors.Is(err, errRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	// After the timeout the breaker allows a probe; success closes it.
	now = now.Add(2 * time.Minute)
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	now = now.Add(2 * time.Minute)

	if err := b.Execute(ctx, failing); !errors.Is(err, errRemote) {
		t.Fatalf("expected remote error on probe, got %v", err)
	}
	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}
