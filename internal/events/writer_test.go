package events

import (
	"context"
	"testing"
)

func TestActorFrom(t *testing.T) {
	ctx := context.Background()
	if got := ActorFrom(ctx); got != "local-user" {
		t.Fatalf("expected local-user, got %s", got)
	}
	if got := ActorFrom(WithActor(ctx, "dana")); got != "dana" {
		t.Fatalf("expected dana, got %s", got)
	}
	if got := ActorFrom(WithActor(ctx, "")); got != "local-user" {
		t.Fatalf("expected blank actor to fall back, got %s", got)
	}
}

func TestRecordWithoutRecorder(t *testing.T) {
	if err := Record(context.Background(), nil, "agent.created", "agent", "1", nil); err != nil {
		t.Fatalf("expected nil recorder to be a no-op, got %v", err)
	}
}
