package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, c Conn) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		if !ok {
			t.Fatalf("connection closed while waiting for a message")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a message")
	}
	return nil
}

func TestHubFansOutWithinTopic(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(8)
	defer hub.Stop()

	a, err := hub.Join(ctx, PresenceTopic("w1"))
	if err != nil {
		t.Fatalf("join a: %v", err)
	}
	b, err := hub.Join(ctx, PresenceTopic("w1"))
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	other, err := hub.Join(ctx, PresenceTopic("w2"))
	if err != nil {
		t.Fatalf("join other: %v", err)
	}

	if err := a.Publish(ctx, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := receive(t, b); string(got) != "hello" {
		t.Fatalf("b got %q", got)
	}
	if got := receive(t, a); string(got) != "hello" {
		t.Fatalf("publisher should receive its own message, got %q", got)
	}
	select {
	case msg := <-other.Messages():
		t.Fatalf("message leaked across topics: %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubCloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(8)
	defer hub.Stop()

	a, _ := hub.Join(ctx, "t")
	b, _ := hub.Join(ctx, "t")
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Publish(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := a.Publish(ctx, []byte("after")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := receive(t, a); string(got) != "after" {
		t.Fatalf("a got %q", got)
	}
	if _, ok := <-b.Messages(); ok {
		t.Fatalf("closed connection should have a closed channel")
	}
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(1)
	defer hub.Stop()

	slow, _ := hub.Join(ctx, "t")
	for i := 0; i < 5; i++ {
		if err := hub.Broadcast(ctx, "t", []byte{byte(i)}); err != nil {
			t.Fatalf("broadcast %d blocked or failed: %v", i, err)
		}
	}
	if got := receive(t, slow); got[0] != 0 {
		t.Fatalf("expected first message to be kept, got %v", got)
	}
}

func TestHubStopRejectsJoin(t *testing.T) {
	hub := NewHub(1)
	hub.Stop()
	if _, err := hub.Join(context.Background(), "t"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPresenceTopicRoundTrip(t *testing.T) {
	id, ok := WorkspaceFromPresenceTopic(PresenceTopic("w-42"))
	if !ok || id != "w-42" {
		t.Fatalf("unexpected %q %v", id, ok)
	}
	if _, ok := WorkspaceFromPresenceTopic("logs:w-42"); ok {
		t.Fatalf("foreign topic accepted")
	}
}
