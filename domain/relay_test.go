package domain

import (
	"testing"
	"time"
)

func TestNewRelayStartsPending(t *testing.T) {
	now := time.Now()
	relay := NewRelay("https://relay.example/actor", "https://relay.example/inbox", now)

	if relay.Status != RelayPending {
		t.Errorf("Expected status pending, got %s", relay.Status)
	}
	if relay.AcceptedAt != nil {
		t.Error("AcceptedAt should be nil on a pending relay")
	}
	if !relay.CreatedAt.Equal(now) {
		t.Errorf("Expected CreatedAt %v, got %v", now, relay.CreatedAt)
	}
}

func TestRelayAccept(t *testing.T) {
	relay := NewRelay("https://relay.example/actor", "https://relay.example/inbox", time.Now())
	acceptedAt := time.Now().Add(time.Minute)

	ev, ok := relay.Accept(acceptedAt)
	if !ok {
		t.Fatal("Accept on a pending relay should apply")
	}
	if relay.Status != RelayAccepted {
		t.Errorf("Expected status accepted, got %s", relay.Status)
	}
	if relay.AcceptedAt == nil || !relay.AcceptedAt.Equal(acceptedAt) {
		t.Errorf("Expected AcceptedAt %v, got %v", acceptedAt, relay.AcceptedAt)
	}
	if ev.EventName != EventRelayAccepted {
		t.Errorf("Expected event %s, got %s", EventRelayAccepted, ev.EventName)
	}
	if ev.State == nil {
		t.Error("Accepted event should carry the relay state")
	}
}

func TestRelayAcceptIsIdempotent(t *testing.T) {
	relay := NewRelay("https://relay.example/actor", "https://relay.example/inbox", time.Now())
	first := time.Now().Add(time.Minute)

	if _, ok := relay.Accept(first); !ok {
		t.Fatal("First Accept should apply")
	}
	if _, ok := relay.Accept(first.Add(time.Hour)); ok {
		t.Error("Second Accept should be a no-op")
	}
	if !relay.AcceptedAt.Equal(first) {
		t.Errorf("AcceptedAt changed on duplicate Accept: got %v, want %v", relay.AcceptedAt, first)
	}
}

func TestRelayRemovedEvent(t *testing.T) {
	relay := NewRelay("https://relay.example/actor", "https://relay.example/inbox", time.Now())

	ev := relay.RemovedEvent()
	if ev.EventName != EventRelayRemoved {
		t.Errorf("Expected event %s, got %s", EventRelayRemoved, ev.EventName)
	}
	if ev.State != nil {
		t.Error("Removal events must carry nil state")
	}

	// Removal is also valid after acceptance.
	relay.Accept(time.Now())
	ev = relay.RemovedEvent()
	if ev.State != nil {
		t.Error("Removal events must carry nil state")
	}
}
