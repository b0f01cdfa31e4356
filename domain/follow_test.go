package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFollowKeyString(t *testing.T) {
	follower := uuid.New()
	following := uuid.New()
	key := FollowKey{FollowerId: follower, FollowingId: following}

	expected := follower.String() + ":" + following.String()
	if key.String() != expected {
		t.Errorf("Expected key %s, got %s", expected, key.String())
	}
}

func TestFollowRequestAccepted(t *testing.T) {
	req := &FollowRequest{
		FollowKey: FollowKey{FollowerId: uuid.New(), FollowingId: uuid.New()},
		URI:       "https://example.com/activities/abc",
		CreatedAt: time.Now().Add(-time.Hour),
	}
	now := time.Now()

	follow := req.Accepted(now)
	if follow.FollowKey != req.FollowKey {
		t.Error("Accepted follow should keep the request's key")
	}
	if follow.URI != req.URI {
		t.Errorf("Expected URI %s, got %s", req.URI, follow.URI)
	}
	if !follow.CreatedAt.Equal(now) {
		t.Errorf("Expected CreatedAt %v, got %v", now, follow.CreatedAt)
	}
}

func TestFollowEvents(t *testing.T) {
	req := &FollowRequest{
		FollowKey: FollowKey{FollowerId: uuid.New(), FollowingId: uuid.New()},
		URI:       "https://example.com/activities/abc",
		CreatedAt: time.Now(),
	}

	ev := req.RequestedEvent()
	if ev.EventName != EventFollowRequested {
		t.Errorf("Expected event %s, got %s", EventFollowRequested, ev.EventName)
	}
	if ev.AggregateID != req.FollowKey.String() {
		t.Errorf("Expected aggregate id %s, got %s", req.FollowKey.String(), ev.AggregateID)
	}

	follow := req.Accepted(time.Now())
	if ev := follow.AcceptedEvent(); ev.EventName != EventFollowAccepted {
		t.Errorf("Expected event %s, got %s", EventFollowAccepted, ev.EventName)
	}
	if ev := follow.RemovedEvent(); ev.State != nil {
		t.Error("Removal events must carry nil state")
	}
}
