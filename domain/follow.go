package domain

import (
	"time"

	"github.com/google/uuid"
)

// FollowKey is the composite identity of a follow relationship.
type FollowKey struct {
	FollowerId  uuid.UUID `json:"followerId"`
	FollowingId uuid.UUID `json:"followingId"`
}

// Follow records that FollowerId follows FollowingId. Existence alone is the
// state: a row is only written once the relationship is accepted (inbound
// follows from remote actors are accepted immediately, outbound follows on
// receipt of the matching Accept). The pair is unique.
type Follow struct {
	FollowKey
	URI       string // Follow activity URI, empty for local-only follows
	CreatedAt time.Time
}

// FollowRequest is an outbound follow awaiting its Accept. It is the
// correlation record for the user path of inbound Accepts: an Accept that
// resolves to no request is a duplicate or out-of-order delivery and is
// dropped.
type FollowRequest struct {
	FollowKey
	URI       string
	CreatedAt time.Time
}

const (
	EventFollowRequested = "follow.requested"
	EventFollowAccepted  = "follow.accepted"
	EventFollowRemoved   = "follow.removed"
)

func (k FollowKey) String() string {
	return k.FollowerId.String() + ":" + k.FollowingId.String()
}

func (r *FollowRequest) RequestedEvent() Event {
	return NewEvent(AggregateFollow, r.FollowKey.String(), EventFollowRequested, r, r.FollowKey)
}

// Accepted converts the request into the existence-state relationship.
func (r *FollowRequest) Accepted(now time.Time) *Follow {
	return &Follow{FollowKey: r.FollowKey, URI: r.URI, CreatedAt: now}
}

func (f *Follow) AcceptedEvent() Event {
	return NewEvent(AggregateFollow, f.FollowKey.String(), EventFollowAccepted, f, f.FollowKey)
}

func (f *Follow) RemovedEvent() Event {
	return NewRemovalEvent(AggregateFollow, f.FollowKey.String(), EventFollowRemoved, f.FollowKey)
}
