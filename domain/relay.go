package domain

import (
	"time"

	"github.com/google/uuid"
)

type RelayStatus string

const (
	RelayPending  RelayStatus = "pending"
	RelayAccepted RelayStatus = "accepted"
	RelayRejected RelayStatus = "rejected"
)

// Relay is one outbound subscription to a peer relay server. At most one
// relay row exists per actor URI. The lifecycle is pending -> accepted or
// pending -> removed; unsubscribe removes the row entirely regardless of
// status, there is no way back to pending.
type Relay struct {
	Id         uuid.UUID
	ActorURI   string
	InboxURI   string
	Status     RelayStatus
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

const (
	EventRelaySubscribed = "relay.subscribed"
	EventRelayAccepted   = "relay.accepted"
	EventRelayRemoved    = "relay.removed"
)

// RelayAcceptedPayload is the mutation delta for EventRelayAccepted. Mutation
// events carry only what changed; the full snapshot was logged on creation.
type RelayAcceptedPayload struct {
	RelayId    uuid.UUID `json:"relayId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

type RelayRemovedPayload struct {
	RelayId uuid.UUID `json:"relayId"`
}

// NewRelay constructs a pending subscription. Callers must have resolved the
// peer's inbox first: a relay row only exists after a successful lookup.
func NewRelay(actorURI, inboxURI string, now time.Time) Relay {
	return Relay{
		Id:        uuid.New(),
		ActorURI:  actorURI,
		InboxURI:  inboxURI,
		Status:    RelayPending,
		CreatedAt: now,
	}
}

// SubscribedEvent returns the creation event carrying the full snapshot.
func (r *Relay) SubscribedEvent() Event {
	return NewEvent(AggregateRelay, r.Id.String(), EventRelaySubscribed, r, r)
}

// Accept transitions the relay to accepted. Applied to an already-accepted
// relay it is a no-op and reports false; the status never regresses.
func (r *Relay) Accept(now time.Time) (Event, bool) {
	if r.Status == RelayAccepted {
		return Event{}, false
	}
	r.Status = RelayAccepted
	r.AcceptedAt = &now
	payload := RelayAcceptedPayload{RelayId: r.Id, AcceptedAt: now}
	return NewEvent(AggregateRelay, r.Id.String(), EventRelayAccepted, r, payload), true
}

// RemovedEvent returns the hard-removal event. Valid from any status.
func (r *Relay) RemovedEvent() Event {
	payload := RelayRemovedPayload{RelayId: r.Id}
	return NewRemovalEvent(AggregateRelay, r.Id.String(), EventRelayRemoved, payload)
}
