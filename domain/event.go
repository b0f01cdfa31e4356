package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregate names, used as the event log discriminator.
const (
	AggregateRelay         = "relay"
	AggregateFollow        = "follow"
	AggregatePost          = "post"
	AggregateTimelineItem  = "timeline_item"
	AggregateFederatedItem = "federated_timeline_item"
	AggregateLike          = "like"
	AggregateReaction      = "reaction"
	AggregateMute          = "mute"
	AggregateActor         = "actor"
	AggregateNotification  = "notification"
)

// Event is an immutable record of a single aggregate state transition. State
// holds the full post-transition snapshot while the aggregate still exists and
// is nil for removal events. Creation events snapshot the whole aggregate;
// mutation events carry only the changed fields in Payload to keep the log
// small.
//
// Events are written to the append-only event log in the same transaction as
// the denormalized state they describe. The log is an audit trail, never a
// replay source: reads always go against the state tables.
type Event struct {
	EventID       uuid.UUID
	AggregateName string
	AggregateID   string
	EventName     string
	State         json.RawMessage // nil when the aggregate was removed
	Payload       json.RawMessage
	OccurredAt    time.Time
}

// NewEvent records a transition of a still-existing aggregate. state is the
// full post-transition snapshot, payload the transition detail.
func NewEvent(aggregateName, aggregateID, eventName string, state any, payload any) Event {
	return Event{
		EventID:       uuid.New(),
		AggregateName: aggregateName,
		AggregateID:   aggregateID,
		EventName:     eventName,
		State:         mustMarshal(state),
		Payload:       mustMarshal(payload),
		OccurredAt:    time.Now(),
	}
}

// NewRemovalEvent records the removal of an aggregate. No state snapshot is
// kept, the payload usually carries just the id.
func NewRemovalEvent(aggregateName, aggregateID, eventName string, payload any) Event {
	return Event{
		EventID:       uuid.New(),
		AggregateName: aggregateName,
		AggregateID:   aggregateID,
		EventName:     eventName,
		Payload:       mustMarshal(payload),
		OccurredAt:    time.Now(),
	}
}

// Resolver reads the current state of an aggregate by its key. Resolvers never
// write.
type Resolver[K any, A any] interface {
	Resolve(ctx context.Context, key K) (*A, error)
}

// Store appends one or more domain events and denormalizes the resulting state
// into the queryable tables within a single transaction. Each aggregate's
// store is the sole writer of its state table.
type Store interface {
	Append(ctx context.Context, events ...Event) error
}

func mustMarshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return b
}
