package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotifyLike     NotificationKind = "like"
	NotifyFollow   NotificationKind = "follow"
	NotifyReply    NotificationKind = "reply"
	NotifyRepost   NotificationKind = "repost"
	NotifyReaction NotificationKind = "reaction"
)

// Notification is a denormalized row derived from a domain event, keyed by
// the originating activity so duplicate deliveries collapse and undos can
// delete exactly their own notification.
type Notification struct {
	Id          uuid.UUID
	Kind        NotificationKind
	RecipientId uuid.UUID
	ActorId     uuid.UUID  // who triggered it
	PostId      *uuid.UUID // subject post, nil for follows
	Emoji       string     // reaction kind only
	Read        bool
	CreatedAt   time.Time
}

const (
	EventNotificationCreated = "notification.created"
	EventNotificationRemoved = "notification.removed"
)

func (n *Notification) CreatedEvent() Event {
	return NewEvent(AggregateNotification, n.Id.String(), EventNotificationCreated, n, n)
}

func (n *Notification) RemovedEvent() Event {
	return NewRemovalEvent(AggregateNotification, n.Id.String(), EventNotificationRemoved,
		map[string]string{"notificationId": n.Id.String()})
}
