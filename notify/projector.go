// Package notify derives notification rows from social events. It is a
// plain fan-out: each event kind maps to one denormalized row, keyed by the
// originating activity so duplicates collapse and undos delete exactly their
// own notification.
package notify

import (
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

// Store is the notification slice of the storage layer.
type Store interface {
	CreateNotification(n *domain.Notification) error
	DeleteNotification(n *domain.Notification) error
	ReadNotifications(recipientId uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error)
	MarkNotificationsRead(recipientId uuid.UUID) error
	CountUnread(recipientId uuid.UUID) (int, error)
}

type Projector struct {
	store Store
	now   func() time.Time
}

func NewProjector(store Store) *Projector {
	return &Projector{store: store, now: time.Now}
}

func (p *Projector) FollowCreated(recipientId, actorId uuid.UUID) error {
	return p.store.CreateNotification(p.notification(domain.NotifyFollow, recipientId, actorId, nil, ""))
}

func (p *Projector) FollowRemoved(recipientId, actorId uuid.UUID) error {
	return p.store.DeleteNotification(p.notification(domain.NotifyFollow, recipientId, actorId, nil, ""))
}

func (p *Projector) LikeCreated(recipientId, actorId, postId uuid.UUID) error {
	return p.store.CreateNotification(p.notification(domain.NotifyLike, recipientId, actorId, &postId, ""))
}

func (p *Projector) LikeRemoved(recipientId, actorId, postId uuid.UUID) error {
	return p.store.DeleteNotification(p.notification(domain.NotifyLike, recipientId, actorId, &postId, ""))
}

func (p *Projector) ReplyCreated(recipientId, actorId, postId uuid.UUID) error {
	return p.store.CreateNotification(p.notification(domain.NotifyReply, recipientId, actorId, &postId, ""))
}

func (p *Projector) RepostCreated(recipientId, actorId, postId uuid.UUID) error {
	return p.store.CreateNotification(p.notification(domain.NotifyRepost, recipientId, actorId, &postId, ""))
}

func (p *Projector) RepostRemoved(recipientId, actorId, postId uuid.UUID) error {
	return p.store.DeleteNotification(p.notification(domain.NotifyRepost, recipientId, actorId, &postId, ""))
}

func (p *Projector) ReactionCreated(recipientId, actorId, postId uuid.UUID, emoji string) error {
	return p.store.CreateNotification(p.notification(domain.NotifyReaction, recipientId, actorId, &postId, emoji))
}

func (p *Projector) ReactionRemoved(recipientId, actorId, postId uuid.UUID, emoji string) error {
	return p.store.DeleteNotification(p.notification(domain.NotifyReaction, recipientId, actorId, &postId, emoji))
}

// List returns the recipient's notifications, newest first.
func (p *Projector) List(recipientId uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error) {
	return p.store.ReadNotifications(recipientId, onlyUnread, limit)
}

func (p *Projector) MarkAllRead(recipientId uuid.UUID) error {
	return p.store.MarkNotificationsRead(recipientId)
}

func (p *Projector) UnreadCount(recipientId uuid.UUID) (int, error) {
	return p.store.CountUnread(recipientId)
}

func (p *Projector) notification(kind domain.NotificationKind, recipientId, actorId uuid.UUID, postId *uuid.UUID, emoji string) *domain.Notification {
	return &domain.Notification{
		Id:          uuid.New(),
		Kind:        kind,
		RecipientId: recipientId,
		ActorId:     actorId,
		PostId:      postId,
		Emoji:       emoji,
		CreatedAt:   p.now(),
	}
}
