package domain

import (
	"time"

	"github.com/google/uuid"
)

// Post is a published note, local or remote. Exactly one of UserId (local)
// or URI (remote) is set; Local discriminates. Posts are soft-deleted: the
// row keeps its URI resolvable for thread reconstruction and is filtered out
// at read time.
type Post struct {
	Id           uuid.UUID
	ActorId      uuid.UUID
	Content      string
	InReplyToURI string
	Local        bool
	UserId       uuid.UUID // local variant: owning account
	URI          string    // remote variant: object URI
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

const (
	EventPostCreated = "post.created"
	EventPostDeleted = "post.deleted"
)

type PostDeletedPayload struct {
	PostId    uuid.UUID `json:"postId"`
	DeletedAt time.Time `json:"deletedAt"`
}

func (p *Post) CreatedEvent() Event {
	return NewEvent(AggregatePost, p.Id.String(), EventPostCreated, p, p)
}

// DeletedEvent marks the soft delete. The aggregate still exists (the row is
// retained), so the event carries the post-transition snapshot.
func (p *Post) DeletedEvent(now time.Time) Event {
	p.DeletedAt = &now
	payload := PostDeletedPayload{PostId: p.Id, DeletedAt: now}
	return NewEvent(AggregatePost, p.Id.String(), EventPostDeleted, p, payload)
}

// PostImage is an attachment on a post.
type PostImage struct {
	Id        uuid.UUID
	PostId    uuid.UUID
	URL       string
	AltText   string
	CreatedAt time.Time
}

// LinkPreview is a fetched preview card for the first link in a post.
type LinkPreview struct {
	Id          uuid.UUID
	PostId      uuid.UUID
	URL         string
	Title       string
	Description string
	ImageURL    string
	CreatedAt   time.Time
}

// Like is a favorite on a post, unique per {actor, post}.
type Like struct {
	Id        uuid.UUID
	ActorId   uuid.UUID
	PostId    uuid.UUID
	URI       string // Like activity URI for remote likes
	CreatedAt time.Time
}

const (
	EventLikeCreated = "like.created"
	EventLikeRemoved = "like.removed"
)

func (l *Like) key() string { return l.ActorId.String() + ":" + l.PostId.String() }

func (l *Like) CreatedEvent() Event {
	return NewEvent(AggregateLike, l.key(), EventLikeCreated, l, l)
}

func (l *Like) RemovedEvent() Event {
	return NewRemovalEvent(AggregateLike, l.key(), EventLikeRemoved, map[string]string{"likeId": l.Id.String()})
}

// Reaction is an emoji reaction on a post, unique per {actor, post, emoji}.
type Reaction struct {
	Id        uuid.UUID
	ActorId   uuid.UUID
	PostId    uuid.UUID
	Emoji     string
	URI       string
	CreatedAt time.Time
}

const (
	EventReactionCreated = "reaction.created"
	EventReactionRemoved = "reaction.removed"
)

func (r *Reaction) key() string {
	return r.ActorId.String() + ":" + r.PostId.String() + ":" + r.Emoji
}

func (r *Reaction) CreatedEvent() Event {
	return NewEvent(AggregateReaction, r.key(), EventReactionCreated, r, r)
}

func (r *Reaction) RemovedEvent() Event {
	return NewRemovalEvent(AggregateReaction, r.key(), EventReactionRemoved, map[string]string{"reactionId": r.Id.String()})
}

// Mute hides MutedId's posts from ActorId's timelines. Unique pair.
type Mute struct {
	Id        uuid.UUID
	ActorId   uuid.UUID
	MutedId   uuid.UUID
	CreatedAt time.Time
}

const (
	EventMuteCreated = "mute.created"
	EventMuteRemoved = "mute.removed"
)

func (m *Mute) key() string { return m.ActorId.String() + ":" + m.MutedId.String() }

func (m *Mute) CreatedEvent() Event {
	return NewEvent(AggregateMute, m.key(), EventMuteCreated, m, m)
}

func (m *Mute) RemovedEvent() Event {
	return NewRemovalEvent(AggregateMute, m.key(), EventMuteRemoved, map[string]string{"muteId": m.Id.String()})
}
