package domain

import (
	"time"

	"github.com/google/uuid"
)

type TimelineItemType string

const (
	TimelineItemPost   TimelineItemType = "post"
	TimelineItemRepost TimelineItemType = "repost"
)

// TimelineItem is one feed-eligible reference to a post or a repost of a
// post, scoped to the actor who produced it. A repost is a second row
// pointing at the same post with RepostId set.
type TimelineItem struct {
	Id        uuid.UUID
	Type      TimelineItemType
	ActorId   uuid.UUID
	PostId    uuid.UUID
	RepostId  *uuid.UUID // Announce activity id for reposts
	CreatedAt time.Time
	DeletedAt *time.Time
}

// FederatedTimelineItem is one post admitted into the public federated feed
// via a specific relay.
type FederatedTimelineItem struct {
	Id         uuid.UUID
	PostId     uuid.UUID
	RelayId    uuid.UUID
	ReceivedAt time.Time
}

const (
	EventTimelineItemAdded   = "timeline.item.added"
	EventTimelineItemRemoved = "timeline.item.removed"
	EventFederatedItemAdded  = "timeline.federated.added"
)

func (t *TimelineItem) AddedEvent() Event {
	return NewEvent(AggregateTimelineItem, t.Id.String(), EventTimelineItemAdded, t, t)
}

func (t *TimelineItem) RemovedEvent() Event {
	return NewRemovalEvent(AggregateTimelineItem, t.Id.String(), EventTimelineItemRemoved,
		map[string]string{"timelineItemId": t.Id.String()})
}

func (f *FederatedTimelineItem) AddedEvent() Event {
	return NewEvent(AggregateFederatedItem, f.Id.String(), EventFederatedItemAdded, f, f)
}

// PostCounts are the grouped social counts for one post.
type PostCounts struct {
	Likes     int
	Reposts   int
	Reactions int
}

// ReactionSummary is one emoji's tally on a post.
type ReactionSummary struct {
	Emoji string
	Count int
}

// PostView is a fully assembled post for feed rendering: the post plus its
// author, attachments, counts and the requesting actor's own interactions.
type PostView struct {
	Post           Post
	Author         Actor
	Images         []PostImage
	LinkPreview    *LinkPreview
	Counts         PostCounts
	Reactions      []ReactionSummary
	ViewerLiked    bool
	ViewerReposted bool
}

// TimelineEntry is one resolved feed row. Plain posts use {type: post, post};
// reposts wrap the underlying post with the reposting actor's identity.
type TimelineEntry struct {
	Type       TimelineItemType
	Post       PostView
	RepostedBy *Actor
	CreatedAt  time.Time // feed position: the timeline item's timestamp
}
