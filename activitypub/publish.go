package activitypub

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/google/uuid"
)

// PublishStore is everything local user actions need from storage.
type PublishStore interface {
	ActorStore
	ReadActorById(id uuid.UUID) (*domain.Actor, error)
	ReadActorsByIds(ids []uuid.UUID) (map[uuid.UUID]domain.Actor, error)
	ReadFollowers(actorId uuid.UUID) ([]uuid.UUID, error)
	ReadFollow(key domain.FollowKey) (*domain.Follow, error)

	CreatePost(post *domain.Post, images []domain.PostImage, preview *domain.LinkPreview, item *domain.TimelineItem) error
	ReadPostById(id uuid.UUID) (*domain.Post, error)
	SoftDeletePost(post *domain.Post, now time.Time) error

	CreateLike(like *domain.Like) error
	DeleteLike(actorId, postId uuid.UUID) error
	CreateReaction(reaction *domain.Reaction) error
	DeleteReaction(actorId, postId uuid.UUID, emoji string) error
	CreateMute(mute *domain.Mute) error
	DeleteMute(actorId, mutedId uuid.UUID) error

	AddTimelineItem(item *domain.TimelineItem) error
	RemoveRepostItem(actorId, postId uuid.UUID) error

	CreateFollow(follow *domain.Follow) error
	CreateFollowRequest(req *domain.FollowRequest) error
	DeleteFollow(key domain.FollowKey) error
}

// Publisher executes local user actions: writing the local state and, where
// a remote party cares, sending the matching activity. Outbound deliveries
// are best-effort; there is no retry queue, a failed send is logged and the
// local state stands.
type Publisher struct {
	store     PublishStore
	actors    *ActorService
	transport Transport
	notifier  Notifier
	addr      Addresses
	now       func() time.Time
}

func NewPublisher(store PublishStore, actors *ActorService, transport Transport, notifier Notifier, addr Addresses) *Publisher {
	return &Publisher{
		store:     store,
		actors:    actors,
		transport: transport,
		notifier:  notifier,
		addr:      addr,
		now:       time.Now,
	}
}

// PublishPost creates a local post with its feed reference and federates a
// Create to the author's remote followers.
func (p *Publisher) PublishPost(ctx context.Context, author *domain.Actor, content, inReplyToURI string, images []domain.PostImage, preview *domain.LinkPreview) (*domain.Post, error) {
	now := p.now()
	post := &domain.Post{
		Id:           uuid.New(),
		ActorId:      author.Id,
		Content:      util.NormalizeInput(content),
		InReplyToURI: inReplyToURI,
		Local:        true,
		UserId:       author.Id,
		CreatedAt:    now,
	}
	for i := range images {
		images[i].PostId = post.Id
	}
	item := &domain.TimelineItem{
		Id:        uuid.New(),
		Type:      domain.TimelineItemPost,
		ActorId:   author.Id,
		PostId:    post.Id,
		CreatedAt: now,
	}
	if err := p.store.CreatePost(post, images, preview, item); err != nil {
		return nil, err
	}
	log.Info("post published", "author", author.Username, "post", post.Id)

	create := NewCreateNote(
		p.addr.ActivityURI(uuid.New()),
		author.ActorURI,
		p.addr.FollowersURI(author.Username),
		p.addr.PostURI(post.Id),
		post.Content,
		now,
	)
	p.fanOut(ctx, author, create)
	return post, nil
}

// DeletePost soft-deletes one of the author's posts.
func (p *Publisher) DeletePost(authorId, postId uuid.UUID) error {
	post, err := p.store.ReadPostById(postId)
	if err != nil {
		return err
	}
	if post.ActorId != authorId {
		return domain.ErrPostNotFound(postId.String())
	}
	if post.DeletedAt != nil {
		return nil
	}
	return p.store.SoftDeletePost(post, p.now())
}

// Like favorites a post, notifying a local author and sending a Like to a
// remote one.
func (p *Publisher) Like(ctx context.Context, viewer *domain.Actor, postId uuid.UUID) error {
	post, err := p.store.ReadPostById(postId)
	if err != nil {
		return err
	}
	like := &domain.Like{Id: uuid.New(), ActorId: viewer.Id, PostId: postId, CreatedAt: p.now()}
	if err := p.store.CreateLike(like); err != nil {
		return err
	}
	p.notifyOrFederate(ctx, viewer, post, func(recipient uuid.UUID) error {
		return p.notifier.LikeCreated(recipient, viewer.Id, postId)
	}, func(author *domain.Actor) any {
		return map[string]any{
			"@context": ContextActivityStreams,
			"id":       p.addr.ActivityURI(like.Id),
			"type":     TypeLike,
			"actor":    viewer.ActorURI,
			"object":   p.objectURIOf(post),
		}
	})
	return nil
}

func (p *Publisher) Unlike(ctx context.Context, viewer *domain.Actor, postId uuid.UUID) error {
	post, err := p.store.ReadPostById(postId)
	if err != nil {
		return err
	}
	if err := p.store.DeleteLike(viewer.Id, postId); err != nil {
		return err
	}
	p.notifyOrFederate(ctx, viewer, post, func(recipient uuid.UUID) error {
		return p.notifier.LikeRemoved(recipient, viewer.Id, postId)
	}, func(author *domain.Actor) any {
		return NewUndo(p.addr.ActivityURI(uuid.New()), viewer.ActorURI, map[string]any{
			"type":   TypeLike,
			"actor":  viewer.ActorURI,
			"object": p.objectURIOf(post),
		})
	})
	return nil
}

// Repost adds a repost reference to the viewer's feed.
func (p *Publisher) Repost(ctx context.Context, viewer *domain.Actor, postId uuid.UUID) error {
	post, err := p.store.ReadPostById(postId)
	if err != nil {
		return err
	}
	item := &domain.TimelineItem{
		Id:        uuid.New(),
		Type:      domain.TimelineItemRepost,
		ActorId:   viewer.Id,
		PostId:    postId,
		CreatedAt: p.now(),
	}
	if err := p.store.AddTimelineItem(item); err != nil {
		return err
	}
	p.notifyOrFederate(ctx, viewer, post, func(recipient uuid.UUID) error {
		return p.notifier.RepostCreated(recipient, viewer.Id, postId)
	}, func(author *domain.Actor) any {
		return map[string]any{
			"@context": ContextActivityStreams,
			"id":       p.addr.ActivityURI(item.Id),
			"type":     TypeAnnounce,
			"actor":    viewer.ActorURI,
			"object":   p.objectURIOf(post),
		}
	})
	return nil
}

func (p *Publisher) Unrepost(ctx context.Context, viewer *domain.Actor, postId uuid.UUID) error {
	post, err := p.store.ReadPostById(postId)
	if err != nil {
		return err
	}
	if err := p.store.RemoveRepostItem(viewer.Id, postId); err != nil {
		return err
	}
	p.notifyOrFederate(ctx, viewer, post, func(recipient uuid.UUID) error {
		return p.notifier.RepostRemoved(recipient, viewer.Id, postId)
	}, nil)
	return nil
}

// React adds an emoji reaction.
func (p *Publisher) React(ctx context.Context, viewer *domain.Actor, postId uuid.UUID, emoji string) error {
	post, err := p.store.ReadPostById(postId)
	if err != nil {
		return err
	}
	reaction := &domain.Reaction{Id: uuid.New(), ActorId: viewer.Id, PostId: postId, Emoji: emoji, CreatedAt: p.now()}
	if err := p.store.CreateReaction(reaction); err != nil {
		return err
	}
	p.notifyOrFederate(ctx, viewer, post, func(recipient uuid.UUID) error {
		return p.notifier.ReactionCreated(recipient, viewer.Id, postId, emoji)
	}, func(author *domain.Actor) any {
		return map[string]any{
			"@context": ContextActivityStreams,
			"id":       p.addr.ActivityURI(reaction.Id),
			"type":     TypeEmojiReact,
			"actor":    viewer.ActorURI,
			"content":  emoji,
			"object":   p.objectURIOf(post),
		}
	})
	return nil
}

func (p *Publisher) Unreact(ctx context.Context, viewer *domain.Actor, postId uuid.UUID, emoji string) error {
	post, err := p.store.ReadPostById(postId)
	if err != nil {
		return err
	}
	if err := p.store.DeleteReaction(viewer.Id, postId, emoji); err != nil {
		return err
	}
	p.notifyOrFederate(ctx, viewer, post, func(recipient uuid.UUID) error {
		return p.notifier.ReactionRemoved(recipient, viewer.Id, postId, emoji)
	}, nil)
	return nil
}

// MuteActor hides an author from the viewer's timelines. Purely local.
func (p *Publisher) MuteActor(viewerId, mutedId uuid.UUID) error {
	mute := &domain.Mute{Id: uuid.New(), ActorId: viewerId, MutedId: mutedId, CreatedAt: p.now()}
	return p.store.CreateMute(mute)
}

func (p *Publisher) UnmuteActor(viewerId, mutedId uuid.UUID) error {
	return p.store.DeleteMute(viewerId, mutedId)
}

// Follow follows a target actor. A local target is followed immediately; a
// remote target gets a pending request and a Follow activity, confirmed
// later by the correlator.
func (p *Publisher) Follow(ctx context.Context, follower *domain.Actor, targetURI string) error {
	target, err := p.actors.GetOrFetch(ctx, targetURI)
	if err != nil {
		return err
	}
	key := domain.FollowKey{FollowerId: follower.Id, FollowingId: target.Id}

	if target.Local {
		follow := &domain.Follow{FollowKey: key, CreatedAt: p.now()}
		if err := p.store.CreateFollow(follow); err != nil {
			return err
		}
		return p.notifier.FollowCreated(target.Id, follower.Id)
	}

	followURI := p.addr.ActivityURI(uuid.New())
	req := &domain.FollowRequest{FollowKey: key, URI: followURI, CreatedAt: p.now()}
	if err := p.store.CreateFollowRequest(req); err != nil {
		if !domain.IsConflict(err) {
			return err
		}
		// Request already pending, resend against it.
		log.Info("follow already requested, resending", "target", target.Handle())
	}
	follow := NewFollow(followURI, follower.ActorURI, target.ActorURI)
	return p.transport.Send(ctx, follower.Username, target.InboxURI, follow)
}

// Unfollow removes the relationship and undoes the Follow at a remote
// target.
func (p *Publisher) Unfollow(ctx context.Context, follower *domain.Actor, targetId uuid.UUID) error {
	target, err := p.store.ReadActorById(targetId)
	if err != nil {
		return err
	}
	key := domain.FollowKey{FollowerId: follower.Id, FollowingId: targetId}

	var followURI string
	if existing, err := p.store.ReadFollow(key); err == nil {
		followURI = existing.URI
	}
	if err := p.store.DeleteFollow(key); err != nil {
		return err
	}

	if target.Local {
		return p.notifier.FollowRemoved(targetId, follower.Id)
	}
	if followURI == "" {
		followURI = p.addr.ActivityURI(uuid.New())
	}
	undo := NewUndo(p.addr.ActivityURI(uuid.New()), follower.ActorURI,
		NewFollow(followURI, follower.ActorURI, target.ActorURI))
	if err := p.transport.Send(ctx, follower.Username, target.InboxURI, undo); err != nil {
		log.Warn("undo follow delivery failed", "target", target.Handle(), "err", err)
	}
	return nil
}

// notifyOrFederate routes an interaction on a post to its author: a local
// author gets a notification, a remote one gets the activity (when one is
// supplied).
func (p *Publisher) notifyOrFederate(ctx context.Context, viewer *domain.Actor, post *domain.Post, notify func(recipient uuid.UUID) error, build func(author *domain.Actor) any) {
	author, err := p.store.ReadActorById(post.ActorId)
	if err != nil {
		log.Warn("post author unresolved", "post", post.Id, "err", err)
		return
	}
	if author.Local {
		if author.Id != viewer.Id {
			if err := notify(author.Id); err != nil {
				log.Warn("notification failed", "recipient", author.Id, "err", err)
			}
		}
		return
	}
	if build == nil {
		return
	}
	if err := p.transport.Send(ctx, viewer.Username, author.InboxURI, build(author)); err != nil {
		log.Warn("activity delivery failed", "inbox", author.InboxURI, "err", err)
	}
}

// fanOut delivers an activity to every remote follower's inbox.
func (p *Publisher) fanOut(ctx context.Context, author *domain.Actor, activity any) {
	followerIds, err := p.store.ReadFollowers(author.Id)
	if err != nil {
		log.Warn("fan-out: failed to read followers", "err", err)
		return
	}
	if len(followerIds) == 0 {
		return
	}
	followers, err := p.store.ReadActorsByIds(followerIds)
	if err != nil {
		log.Warn("fan-out: failed to resolve followers", "err", err)
		return
	}
	for _, follower := range followers {
		if follower.Local || follower.InboxURI == "" {
			continue
		}
		if err := p.transport.Send(ctx, author.Username, follower.InboxURI, activity); err != nil {
			log.Warn("fan-out: delivery failed", "inbox", follower.InboxURI, "err", err)
		}
	}
}

// objectURIOf returns the URI remotes know the post by.
func (p *Publisher) objectURIOf(post *domain.Post) string {
	if post.Local {
		return p.addr.PostURI(post.Id)
	}
	return post.URI
}
