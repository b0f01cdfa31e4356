package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

// InboxStore is everything the inbound dispatcher needs from storage.
type InboxStore interface {
	ActorStore
	ReadActorById(id uuid.UUID) (*domain.Actor, error)
	DeleteActor(id uuid.UUID) error

	ReadPostByURI(uri string) (*domain.Post, error)
	ReadPostById(id uuid.UUID) (*domain.Post, error)
	CreatePost(post *domain.Post, images []domain.PostImage, preview *domain.LinkPreview, item *domain.TimelineItem) error
	SoftDeletePost(post *domain.Post, now time.Time) error

	CreateLike(like *domain.Like) error
	DeleteLike(actorId, postId uuid.UUID) error
	CreateReaction(reaction *domain.Reaction) error
	DeleteReaction(actorId, postId uuid.UUID, emoji string) error

	AddTimelineItem(item *domain.TimelineItem) error
	RemoveRepostItem(actorId, postId uuid.UUID) error
	AddFederatedItem(item *domain.FederatedTimelineItem) error

	CreateFollow(follow *domain.Follow) error
	DeleteFollow(key domain.FollowKey) error
	ReadFollowers(actorId uuid.UUID) ([]uuid.UUID, error)
}

// Notifier receives the social events that fan out into notifications.
type Notifier interface {
	FollowCreated(recipientId, actorId uuid.UUID) error
	FollowRemoved(recipientId, actorId uuid.UUID) error
	LikeCreated(recipientId, actorId, postId uuid.UUID) error
	LikeRemoved(recipientId, actorId, postId uuid.UUID) error
	ReplyCreated(recipientId, actorId, postId uuid.UUID) error
	RepostCreated(recipientId, actorId, postId uuid.UUID) error
	RepostRemoved(recipientId, actorId, postId uuid.UUID) error
	ReactionCreated(recipientId, actorId, postId uuid.UUID, emoji string) error
	ReactionRemoved(recipientId, actorId, postId uuid.UUID, emoji string) error
}

// Inbox dispatches verified inbound activities to their handlers. Activities
// arrive at least once: anything already applied, stale, or unresolvable is
// logged and dropped rather than errored, so peers don't retry forever.
type Inbox struct {
	store      InboxStore
	actors     *ActorService
	relays     *RelayService
	correlator *Correlator
	notifier   Notifier
	transport  Transport
	addr       Addresses
	now        func() time.Time
}

func NewInbox(store InboxStore, actors *ActorService, relays *RelayService, correlator *Correlator, notifier Notifier, transport Transport, addr Addresses) *Inbox {
	return &Inbox{
		store:      store,
		actors:     actors,
		relays:     relays,
		correlator: correlator,
		notifier:   notifier,
		transport:  transport,
		addr:       addr,
		now:        time.Now,
	}
}

// Handle parses and dispatches one inbound activity.
func (in *Inbox) Handle(ctx context.Context, body []byte) error {
	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return fmt.Errorf("invalid activity: %w", err)
	}
	if activity.Actor == "" {
		return fmt.Errorf("activity missing actor")
	}

	log.Info("inbox: received activity", "type", activity.Type, "actor", activity.Actor)

	switch activity.Type {
	case TypeFollow:
		return in.handleFollow(ctx, &activity)
	case TypeAccept:
		return in.correlator.HandleAccept(ctx, &activity)
	case TypeUndo:
		return in.handleUndo(ctx, &activity)
	case TypeCreate:
		return in.handleCreate(ctx, &activity)
	case TypeLike:
		return in.handleLike(ctx, &activity)
	case TypeEmojiReact:
		return in.handleReaction(ctx, &activity)
	case TypeAnnounce:
		return in.handleAnnounce(ctx, &activity)
	case TypeDelete:
		return in.handleDelete(ctx, &activity)
	default:
		log.Info("inbox: unsupported activity type, dropping", "type", activity.Type)
		return nil
	}
}

// handleFollow processes a remote actor following a local user. Inbound
// follows are accepted immediately: the existence row is written and an
// Accept is sent back, signed as the followed user.
func (in *Inbox) handleFollow(ctx context.Context, activity *Activity) error {
	follower, err := in.actors.GetOrFetch(ctx, activity.Actor)
	if err != nil {
		return err
	}

	targetURI := activity.ObjectURI()
	target, err := in.store.ReadActorByURI(targetURI)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("inbox: follow for unknown target, dropping", "target", targetURI)
			return nil
		}
		return err
	}
	if !target.Local {
		log.Info("inbox: follow target is not local, dropping", "target", targetURI)
		return nil
	}

	follow := &domain.Follow{
		FollowKey: domain.FollowKey{FollowerId: follower.Id, FollowingId: target.Id},
		URI:       activity.ID,
		CreatedAt: in.now(),
	}
	if err := in.store.CreateFollow(follow); err != nil {
		if domain.IsConflict(err) {
			log.Info("inbox: already following, resending accept", "follower", follower.Handle())
		} else {
			return err
		}
	} else {
		if err := in.notifier.FollowCreated(target.Id, follower.Id); err != nil {
			log.Warn("inbox: follow notification failed", "err", err)
		}
	}

	accept := NewAccept(in.addr.ActivityURI(uuid.New()), target.ActorURI, &FollowObject{
		ID:     activity.ID,
		Actor:  follower.ActorURI,
		Object: target.ActorURI,
	})
	return in.transport.Send(ctx, target.Username, follower.InboxURI, accept)
}

func (in *Inbox) handleUndo(ctx context.Context, activity *Activity) error {
	var obj struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(activity.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse undo object: %w", err)
	}

	actor, err := in.store.ReadActorByURI(activity.Actor)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("inbox: undo from unknown actor, dropping", "actor", activity.Actor)
			return nil
		}
		return err
	}

	switch obj.Type {
	case TypeFollow:
		target, err := in.store.ReadActorByURI(obj.Object)
		if err != nil {
			if domain.IsNotFound(err) {
				log.Info("inbox: undo follow for unknown target, dropping", "target", obj.Object)
				return nil
			}
			return err
		}
		key := domain.FollowKey{FollowerId: actor.Id, FollowingId: target.Id}
		if err := in.store.DeleteFollow(key); err != nil {
			return err
		}
		if err := in.notifier.FollowRemoved(target.Id, actor.Id); err != nil {
			log.Warn("inbox: follow notification removal failed", "err", err)
		}
		log.Info("inbox: follow removed", "follower", actor.Handle())
		return nil

	case TypeLike:
		post, ok := in.findPost(obj.Object)
		if !ok {
			return nil
		}
		if err := in.store.DeleteLike(actor.Id, post.Id); err != nil {
			return err
		}
		if recipient, ok := in.localRecipient(post.ActorId); ok {
			if err := in.notifier.LikeRemoved(recipient, actor.Id, post.Id); err != nil {
				log.Warn("inbox: like notification removal failed", "err", err)
			}
		}
		return nil

	case TypeAnnounce:
		post, ok := in.findPost(obj.Object)
		if !ok {
			return nil
		}
		if err := in.store.RemoveRepostItem(actor.Id, post.Id); err != nil {
			return err
		}
		if recipient, ok := in.localRecipient(post.ActorId); ok {
			if err := in.notifier.RepostRemoved(recipient, actor.Id, post.Id); err != nil {
				log.Warn("inbox: repost notification removal failed", "err", err)
			}
		}
		return nil

	default:
		log.Info("inbox: unsupported undo object type, dropping", "type", obj.Type)
		return nil
	}
}

// handleCreate processes an inbound post. Posts from an accepted relay peer
// are admitted into the public federated feed; posts from a followed actor
// land on their author's timeline. Anything else is dropped.
func (in *Inbox) handleCreate(ctx context.Context, activity *Activity) error {
	note, err := activity.Note()
	if err != nil {
		return err
	}
	if note.ID == "" {
		return fmt.Errorf("create without object id")
	}

	relay, err := in.relays.store.ReadRelayByActorURI(activity.Actor)
	if err == nil && relay.Status == domain.RelayAccepted {
		return in.admitFederatedPost(ctx, relay, note)
	}
	if err != nil && !domain.IsNotFound(err) {
		return err
	}

	author, err := in.store.ReadActorByURI(activity.Actor)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("inbox: create from unknown actor, dropping", "actor", activity.Actor)
			return nil
		}
		return err
	}

	followers, err := in.store.ReadFollowers(author.Id)
	if err != nil {
		return err
	}
	if len(followers) == 0 {
		log.Info("inbox: create from unfollowed actor, dropping", "actor", author.Handle())
		return nil
	}

	post := in.remotePost(author.Id, note)
	item := &domain.TimelineItem{
		Id:        uuid.New(),
		Type:      domain.TimelineItemPost,
		ActorId:   author.Id,
		PostId:    post.Id,
		CreatedAt: post.CreatedAt,
	}
	if err := in.store.CreatePost(post, noteImages(post.Id, note), nil, item); err != nil {
		if domain.IsConflict(err) {
			log.Info("inbox: duplicate create, dropping", "uri", note.ID)
			return nil
		}
		return err
	}

	in.notifyReply(author.Id, post)
	log.Info("inbox: post stored", "author", author.Handle(), "uri", note.ID)
	return nil
}

// admitFederatedPost stores a relay-delivered post and its federated feed
// admission. The same post arriving over several relays dedupes at read
// time; arriving twice over one relay is a dropped conflict.
func (in *Inbox) admitFederatedPost(ctx context.Context, relay *domain.Relay, note *NoteObject) error {
	author, err := in.actors.GetOrFetch(ctx, note.AttributedTo)
	if err != nil {
		log.Warn("inbox: cannot resolve relayed post author, dropping", "author", note.AttributedTo, "err", err)
		return nil
	}

	post, err := in.store.ReadPostByURI(note.ID)
	if domain.IsNotFound(err) {
		post = in.remotePost(author.Id, note)
		if err := in.store.CreatePost(post, noteImages(post.Id, note), nil, nil); err != nil && !domain.IsConflict(err) {
			return err
		}
	} else if err != nil {
		return err
	}

	item := &domain.FederatedTimelineItem{
		Id:         uuid.New(),
		PostId:     post.Id,
		RelayId:    relay.Id,
		ReceivedAt: in.now(),
	}
	if err := in.store.AddFederatedItem(item); err != nil {
		if domain.IsConflict(err) {
			log.Info("inbox: duplicate relay delivery, dropping", "uri", note.ID, "relay", relay.Id)
			return nil
		}
		return err
	}
	log.Info("inbox: federated post admitted", "uri", note.ID, "relay", relay.Id)
	return nil
}

func (in *Inbox) handleLike(ctx context.Context, activity *Activity) error {
	actor, err := in.actors.GetOrFetch(ctx, activity.Actor)
	if err != nil {
		return err
	}
	post, ok := in.findPost(activity.ObjectURI())
	if !ok {
		return nil
	}

	like := &domain.Like{
		Id:        uuid.New(),
		ActorId:   actor.Id,
		PostId:    post.Id,
		URI:       activity.ID,
		CreatedAt: in.now(),
	}
	if err := in.store.CreateLike(like); err != nil {
		if domain.IsConflict(err) {
			log.Info("inbox: duplicate like, dropping", "actor", actor.Handle(), "post", post.Id)
			return nil
		}
		return err
	}

	if recipient, ok := in.localRecipient(post.ActorId); ok {
		if err := in.notifier.LikeCreated(recipient, actor.Id, post.Id); err != nil {
			log.Warn("inbox: like notification failed", "err", err)
		}
	}
	return nil
}

func (in *Inbox) handleReaction(ctx context.Context, activity *Activity) error {
	if activity.Content == "" {
		log.Info("inbox: reaction without emoji, dropping", "actor", activity.Actor)
		return nil
	}
	actor, err := in.actors.GetOrFetch(ctx, activity.Actor)
	if err != nil {
		return err
	}
	post, ok := in.findPost(activity.ObjectURI())
	if !ok {
		return nil
	}

	reaction := &domain.Reaction{
		Id:        uuid.New(),
		ActorId:   actor.Id,
		PostId:    post.Id,
		Emoji:     activity.Content,
		URI:       activity.ID,
		CreatedAt: in.now(),
	}
	if err := in.store.CreateReaction(reaction); err != nil {
		if domain.IsConflict(err) {
			log.Info("inbox: duplicate reaction, dropping", "actor", actor.Handle(), "post", post.Id)
			return nil
		}
		return err
	}

	if recipient, ok := in.localRecipient(post.ActorId); ok {
		if err := in.notifier.ReactionCreated(recipient, actor.Id, post.Id, reaction.Emoji); err != nil {
			log.Warn("inbox: reaction notification failed", "err", err)
		}
	}
	return nil
}

func (in *Inbox) handleAnnounce(ctx context.Context, activity *Activity) error {
	actor, err := in.actors.GetOrFetch(ctx, activity.Actor)
	if err != nil {
		return err
	}
	post, ok := in.findPost(activity.ObjectURI())
	if !ok {
		return nil
	}

	item := &domain.TimelineItem{
		Id:        uuid.New(),
		Type:      domain.TimelineItemRepost,
		ActorId:   actor.Id,
		PostId:    post.Id,
		CreatedAt: in.now(),
	}
	if err := in.store.AddTimelineItem(item); err != nil {
		if domain.IsConflict(err) {
			log.Info("inbox: duplicate announce, dropping", "actor", actor.Handle(), "post", post.Id)
			return nil
		}
		return err
	}

	if recipient, ok := in.localRecipient(post.ActorId); ok {
		if err := in.notifier.RepostCreated(recipient, actor.Id, post.Id); err != nil {
			log.Warn("inbox: repost notification failed", "err", err)
		}
	}
	return nil
}

func (in *Inbox) handleDelete(ctx context.Context, activity *Activity) error {
	objectURI := activity.ObjectURI()
	if objectURI == "" {
		return fmt.Errorf("delete without object uri")
	}

	if objectURI == activity.Actor {
		actor, err := in.store.ReadActorByURI(objectURI)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil
			}
			return err
		}
		if actor.Local {
			log.Warn("inbox: refusing remote delete of local actor", "actor", objectURI)
			return nil
		}
		log.Info("inbox: remote actor deleted", "actor", actor.Handle())
		return in.store.DeleteActor(actor.Id)
	}

	post, ok := in.findPost(objectURI)
	if !ok {
		return nil
	}
	sender, err := in.store.ReadActorByURI(activity.Actor)
	if err != nil || sender.Id != post.ActorId {
		log.Info("inbox: delete sender does not own post, dropping", "actor", activity.Actor, "post", post.Id)
		return nil
	}
	if post.DeletedAt != nil {
		return nil
	}
	return in.store.SoftDeletePost(post, in.now())
}

// findPost resolves a post by URI, treating absence as a droppable event
// rather than an error.
func (in *Inbox) findPost(uri string) (*domain.Post, bool) {
	if uri == "" {
		return nil, false
	}
	var post *domain.Post
	var err error
	if id, ok := in.addr.ParsePostURI(uri); ok {
		post, err = in.store.ReadPostById(id)
	} else {
		post, err = in.store.ReadPostByURI(uri)
	}
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("inbox: referenced post unknown, dropping", "uri", uri)
		} else {
			log.Warn("inbox: post lookup failed", "uri", uri, "err", err)
		}
		return nil, false
	}
	return post, true
}

// localRecipient reports whether the post author is a local user who should
// be notified.
func (in *Inbox) localRecipient(actorId uuid.UUID) (uuid.UUID, bool) {
	actor, err := in.store.ReadActorById(actorId)
	if err != nil || !actor.Local {
		return uuid.Nil, false
	}
	return actor.Id, true
}

func (in *Inbox) notifyReply(authorId uuid.UUID, post *domain.Post) {
	if post.InReplyToURI == "" {
		return
	}
	parent, ok := in.findPost(post.InReplyToURI)
	if !ok {
		return
	}
	if recipient, ok := in.localRecipient(parent.ActorId); ok {
		if err := in.notifier.ReplyCreated(recipient, authorId, post.Id); err != nil {
			log.Warn("inbox: reply notification failed", "err", err)
		}
	}
}

func (in *Inbox) remotePost(authorId uuid.UUID, note *NoteObject) *domain.Post {
	return &domain.Post{
		Id:           uuid.New(),
		ActorId:      authorId,
		Content:      note.Content,
		InReplyToURI: note.InReplyTo,
		Local:        false,
		URI:          note.ID,
		CreatedAt:    note.PublishedAt(in.now()),
	}
}

func noteImages(postId uuid.UUID, note *NoteObject) []domain.PostImage {
	var images []domain.PostImage
	for _, att := range note.Attachment {
		if att.Type != "Document" && att.Type != "Image" {
			continue
		}
		images = append(images, domain.PostImage{
			Id:        uuid.New(),
			PostId:    postId,
			URL:       att.URL,
			AltText:   att.Name,
			CreatedAt: time.Now(),
		})
	}
	return images
}
