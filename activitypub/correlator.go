package activitypub

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/domain"
)

// FollowStore is the follow-correlation slice of the storage layer.
type FollowStore interface {
	ReadFollowRequest(key domain.FollowKey) (*domain.FollowRequest, error)
	AcceptFollowRequest(follow *domain.Follow) error
}

// Correlator decides what an inbound Accept confirms: a relay subscription
// or an outbound user follow. The sole discriminator is the wrapped Follow's
// actor URI compared against the system actor URI. The transport delivers
// at least once, so Accepts that match nothing are logged and dropped, never
// treated as errors.
type Correlator struct {
	relays  *RelayService
	actors  *ActorService
	follows FollowStore
	addr    Addresses
	now     func() time.Time
}

func NewCorrelator(relays *RelayService, actors *ActorService, follows FollowStore, addr Addresses) *Correlator {
	return &Correlator{relays: relays, actors: actors, follows: follows, addr: addr, now: time.Now}
}

// HandleAccept correlates an inbound Accept and drives the matching state
// transition.
func (c *Correlator) HandleAccept(ctx context.Context, accept *Activity) error {
	follow, err := accept.WrappedFollow()
	if err != nil {
		return err
	}

	if follow.Actor == c.addr.SystemActorURI() {
		return c.acceptRelay(accept)
	}
	return c.acceptFollow(ctx, accept, follow)
}

func (c *Correlator) acceptRelay(accept *Activity) error {
	relay, err := c.relays.store.ReadRelayByActorURI(accept.Actor)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("accept from unknown relay, dropping", "actor", accept.Actor)
			return nil
		}
		return err
	}
	return c.relays.Accept(relay)
}

func (c *Correlator) acceptFollow(ctx context.Context, accept *Activity, follow *FollowObject) error {
	follower, err := c.actors.store.ReadActorByURI(follow.Actor)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("accept for unknown follower, dropping", "follower", follow.Actor)
			return nil
		}
		return err
	}

	accepting, err := c.actors.GetOrFetch(ctx, accept.Actor)
	if err != nil {
		return err
	}

	key := domain.FollowKey{FollowerId: follower.Id, FollowingId: accepting.Id}
	req, err := c.follows.ReadFollowRequest(key)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("accept with no pending follow, dropping", "follower", follow.Actor, "accepting", accept.Actor)
			return nil
		}
		return err
	}

	if err := c.follows.AcceptFollowRequest(req.Accepted(c.now())); err != nil {
		if domain.IsConflict(err) {
			log.Info("follow already accepted, dropping duplicate", "key", key.String())
			return nil
		}
		return err
	}
	log.Info("follow accepted", "follower", follower.Handle(), "following", accepting.Handle())
	return nil
}
