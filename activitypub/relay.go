package activitypub

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

// RelayStore is the relay slice of the storage layer.
type RelayStore interface {
	CreateRelay(relay *domain.Relay) error
	AcceptRelay(relay *domain.Relay, ev domain.Event) error
	DeleteRelay(relay *domain.Relay) error
	ReadRelayByActorURI(actorURI string) (*domain.Relay, error)
	ReadRelayById(id uuid.UUID) (*domain.Relay, error)
	ReadAllRelays() ([]domain.Relay, error)
}

// RelayService drives the relay subscription lifecycle. All outbound relay
// traffic is signed as the system actor, never a user key.
type RelayService struct {
	store     RelayStore
	transport Transport
	addr      Addresses
	now       func() time.Time
}

func NewRelayService(store RelayStore, transport Transport, addr Addresses) *RelayService {
	return &RelayService{store: store, transport: transport, addr: addr, now: time.Now}
}

// Subscribe subscribes to the peer relay behind the given actor URI. The
// peer's profile is resolved first and nothing is written when the lookup
// fails. Subscribing to an already-subscribed peer re-sends the Follow
// against the existing row instead of creating a second one.
func (s *RelayService) Subscribe(ctx context.Context, peerActorURI string) (*domain.Relay, error) {
	peer, err := s.transport.LookupActor(ctx, peerActorURI)
	if err != nil {
		return nil, domain.ErrRelayActorLookup(peerActorURI, err)
	}

	relay := domain.NewRelay(peer.ActorURI, peer.InboxURI, s.now())
	if err := s.store.CreateRelay(&relay); err != nil {
		if !domain.IsConflict(err) {
			return nil, err
		}
		existing, readErr := s.store.ReadRelayByActorURI(peer.ActorURI)
		if readErr != nil {
			return nil, readErr
		}
		log.Info("relay already subscribed, resending follow", "actor", peer.ActorURI, "status", existing.Status)
		if err := s.sendFollow(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	log.Info("relay subscription created", "actor", relay.ActorURI, "relay", relay.Id)
	if err := s.sendFollow(ctx, &relay); err != nil {
		// The row stands; a later subscribe call nudges the peer again.
		return &relay, err
	}
	return &relay, nil
}

// Accept applies a correlated inbound Accept. Accepting an already-accepted
// relay is a no-op.
func (s *RelayService) Accept(relay *domain.Relay) error {
	ev, ok := relay.Accept(s.now())
	if !ok {
		log.Info("relay already accepted, ignoring", "actor", relay.ActorURI)
		return nil
	}
	if err := s.store.AcceptRelay(relay, ev); err != nil {
		return err
	}
	log.Info("relay subscription accepted", "actor", relay.ActorURI, "relay", relay.Id)
	return nil
}

// Unsubscribe undoes the original Follow at the peer and hard-deletes the
// row, whatever its status.
func (s *RelayService) Unsubscribe(ctx context.Context, relayId uuid.UUID) error {
	relay, err := s.store.ReadRelayById(relayId)
	if err != nil {
		return err
	}

	follow := NewFollow(s.followURI(relay), s.addr.SystemActorURI(), relay.ActorURI)
	undo := NewUndo(s.addr.ActivityURI(uuid.New()), s.addr.SystemActorURI(), follow)
	if err := s.transport.Send(ctx, SystemIdentity, relay.InboxURI, undo); err != nil {
		log.Warn("undo delivery failed, removing relay anyway", "actor", relay.ActorURI, "err", err)
	}

	if err := s.store.DeleteRelay(relay); err != nil {
		return err
	}
	log.Info("relay subscription removed", "actor", relay.ActorURI, "relay", relay.Id)
	return nil
}

// List returns all subscriptions, oldest first.
func (s *RelayService) List() ([]domain.Relay, error) {
	return s.store.ReadAllRelays()
}

func (s *RelayService) sendFollow(ctx context.Context, relay *domain.Relay) error {
	follow := NewFollow(s.followURI(relay), s.addr.SystemActorURI(), relay.ActorURI)
	return s.transport.Send(ctx, SystemIdentity, relay.InboxURI, follow)
}

// followURI derives the Follow activity id from the relay id so resends and
// the eventual Undo reference the same activity.
func (s *RelayService) followURI(relay *domain.Relay) string {
	return s.addr.ActivityURI(relay.Id)
}
