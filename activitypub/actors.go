package activitypub

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/domain"
)

const actorCacheMaxAge = 24 * time.Hour

// ActorStore is the identity slice of the storage layer.
type ActorStore interface {
	ReadActorByURI(uri string) (*domain.Actor, error)
	UpsertActor(actor *domain.Actor) error
}

// ActorService resolves actor identities through the local cache, fetching
// over the transport when an actor is unknown or its profile has gone stale.
type ActorService struct {
	store     ActorStore
	transport Transport
}

func NewActorService(store ActorStore, transport Transport) *ActorService {
	return &ActorService{store: store, transport: transport}
}

// GetOrFetch returns the cached actor when fresh, otherwise fetches the
// profile document and upserts the cache. A failed refresh of a known actor
// falls back to the stale copy.
func (s *ActorService) GetOrFetch(ctx context.Context, actorURI string) (*domain.Actor, error) {
	cached, err := s.store.ReadActorByURI(actorURI)
	if err == nil && !cached.Stale(actorCacheMaxAge) {
		return cached, nil
	}
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}

	fetched, fetchErr := s.transport.LookupActor(ctx, actorURI)
	if fetchErr != nil {
		if cached != nil {
			log.Warn("actor refresh failed, serving stale copy", "actor", actorURI, "err", fetchErr)
			return cached, nil
		}
		return nil, fetchErr
	}

	if err := s.store.UpsertActor(fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}
