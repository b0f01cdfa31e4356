package activitypub

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/util"
)

// SystemIdentity is the logical key for the service-level key pair used to
// sign relay traffic.
const SystemIdentity = "system"

// KeypairStore persists generated key pairs.
type KeypairStore interface {
	ReadKeypair(identity string) (publicPem, privatePem string, err error)
	SaveKeypair(identity, publicPem, privatePem string) error
}

// KeyDispatcher hands out the RSA key pair for a logical identity,
// generating and persisting one on first use.
type KeyDispatcher struct {
	store KeypairStore

	mu    sync.Mutex
	cache map[string]*util.RsaKeyPair
}

func NewKeyDispatcher(store KeypairStore) *KeyDispatcher {
	return &KeyDispatcher{
		store: store,
		cache: make(map[string]*util.RsaKeyPair),
	}
}

func (d *KeyDispatcher) Keypair(identity string) (*util.RsaKeyPair, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pair, ok := d.cache[identity]; ok {
		return pair, nil
	}

	publicPem, privatePem, err := d.store.ReadKeypair(identity)
	if err != nil {
		return nil, err
	}
	if publicPem == "" {
		pair := util.GeneratePemKeypair()
		if err := d.store.SaveKeypair(identity, pair.Public, pair.Private); err != nil {
			// A concurrent generator won the insert; its pair is canonical.
			stored, storedPriv, readErr := d.store.ReadKeypair(identity)
			if readErr != nil || stored == "" {
				return nil, err
			}
			publicPem, privatePem = stored, storedPriv
		} else {
			log.Info("generated key pair", "identity", identity)
			publicPem, privatePem = pair.Public, pair.Private
		}
	}

	pair := &util.RsaKeyPair{Public: publicPem, Private: privatePem}
	d.cache[identity] = pair
	return pair, nil
}
