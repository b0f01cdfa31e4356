package domain

import (
	"time"

	"github.com/google/uuid"
)

// Actor is a local or remote identity capable of sending and receiving
// federation activities. Remote actors are cached copies of their profile
// documents, refreshed when stale.
type Actor struct {
	Id            uuid.UUID
	Username      string
	Domain        string
	ActorURI      string
	DisplayName   string
	Summary       string
	InboxURI      string
	OutboxURI     string
	PublicKeyPem  string
	AvatarURL     string
	Local         bool
	LastFetchedAt time.Time
}

// Stale reports whether the cached profile should be re-fetched.
func (a *Actor) Stale(maxAge time.Duration) bool {
	return !a.Local && time.Since(a.LastFetchedAt) > maxAge
}

// Handle returns the short fediverse handle, username@domain.
func (a *Actor) Handle() string {
	if a.Domain == "" {
		return a.Username
	}
	return a.Username + "@" + a.Domain
}
