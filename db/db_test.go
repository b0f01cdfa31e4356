package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DB {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// A single connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testActor(username string, local bool) *domain.Actor {
	dom := "remote.example"
	if local {
		dom = "social.example"
	}
	return &domain.Actor{
		Id:            uuid.New(),
		Username:      username,
		Domain:        dom,
		ActorURI:      "https://" + dom + "/users/" + username,
		InboxURI:      "https://" + dom + "/users/" + username + "/inbox",
		Local:         local,
		LastFetchedAt: time.Now(),
	}
}

func TestCreateActorAndReadBack(t *testing.T) {
	db := setupTestDB(t)
	actor := testActor("alice", true)

	if err := db.CreateActor(actor); err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}

	got, err := db.ReadActorByURI(actor.ActorURI)
	if err != nil {
		t.Fatalf("Failed to read actor by URI: %v", err)
	}
	if got.Id != actor.Id {
		t.Errorf("Expected id %s, got %s", actor.Id, got.Id)
	}
	if got.Username != "alice" {
		t.Errorf("Expected username alice, got %s", got.Username)
	}
	if !got.Local {
		t.Error("Expected a local actor")
	}

	byId, err := db.ReadActorById(actor.Id)
	if err != nil {
		t.Fatalf("Failed to read actor by id: %v", err)
	}
	if byId.ActorURI != actor.ActorURI {
		t.Errorf("Expected URI %s, got %s", actor.ActorURI, byId.ActorURI)
	}
}

func TestReadActorNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.ReadActorByURI("https://nowhere.example/users/ghost")
	if err == nil {
		t.Fatal("Expected an error for a missing actor")
	}
	if !domain.IsNotFound(err) {
		t.Errorf("Expected a not-found error, got %v", err)
	}
}

func TestUpsertActorRefreshes(t *testing.T) {
	db := setupTestDB(t)
	actor := testActor("bob", false)

	if err := db.UpsertActor(actor); err != nil {
		t.Fatalf("Failed to upsert actor: %v", err)
	}

	actor.DisplayName = "Bob Updated"
	actor.Summary = "new summary"
	if err := db.UpsertActor(actor); err != nil {
		t.Fatalf("Failed to upsert actor a second time: %v", err)
	}

	got, err := db.ReadActorByURI(actor.ActorURI)
	if err != nil {
		t.Fatalf("Failed to read actor: %v", err)
	}
	if got.DisplayName != "Bob Updated" {
		t.Errorf("Expected refreshed display name, got %s", got.DisplayName)
	}
}

func TestCreateRelayUniqueness(t *testing.T) {
	db := setupTestDB(t)
	relay := domain.NewRelay("https://relay.example/actor", "https://relay.example/inbox", time.Now())

	if err := db.CreateRelay(&relay); err != nil {
		t.Fatalf("Failed to create relay: %v", err)
	}

	dup := domain.NewRelay("https://relay.example/actor", "https://relay.example/inbox", time.Now())
	err := db.CreateRelay(&dup)
	if err == nil {
		t.Fatal("Expected a conflict for a duplicate relay")
	}
	if !domain.IsConflict(err) {
		t.Errorf("Expected a conflict error, got %v", err)
	}
}

func TestRelayAcceptPersists(t *testing.T) {
	db := setupTestDB(t)
	relay := domain.NewRelay("https://relay.example/actor", "https://relay.example/inbox", time.Now())
	if err := db.CreateRelay(&relay); err != nil {
		t.Fatalf("Failed to create relay: %v", err)
	}

	ev, ok := relay.Accept(time.Now())
	if !ok {
		t.Fatal("Accept should apply to a pending relay")
	}
	if err := db.AcceptRelay(&relay, ev); err != nil {
		t.Fatalf("Failed to persist acceptance: %v", err)
	}

	got, err := db.ReadRelayByActorURI(relay.ActorURI)
	if err != nil {
		t.Fatalf("Failed to read relay: %v", err)
	}
	if got.Status != domain.RelayAccepted {
		t.Errorf("Expected status accepted, got %s", got.Status)
	}
	if got.AcceptedAt == nil {
		t.Error("AcceptedAt should be set after acceptance")
	}
}

func TestRelayEventsAppended(t *testing.T) {
	db := setupTestDB(t)
	relay := domain.NewRelay("https://relay.example/actor", "https://relay.example/inbox", time.Now())
	if err := db.CreateRelay(&relay); err != nil {
		t.Fatalf("Failed to create relay: %v", err)
	}
	ev, _ := relay.Accept(time.Now())
	if err := db.AcceptRelay(&relay, ev); err != nil {
		t.Fatalf("Failed to accept relay: %v", err)
	}
	if err := db.DeleteRelay(&relay); err != nil {
		t.Fatalf("Failed to delete relay: %v", err)
	}

	events, err := db.ReadEventsByAggregate(domain.AggregateRelay, relay.Id.String())
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	names := []string{domain.EventRelaySubscribed, domain.EventRelayAccepted, domain.EventRelayRemoved}
	for i, want := range names {
		if events[i].EventName != want {
			t.Errorf("Event %d: expected %s, got %s", i, want, events[i].EventName)
		}
	}
	if events[2].State != nil {
		t.Error("Removal event should carry nil state")
	}

	// The relay row itself is gone
	if _, err := db.ReadRelayByActorURI(relay.ActorURI); !domain.IsNotFound(err) {
		t.Errorf("Expected not-found after delete, got %v", err)
	}
}

func TestFollowRequestLifecycle(t *testing.T) {
	db := setupTestDB(t)
	key := domain.FollowKey{FollowerId: uuid.New(), FollowingId: uuid.New()}
	req := &domain.FollowRequest{
		FollowKey: key,
		URI:       "https://social.example/activities/" + uuid.NewString(),
		CreatedAt: time.Now(),
	}

	if err := db.CreateFollowRequest(req); err != nil {
		t.Fatalf("Failed to create follow request: %v", err)
	}

	// A duplicate request conflicts
	if err := db.CreateFollowRequest(req); !domain.IsConflict(err) {
		t.Errorf("Expected a conflict for a duplicate request, got %v", err)
	}

	got, err := db.ReadFollowRequest(key)
	if err != nil {
		t.Fatalf("Failed to read follow request: %v", err)
	}
	if got.URI != req.URI {
		t.Errorf("Expected URI %s, got %s", req.URI, got.URI)
	}

	if err := db.AcceptFollowRequest(got.Accepted(time.Now())); err != nil {
		t.Fatalf("Failed to accept follow request: %v", err)
	}

	// The request is consumed and the follow exists
	if _, err := db.ReadFollowRequest(key); !domain.IsNotFound(err) {
		t.Errorf("Expected not-found for a consumed request, got %v", err)
	}
	follow, err := db.ReadFollow(key)
	if err != nil {
		t.Fatalf("Failed to read follow: %v", err)
	}
	if follow.FollowKey != key {
		t.Error("Follow should carry the request's key")
	}

	following, err := db.ReadFollowing(key.FollowerId)
	if err != nil {
		t.Fatalf("Failed to read following: %v", err)
	}
	if len(following) != 1 || following[0] != key.FollowingId {
		t.Errorf("Expected following set [%s], got %v", key.FollowingId, following)
	}
}

func TestCreateFollowConflict(t *testing.T) {
	db := setupTestDB(t)
	follow := &domain.Follow{
		FollowKey: domain.FollowKey{FollowerId: uuid.New(), FollowingId: uuid.New()},
		CreatedAt: time.Now(),
	}

	if err := db.CreateFollow(follow); err != nil {
		t.Fatalf("Failed to create follow: %v", err)
	}
	if err := db.CreateFollow(follow); !domain.IsConflict(err) {
		t.Errorf("Expected a conflict for a duplicate follow, got %v", err)
	}

	if err := db.DeleteFollow(follow.FollowKey); err != nil {
		t.Fatalf("Failed to delete follow: %v", err)
	}
	// Deleting an absent follow is a no-op
	if err := db.DeleteFollow(follow.FollowKey); err != nil {
		t.Errorf("Expected deleting an absent follow to succeed, got %v", err)
	}
}

func TestKeypairRoundtrip(t *testing.T) {
	db := setupTestDB(t)

	pub, priv, err := db.ReadKeypair("system")
	if err != nil {
		t.Fatalf("Failed to read absent keypair: %v", err)
	}
	if pub != "" || priv != "" {
		t.Error("Expected empty pems for an absent keypair")
	}

	if err := db.SaveKeypair("system", "PUB", "PRIV"); err != nil {
		t.Fatalf("Failed to save keypair: %v", err)
	}
	pub, priv, err = db.ReadKeypair("system")
	if err != nil {
		t.Fatalf("Failed to read keypair: %v", err)
	}
	if pub != "PUB" || priv != "PRIV" {
		t.Errorf("Expected stored pems, got %q/%q", pub, priv)
	}
}
