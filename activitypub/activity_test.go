package activitypub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestActivityObjectURIString(t *testing.T) {
	raw := `{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://remote.example/activities/1",
		"type": "Like",
		"actor": "https://remote.example/users/carol",
		"object": "https://social.example/posts/abc"
	}`
	var activity Activity
	if err := json.Unmarshal([]byte(raw), &activity); err != nil {
		t.Fatalf("Failed to unmarshal activity: %v", err)
	}
	if activity.ObjectURI() != "https://social.example/posts/abc" {
		t.Errorf("Expected the plain object URI, got %q", activity.ObjectURI())
	}
}

func TestActivityObjectURIEmbedded(t *testing.T) {
	raw := `{
		"id": "https://remote.example/activities/2",
		"type": "Create",
		"actor": "https://remote.example/users/carol",
		"object": {
			"id": "https://remote.example/notes/42",
			"type": "Note",
			"content": "hello"
		}
	}`
	var activity Activity
	if err := json.Unmarshal([]byte(raw), &activity); err != nil {
		t.Fatalf("Failed to unmarshal activity: %v", err)
	}
	if activity.ObjectURI() != "https://remote.example/notes/42" {
		t.Errorf("Expected the embedded object id, got %q", activity.ObjectURI())
	}
}

func TestWrappedFollow(t *testing.T) {
	raw := `{
		"id": "https://remote.example/activities/3",
		"type": "Accept",
		"actor": "https://remote.example/actor",
		"object": {
			"id": "https://social.example/activities/f1",
			"type": "Follow",
			"actor": "https://social.example/actor",
			"object": "https://remote.example/actor"
		}
	}`
	var activity Activity
	if err := json.Unmarshal([]byte(raw), &activity); err != nil {
		t.Fatalf("Failed to unmarshal activity: %v", err)
	}
	follow, err := activity.WrappedFollow()
	if err != nil {
		t.Fatalf("Failed to parse wrapped follow: %v", err)
	}
	if follow.Actor != "https://social.example/actor" {
		t.Errorf("Expected the wrapped actor, got %q", follow.Actor)
	}
	if follow.Object != "https://remote.example/actor" {
		t.Errorf("Expected the wrapped object, got %q", follow.Object)
	}
}

func TestNotePublishedAtFallsBack(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	note := &NoteObject{Published: "2025-06-01T10:00:00Z"}
	if got := note.PublishedAt(now); !got.Equal(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected the parsed timestamp, got %v", got)
	}

	mangled := &NoteObject{Published: "yesterday"}
	if got := mangled.PublishedAt(now); !got.Equal(now) {
		t.Errorf("Expected the fallback time, got %v", got)
	}

	empty := &NoteObject{}
	if got := empty.PublishedAt(now); !got.Equal(now) {
		t.Errorf("Expected the fallback time, got %v", got)
	}
}

func TestAddressesParsePostURI(t *testing.T) {
	addr := Addresses{Domain: "social.example"}
	id := uuid.New()

	got, ok := addr.ParsePostURI(addr.PostURI(id))
	if !ok || got != id {
		t.Errorf("Expected id %s back, got %s (ok=%v)", id, got, ok)
	}

	if _, ok := addr.ParsePostURI("https://other.example/posts/" + id.String()); ok {
		t.Error("A foreign domain must not parse")
	}
	if _, ok := addr.ParsePostURI("https://social.example/posts/not-a-uuid"); ok {
		t.Error("A malformed id must not parse")
	}
}

func TestNewUndoStripsWrappedContext(t *testing.T) {
	follow := NewFollow("https://social.example/activities/f1", "https://social.example/actor", "https://relay.example/actor")
	undo := NewUndo("https://social.example/activities/u1", "https://social.example/actor", follow)

	wrapped := undo["object"].(map[string]any)
	if _, ok := wrapped["@context"]; ok {
		t.Error("The wrapped object must not carry its own @context")
	}
	if undo["@context"] != ContextActivityStreams {
		t.Error("The Undo envelope must carry the context")
	}
}
