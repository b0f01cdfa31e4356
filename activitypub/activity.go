package activitypub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	PublicAudience         = "https://www.w3.org/ns/activitystreams#Public"

	TypeFollow     = "Follow"
	TypeAccept     = "Accept"
	TypeUndo       = "Undo"
	TypeCreate     = "Create"
	TypeDelete     = "Delete"
	TypeLike       = "Like"
	TypeEmojiReact = "EmojiReact"
	TypeAnnounce   = "Announce"
)

// Activity is the envelope shared by all inbound activities. Object stays
// raw until the type-specific handler parses it.
type Activity struct {
	Context any             `json:"@context"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object"`
	Content string          `json:"content,omitempty"` // EmojiReact carries the emoji here
}

// FollowObject is a Follow either inbound on its own or wrapped inside an
// Accept or Undo.
type FollowObject struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Actor  string `json:"actor"`
	Object string `json:"object"`
}

// NoteObject is the payload of an inbound Create.
type NoteObject struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Content      string `json:"content"`
	Published    string `json:"published"`
	AttributedTo string `json:"attributedTo"`
	InReplyTo    string `json:"inReplyTo,omitempty"`
	Attachment   []struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
		Name      string `json:"name"`
	} `json:"attachment,omitempty"`
}

// ObjectURI extracts the object's identifier whether the object is a plain
// URI string or an embedded document.
func (a *Activity) ObjectURI() string {
	if len(a.Object) == 0 {
		return ""
	}
	var uri string
	if err := json.Unmarshal(a.Object, &uri); err == nil {
		return uri
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(a.Object, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// WrappedFollow parses the embedded Follow of an Accept or Undo.
func (a *Activity) WrappedFollow() (*FollowObject, error) {
	var follow FollowObject
	if err := json.Unmarshal(a.Object, &follow); err != nil {
		return nil, fmt.Errorf("failed to parse wrapped object: %w", err)
	}
	return &follow, nil
}

// Note parses the embedded Note of a Create.
func (a *Activity) Note() (*NoteObject, error) {
	var note NoteObject
	if err := json.Unmarshal(a.Object, &note); err != nil {
		return nil, fmt.Errorf("failed to parse note object: %w", err)
	}
	return &note, nil
}

// PublishedAt parses the note's timestamp, falling back to now for peers
// that omit or mangle it.
func (n *NoteObject) PublishedAt(now time.Time) time.Time {
	if n.Published == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339, n.Published)
	if err != nil {
		return now
	}
	return t
}

// Addresses holds the URI conventions of this server. Every outbound
// activity and local object identifier goes through here so the canonical
// shapes live in one place.
type Addresses struct {
	Domain string
}

func (a Addresses) SystemActorURI() string {
	return fmt.Sprintf("https://%s/actor", a.Domain)
}

func (a Addresses) UserURI(username string) string {
	return fmt.Sprintf("https://%s/users/%s", a.Domain, username)
}

func (a Addresses) FollowersURI(username string) string {
	return fmt.Sprintf("https://%s/users/%s/followers", a.Domain, username)
}

func (a Addresses) PostURI(id uuid.UUID) string {
	return fmt.Sprintf("https://%s/posts/%s", a.Domain, id)
}

func (a Addresses) ActivityURI(id uuid.UUID) string {
	return fmt.Sprintf("https://%s/activities/%s", a.Domain, id)
}

// ParsePostURI recovers the post id from one of this server's post URIs.
func (a Addresses) ParsePostURI(uri string) (uuid.UUID, bool) {
	prefix := fmt.Sprintf("https://%s/posts/", a.Domain)
	if !strings.HasPrefix(uri, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// NewFollow builds an outbound Follow activity.
func NewFollow(id, actorURI, objectURI string) map[string]any {
	return map[string]any{
		"@context": ContextActivityStreams,
		"id":       id,
		"type":     TypeFollow,
		"actor":    actorURI,
		"object":   objectURI,
	}
}

// NewUndo wraps the original activity so the peer can match it.
func NewUndo(id, actorURI string, object map[string]any) map[string]any {
	delete(object, "@context")
	return map[string]any{
		"@context": ContextActivityStreams,
		"id":       id,
		"type":     TypeUndo,
		"actor":    actorURI,
		"object":   object,
	}
}

// NewAccept confirms an inbound Follow back to its sender.
func NewAccept(id, actorURI string, follow *FollowObject) map[string]any {
	return map[string]any{
		"@context": ContextActivityStreams,
		"id":       id,
		"type":     TypeAccept,
		"actor":    actorURI,
		"object": map[string]any{
			"id":     follow.ID,
			"type":   TypeFollow,
			"actor":  follow.Actor,
			"object": follow.Object,
		},
	}
}

// NewCreateNote builds an outbound Create for a local post.
func NewCreateNote(id, actorURI, followersURI, noteURI, content string, published time.Time) map[string]any {
	note := map[string]any{
		"id":           noteURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      content,
		"published":    published.Format(time.RFC3339),
		"to":           []string{PublicAudience},
		"cc":           []string{followersURI},
	}
	return map[string]any{
		"@context":  ContextActivityStreams,
		"id":        id,
		"type":      TypeCreate,
		"actor":     actorURI,
		"published": published.Format(time.RFC3339),
		"to":        []string{PublicAudience},
		"cc":        []string{followersURI},
		"object":    note,
	}
}
