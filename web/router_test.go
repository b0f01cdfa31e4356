package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/db"
	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/feed"
	"github.com/deemkeen/mammut/notify"
	"github.com/deemkeen/mammut/util"
	"github.com/gin-gonic/gin"
)

type stubTransport struct{}

func (stubTransport) LookupActor(_ context.Context, uri string) (*domain.Actor, error) {
	return nil, domain.ErrActorNotFound(uri)
}

func (stubTransport) Send(context.Context, string, string, any) error {
	return nil
}

func setupTestServer(t *testing.T) (*gin.Engine, *db.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.Open(filepath.Join(t.TempDir(), "web_test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "social.example"
	conf.Conf.HttpPort = 8080
	conf.Conf.WithAp = true

	addr := activitypub.Addresses{Domain: conf.Conf.SslDomain}
	transport := stubTransport{}
	keys := activitypub.NewKeyDispatcher(store)
	actors := activitypub.NewActorService(store, transport)
	relays := activitypub.NewRelayService(store, transport, addr)
	correlator := activitypub.NewCorrelator(relays, actors, store, addr)
	notifier := notify.NewProjector(store)
	inbox := activitypub.NewInbox(store, actors, relays, correlator, notifier, transport, addr)
	publisher := activitypub.NewPublisher(store, actors, transport, notifier, addr)
	timelines := feed.NewTimelineService(store)
	rss := feed.NewRSSService(timelines, "https://"+conf.Conf.SslDomain)

	server := NewServer(conf, store, inbox, relays, publisher, timelines, rss, notifier, keys, addr)
	return server.Router(), store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterAndFetchActorDocument(t *testing.T) {
	router, _ := setupTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{
		"username":    "alice",
		"displayName": "Alice",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Registering the same username again conflicts
	w = doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a duplicate username, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/users/alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for the actor document, got %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse actor document: %v", err)
	}
	if doc["type"] != "Person" {
		t.Errorf("Expected a Person document, got %v", doc["type"])
	}
	key, ok := doc["publicKey"].(map[string]any)
	if !ok || key["publicKeyPem"] == "" {
		t.Error("Expected a public key in the actor document")
	}
}

func TestSystemActorDocument(t *testing.T) {
	router, _ := setupTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/actor", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse actor document: %v", err)
	}
	if doc["type"] != "Application" {
		t.Errorf("Expected an Application document, got %v", doc["type"])
	}
	if doc["id"] != "https://social.example/actor" {
		t.Errorf("Expected the system actor URI, got %v", doc["id"])
	}
}

func TestCreatePostAndReadProfile(t *testing.T) {
	router, _ := setupTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Registration failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/users/alice/posts", map[string]any{
		"content": "first post",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/users/alice/posts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var page struct {
		Entries []struct {
			Post struct {
				Post struct {
					Content string
				}
			}
		}
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("Failed to parse page: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(page.Entries))
	}
	if page.Entries[0].Post.Post.Content != "first post" {
		t.Errorf("Expected the post content, got %q", page.Entries[0].Post.Post.Content)
	}
}

func TestCreatePostValidation(t *testing.T) {
	router, _ := setupTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Registration failed: %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/users/alice/posts", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty post, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/users/ghost/posts", map[string]any{"content": "hi"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown user, got %d", w.Code)
	}
}

func TestInboxRejectsGarbage(t *testing.T) {
	router, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbox", bytes.NewReader([]byte("not json")))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a malformed activity, got %d", w.Code)
	}
}

func TestNoteDocumentServesLocalPost(t *testing.T) {
	router, _ := setupTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Registration failed: %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/api/users/alice/posts", map[string]any{"content": "fetch me"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Post creation failed: %d", w.Code)
	}
	var created struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse creation response: %v", err)
	}

	w = doJSON(t, router, http.MethodGet, "/posts/"+created.Id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse note document: %v", err)
	}
	if doc["type"] != "Note" {
		t.Errorf("Expected a Note document, got %v", doc["type"])
	}
	if doc["content"] != "fetch me" {
		t.Errorf("Expected the post content, got %v", doc["content"])
	}

	// An unknown id is a 404
	w = doJSON(t, router, http.MethodGet, "/posts/not-a-uuid", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestRegistrationGatedWhenClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := db.Open(filepath.Join(t.TempDir(), "closed_test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "social.example"
	conf.Conf.Closed = true

	addr := activitypub.Addresses{Domain: conf.Conf.SslDomain}
	transport := stubTransport{}
	keys := activitypub.NewKeyDispatcher(store)
	actors := activitypub.NewActorService(store, transport)
	relays := activitypub.NewRelayService(store, transport, addr)
	correlator := activitypub.NewCorrelator(relays, actors, store, addr)
	notifier := notify.NewProjector(store)
	inbox := activitypub.NewInbox(store, actors, relays, correlator, notifier, transport, addr)
	publisher := activitypub.NewPublisher(store, actors, transport, notifier, addr)
	timelines := feed.NewTimelineService(store)
	rss := feed.NewRSSService(timelines, "https://"+conf.Conf.SslDomain)
	router := NewServer(conf, store, inbox, relays, publisher, timelines, rss, notifier, keys, addr).Router()

	w := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected registration to be absent on a closed instance, got %d", w.Code)
	}
}
