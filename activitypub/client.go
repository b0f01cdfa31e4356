package activitypub

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/google/uuid"
)

// Transport is the outbound half of federation: resolving remote actor
// documents and posting activities to inboxes. Signature generation and
// verification internals live behind the Signer hook.
type Transport interface {
	// LookupActor fetches and parses a remote actor document. The returned
	// actor is not persisted; callers decide whether to cache it.
	LookupActor(ctx context.Context, actorURI string) (*domain.Actor, error)

	// Send posts the activity to the inbox, signed as the given logical
	// identity ("system" for relay traffic, a username otherwise).
	Send(ctx context.Context, identity, inboxURI string, activity any) error
}

// Signer signs an outbound request as a logical identity.
type Signer interface {
	Sign(req *http.Request, identity string) error
}

// actorDocument is the wire shape of a remote actor profile.
type actorDocument struct {
	Context           any    `json:"@context"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Icon              struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	lookupClient *http.Client
	sendClient   *http.Client
	signer       Signer
	userAgent    string
}

func NewHTTPTransport(signer Signer) *HTTPTransport {
	return &HTTPTransport{
		lookupClient: &http.Client{Timeout: 10 * time.Second},
		sendClient:   &http.Client{Timeout: 30 * time.Second},
		signer:       signer,
		userAgent:    util.GetNameAndVersion(),
	}
}

func (t *HTTPTransport) LookupActor(ctx context.Context, actorURI string) (*domain.Actor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.lookupClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var doc actorDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse actor document: %w", err)
	}
	if doc.ID == "" || doc.Inbox == "" {
		return nil, fmt.Errorf("actor document missing required fields")
	}

	host, err := extractHost(doc.ID)
	if err != nil {
		return nil, err
	}

	return &domain.Actor{
		Id:            uuid.New(),
		Username:      doc.PreferredUsername,
		Domain:        host,
		ActorURI:      doc.ID,
		DisplayName:   doc.Name,
		Summary:       doc.Summary,
		InboxURI:      doc.Inbox,
		OutboxURI:     doc.Outbox,
		PublicKeyPem:  doc.PublicKey.PublicKeyPem,
		AvatarURL:     doc.Icon.URL,
		Local:         false,
		LastFetchedAt: time.Now(),
	}, nil
}

func (t *HTTPTransport) Send(ctx context.Context, identity, inboxURI string, activity any) error {
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	hash := sha256.Sum256(payload)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inboxURI, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	if t.signer != nil {
		if err := t.signer.Sign(req, identity); err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := t.sendClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Debug("delivered activity", "inbox", inboxURI, "identity", identity, "status", resp.StatusCode)
	return nil
}

func extractHost(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}
	return parsed.Host, nil
}
