package web

import (
	"net/http"
	"time"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// systemActorDocument serves the well-known service identity that signs
// relay traffic.
func (s *Server) systemActorDocument(c *gin.Context) {
	pair, err := s.keys.Keypair(activitypub.SystemIdentity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "key unavailable"})
		return
	}

	uri := s.addr.SystemActorURI()
	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(http.StatusOK, gin.H{
		"@context":          activitypub.ContextActivityStreams,
		"id":                uri,
		"type":              "Application",
		"preferredUsername": s.conf.Conf.SslDomain,
		"inbox":             "https://" + s.conf.Conf.SslDomain + "/inbox",
		"publicKey": gin.H{
			"id":           uri + "#main-key",
			"owner":        uri,
			"publicKeyPem": pair.Public,
		},
	})
}

func (s *Server) userActorDocument(c *gin.Context) {
	actor, err := s.store.ReadActorByUsername(c.Param("username"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return
	}

	pair, err := s.keys.Keypair(actor.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "key unavailable"})
		return
	}

	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(http.StatusOK, gin.H{
		"@context":          activitypub.ContextActivityStreams,
		"id":                actor.ActorURI,
		"type":              "Person",
		"preferredUsername": actor.Username,
		"name":              actor.DisplayName,
		"summary":           actor.Summary,
		"inbox":             "https://" + s.conf.Conf.SslDomain + "/inbox",
		"outbox":            actor.OutboxURI,
		"publicKey": gin.H{
			"id":           actor.ActorURI + "#main-key",
			"owner":        actor.ActorURI,
			"publicKeyPem": pair.Public,
		},
	})
}

// noteDocument serves a local post as a fetchable object so remote replies
// and likes can resolve it.
func (s *Server) noteDocument(c *gin.Context) {
	postId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid post id"})
		return
	}
	post, err := s.store.ReadPostById(postId)
	if err != nil || !post.Local || post.DeletedAt != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	author, err := s.store.ReadActorById(post.ActorId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	doc := gin.H{
		"@context":     activitypub.ContextActivityStreams,
		"id":           s.addr.PostURI(post.Id),
		"type":         "Note",
		"attributedTo": author.ActorURI,
		"content":      post.Content,
		"published":    post.CreatedAt.Format(time.RFC3339),
		"to":           []string{activitypub.PublicAudience},
	}
	if post.InReplyToURI != "" {
		doc["inReplyTo"] = post.InReplyToURI
	}
	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(http.StatusOK, doc)
}

// localActor resolves a path username to a local actor or writes the 404.
func (s *Server) localActor(c *gin.Context) (*domain.Actor, bool) {
	actor, err := s.store.ReadActorByUsername(c.Param("username"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return nil, false
	}
	return actor, true
}
