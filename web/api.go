package web

import (
	"net/http"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// writeError maps the typed error taxonomy onto status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsLookup(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseCursor(c *gin.Context) *time.Time {
	raw := c.Query("cursor")
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleHomeTimeline(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	page, err := s.timelines.Home(viewer.Id, parseCursor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleFederatedTimeline(c *gin.Context) {
	viewerId := uuid.Nil
	if username := c.Query("viewer"); username != "" {
		if viewer, err := s.store.ReadActorByUsername(username); err == nil {
			viewerId = viewer.Id
		}
	}
	page, err := s.timelines.Federated(viewerId, parseCursor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleProfileTimeline(c *gin.Context) {
	actor, ok := s.localActor(c)
	if !ok {
		return
	}
	viewerId := uuid.Nil
	if username := c.Query("viewer"); username != "" {
		if viewer, err := s.store.ReadActorByUsername(username); err == nil {
			viewerId = viewer.Id
		}
	}
	page, err := s.timelines.Profile(actor.Id, viewerId, parseCursor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreatePost(c *gin.Context) {
	author, ok := s.localActor(c)
	if !ok {
		return
	}
	var body struct {
		Content      string `json:"content" binding:"required"`
		InReplyToURI string `json:"inReplyToUri"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	post, err := s.publisher.PublishPost(c.Request.Context(), author, body.Content, body.InReplyToURI, nil, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": post.Id, "createdAt": post.CreatedAt})
}

func (s *Server) handleDeletePost(c *gin.Context) {
	author, ok := s.localActor(c)
	if !ok {
		return
	}
	postId, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.publisher.DeletePost(author.Id, postId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLike(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	postId, ok := pathUUID(c, "postId")
	if !ok {
		return
	}
	if err := s.publisher.Like(c.Request.Context(), viewer, postId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnlike(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	postId, ok := pathUUID(c, "postId")
	if !ok {
		return
	}
	if err := s.publisher.Unlike(c.Request.Context(), viewer, postId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRepost(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	postId, ok := pathUUID(c, "postId")
	if !ok {
		return
	}
	if err := s.publisher.Repost(c.Request.Context(), viewer, postId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnrepost(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	postId, ok := pathUUID(c, "postId")
	if !ok {
		return
	}
	if err := s.publisher.Unrepost(c.Request.Context(), viewer, postId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReact(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	postId, ok := pathUUID(c, "postId")
	if !ok {
		return
	}
	var body struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji is required"})
		return
	}
	if err := s.publisher.React(c.Request.Context(), viewer, postId, body.Emoji); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnreact(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	postId, ok := pathUUID(c, "postId")
	if !ok {
		return
	}
	emoji := c.Query("emoji")
	if emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji is required"})
		return
	}
	if err := s.publisher.Unreact(c.Request.Context(), viewer, postId, emoji); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMute(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	mutedId, ok := pathUUID(c, "actorId")
	if !ok {
		return
	}
	if err := s.publisher.MuteActor(viewer.Id, mutedId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnmute(c *gin.Context) {
	viewer, ok := s.localActor(c)
	if !ok {
		return
	}
	mutedId, ok := pathUUID(c, "actorId")
	if !ok {
		return
	}
	if err := s.publisher.UnmuteActor(viewer.Id, mutedId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFollow(c *gin.Context) {
	follower, ok := s.localActor(c)
	if !ok {
		return
	}
	var body struct {
		ActorURI string `json:"actorUri" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actorUri is required"})
		return
	}
	if err := s.publisher.Follow(c.Request.Context(), follower, body.ActorURI); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleUnfollow(c *gin.Context) {
	follower, ok := s.localActor(c)
	if !ok {
		return
	}
	targetId, ok := pathUUID(c, "actorId")
	if !ok {
		return
	}
	if err := s.publisher.Unfollow(c.Request.Context(), follower, targetId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleNotifications(c *gin.Context) {
	recipient, ok := s.localActor(c)
	if !ok {
		return
	}
	onlyUnread := c.Query("unread") == "true"
	notifications, err := s.notifications.List(recipient.Id, onlyUnread, 50)
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := s.notifications.UnreadCount(recipient.Id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "unread": unread})
}

func (s *Server) handleMarkNotificationsRead(c *gin.Context) {
	recipient, ok := s.localActor(c)
	if !ok {
		return
	}
	if err := s.notifications.MarkAllRead(recipient.Id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListRelays(c *gin.Context) {
	relays, err := s.relays.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relays": relays})
}

func (s *Server) handleSubscribeRelay(c *gin.Context) {
	var body struct {
		ActorURI string `json:"actorUri" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actorUri is required"})
		return
	}
	relay, err := s.relays.Subscribe(c.Request.Context(), body.ActorURI)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": relay.Id, "actorUri": relay.ActorURI, "status": relay.Status})
}

func (s *Server) handleUnsubscribeRelay(c *gin.Context) {
	relayId, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.relays.Unsubscribe(c.Request.Context(), relayId); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRegister(c *gin.Context) {
	var body struct {
		Username    string `json:"username" binding:"required"`
		DisplayName string `json:"displayName"`
		Summary     string `json:"summary"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	username := util.NormalizeInput(body.Username)
	actor := &domain.Actor{
		Id:            uuid.New(),
		Username:      username,
		Domain:        s.conf.Conf.SslDomain,
		ActorURI:      s.addr.UserURI(username),
		DisplayName:   body.DisplayName,
		Summary:       body.Summary,
		InboxURI:      "https://" + s.conf.Conf.SslDomain + "/inbox",
		Local:         true,
		LastFetchedAt: time.Now(),
	}
	if err := s.store.CreateActor(actor); err != nil {
		writeError(c, err)
		return
	}
	if _, err := s.keys.Keypair(username); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": actor.Id, "actorUri": actor.ActorURI})
}
