package web

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/db"
	"github.com/deemkeen/mammut/feed"
	"github.com/deemkeen/mammut/notify"
	"github.com/deemkeen/mammut/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/time/rate"
)

// Server wires the HTTP edge to the application services.
type Server struct {
	conf          *util.AppConfig
	store         *db.DB
	inbox         *activitypub.Inbox
	relays        *activitypub.RelayService
	publisher     *activitypub.Publisher
	timelines     *feed.TimelineService
	rss           *feed.RSSService
	notifications *notify.Projector
	keys          *activitypub.KeyDispatcher
	addr          activitypub.Addresses
}

func NewServer(
	conf *util.AppConfig,
	store *db.DB,
	inbox *activitypub.Inbox,
	relays *activitypub.RelayService,
	publisher *activitypub.Publisher,
	timelines *feed.TimelineService,
	rss *feed.RSSService,
	notifications *notify.Projector,
	keys *activitypub.KeyDispatcher,
	addr activitypub.Addresses,
) *Server {
	return &Server{
		conf:          conf,
		store:         store,
		inbox:         inbox,
		relays:        relays,
		publisher:     publisher,
		timelines:     timelines,
		rss:           rss,
		notifications: notifications,
		keys:          keys,
		addr:          addr,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	g.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(10), 20)))

	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := s.rss.Federated()
		if err != nil {
			c.Render(http.StatusNotFound, render.String{Format: ""})
			return
		}
		c.Render(http.StatusOK, render.String{Format: rss})
	})

	g.GET("/feed/:username", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		actor, ok := s.localActor(c)
		if !ok {
			return
		}
		rss, err := s.rss.Profile(actor.Id)
		if err != nil {
			c.Render(http.StatusNotFound, render.String{Format: ""})
			return
		}
		c.Render(http.StatusOK, render.String{Format: rss})
	})

	api := g.Group("/api")
	{
		api.GET("/timeline/federated", s.handleFederatedTimeline)
		api.GET("/users/:username/timeline", s.handleHomeTimeline)
		api.GET("/users/:username/posts", s.handleProfileTimeline)
		api.POST("/users/:username/posts", s.handleCreatePost)
		api.DELETE("/users/:username/posts/:id", s.handleDeletePost)

		api.POST("/users/:username/likes/:postId", s.handleLike)
		api.DELETE("/users/:username/likes/:postId", s.handleUnlike)
		api.POST("/users/:username/reposts/:postId", s.handleRepost)
		api.DELETE("/users/:username/reposts/:postId", s.handleUnrepost)
		api.POST("/users/:username/reactions/:postId", s.handleReact)
		api.DELETE("/users/:username/reactions/:postId", s.handleUnreact)
		api.POST("/users/:username/mutes/:actorId", s.handleMute)
		api.DELETE("/users/:username/mutes/:actorId", s.handleUnmute)
		api.POST("/users/:username/following", s.handleFollow)
		api.DELETE("/users/:username/following/:actorId", s.handleUnfollow)

		api.GET("/users/:username/notifications", s.handleNotifications)
		api.POST("/users/:username/notifications/read", s.handleMarkNotificationsRead)

		api.GET("/relays", s.handleListRelays)
		api.POST("/relays", s.handleSubscribeRelay)
		api.DELETE("/relays/:id", s.handleUnsubscribeRelay)

		if !s.conf.Conf.Closed {
			api.POST("/users", s.handleRegister)
		}
	}

	if s.conf.Conf.WithAp {
		// Stricter budget for federation traffic, 1MB activity cap
		apLimiter := NewRateLimiter(rate.Limit(5), 10)
		maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

		g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, s.handleInbox)
		g.GET("/actor", s.systemActorDocument)
		g.GET("/users/:username", s.userActorDocument)
		g.GET("/posts/:id", s.noteDocument)
	}

	return g
}

func (s *Server) handleInbox(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Warn("inbox: failed to read body", "err", err)
		c.Status(http.StatusBadRequest)
		return
	}
	if err := s.inbox.Handle(c.Request.Context(), body); err != nil {
		log.Warn("inbox: activity rejected", "err", err)
		c.Status(http.StatusBadRequest)
		return
	}
	c.Status(http.StatusAccepted)
}

// Addr returns the listen address from config.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.conf.Conf.HttpPort)
}
