package web

import (
	"path/filepath"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Request body cap on inbox routes.
const maxActivitySize = 1 << 20

// NewRouter builds the public HTTP surface: actor documents, inboxes,
// webfinger, nodeinfo and the RSS feeds. The caller owns the listener.
func NewRouter(deps *activitypub.Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = util.GetLogWriter()
	gin.DefaultErrorWriter = util.GetLogWriter()

	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global limit, with a stricter bucket on the activity endpoints.
	g.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(10), 20)))
	apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
	maxBody := MaxBytesMiddleware(maxActivitySize)

	r := g.Group(deps.Conf.Conf.Prefix)

	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(deps.Conf.BaseDir, "greeting.html"))
	})
	r.GET("/style.css", func(c *gin.Context) {
		c.File(filepath.Join(deps.Conf.BaseDir, "style.css"))
	})

	r.GET("/.well-known/webfinger", handleWebFinger(deps))
	r.GET("/.well-known/nodeinfo", handleWellKnownNodeInfo(deps))
	r.GET("/nodeinfo/2.0", handleNodeInfo(deps))

	r.POST("/inbox", apLimiter, maxBody, handleSharedInbox(deps))

	r.GET("/:uid", handleActor(deps))
	r.GET("/:uid/outbox", handleOutbox(deps))
	r.GET("/:uid/followers", handleFollowers(deps))
	r.GET("/:uid/following", handleFollowing(deps))
	r.GET("/:uid/rss", handleRSS(deps))
	r.GET("/:uid/p/:tid", handleNoteObject(deps))
	r.POST("/:uid/inbox", apLimiter, maxBody, handleUserInbox(deps))

	return g
}
