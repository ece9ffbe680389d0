package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/storage"
	"github.com/gin-gonic/gin"
)

const outboxPageSize = 20

func wantsActivity(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "activity+json") || strings.Contains(accept, "ld+json")
}

// handleActor serves the actor document to ActivityPub clients and sends
// everyone else to the RSS feed.
func handleActor(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}

		if !wantsActivity(c) {
			c.Redirect(http.StatusSeeOther, fmt.Sprintf("%s/rss", deps.Conf.ActorURL(uid)))
			return
		}

		err, user := deps.Store.ReadUser(uid)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Header("Content-Type", domain.ContentTypeLD)
		c.JSON(http.StatusOK, activitypub.NewPerson(deps.Conf, user))
	}
}

// handleNoteObject serves a stored own note as ActivityPub JSON.
func handleNoteObject(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}

		id := fmt.Sprintf("%s/p/%s", deps.Conf.ActorURL(uid), c.Param("tid"))
		note, code := deps.Store.Get(id, "Note")
		if !storage.ValidStatus(code) {
			c.Status(http.StatusNotFound)
			return
		}

		c.Header("Content-Type", domain.ContentTypeActivity)
		c.JSON(http.StatusOK, note)
	}
}

// handleOutbox serves the newest public notes of a user.
func handleOutbox(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}

		var items []any
		for _, key := range deps.Store.CacheList(uid, storage.CachePublic, outboxPageSize) {
			if note, code := deps.Store.Get(key, ""); storage.ValidStatus(code) {
				items = append(items, note)
			}
		}

		coll := activitypub.NewOrderedCollection(
			deps.Conf.ActorURL(uid)+"/outbox", len(items), items)
		c.Header("Content-Type", domain.ContentTypeActivity)
		c.JSON(http.StatusOK, coll)
	}
}

// handleFollowers serves a count-only collection. The member list is not
// published.
func handleFollowers(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}

		coll := activitypub.NewOrderedCollection(
			deps.Conf.ActorURL(uid)+"/followers", len(deps.Store.Followers(uid)), nil)
		c.Header("Content-Type", domain.ContentTypeActivity)
		c.JSON(http.StatusOK, coll)
	}
}

func handleFollowing(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}

		_, following := deps.Store.ListFollowing(uid)
		coll := activitypub.NewOrderedCollection(
			deps.Conf.ActorURL(uid)+"/following", len(following), nil)
		c.Header("Content-Type", domain.ContentTypeActivity)
		c.JSON(http.StatusOK, coll)
	}
}
