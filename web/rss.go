package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/storage"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

const rssPageSize = 20

// handleRSS renders a user's public timeline as RSS 2.0.
func handleRSS(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}

		rss, err := buildRSS(deps, uid)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Header("Content-Type", "application/rss+xml; charset=utf-8")
		c.String(http.StatusOK, rss)
	}
}

func buildRSS(deps *activitypub.Deps, uid string) (string, error) {
	actor := deps.Conf.ActorURL(uid)

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s@%s", uid, deps.Conf.Conf.Host),
		Link:        &feeds.Link{Href: actor},
		Description: fmt.Sprintf("public notes of %s", uid),
		Created:     time.Now(),
	}

	for _, key := range deps.Store.CacheList(uid, storage.CachePublic, rssPageSize) {
		note, code := deps.Store.Get(key, "")
		if !storage.ValidStatus(code) {
			continue
		}

		id := domain.GetString(note, "id")
		published, _ := time.Parse("2006-01-02T15:04:05Z", domain.GetString(note, "published"))
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      id,
			Title:   published.Format("2006-01-02 15:04"),
			Link:    &feeds.Link{Href: id},
			Content: domain.GetString(note, "content"),
			Author:  &feeds.Author{Name: uid},
			Created: published,
		})
	}

	return feed.ToRss()
}
