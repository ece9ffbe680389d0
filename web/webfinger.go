package web

import (
	"net/http"
	"strings"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/domain"
	"github.com/gin-gonic/gin"
)

// handleWebFinger answers resource lookups for local users, accepting both
// the acct: form and a plain actor URL.
func handleWebFinger(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Query("resource")
		if resource == "" {
			c.Status(http.StatusBadRequest)
			return
		}

		uid, ok := resolveResource(deps, resource)
		if !ok || !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}

		actor := deps.Conf.ActorURL(uid)
		resp := domain.WebFingerResponse{
			Subject: "acct:" + uid + "@" + deps.Conf.Conf.Host,
			Aliases: []string{actor},
			Links: []domain.WebFingerLink{
				{Rel: "self", Type: domain.ContentTypeActivity, Href: actor},
			},
		}

		c.Header("Content-Type", domain.ContentTypeJRD)
		c.JSON(http.StatusOK, resp)
	}
}

func resolveResource(deps *activitypub.Deps, resource string) (string, bool) {
	if acct, ok := strings.CutPrefix(resource, "acct:"); ok {
		uid, host, found := strings.Cut(acct, "@")
		if !found || host != deps.Conf.Conf.Host {
			return "", false
		}
		return uid, true
	}
	return deps.Conf.IsLocalActor(resource)
}
