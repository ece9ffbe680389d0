package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/domain"
	"github.com/gin-gonic/gin"
)

// handleUserInbox accepts one activity for one local user. The heavy work
// (actor fetch, signature check, dispatch) happens in the queue worker; the
// handler only validates the digest and persists the item.
func handleUserInbox(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if !deps.Store.UserExists(uid) {
			c.Status(http.StatusNotFound)
			return
		}
		acceptActivity(deps, c, []string{uid})
	}
}

// handleSharedInbox routes one activity to every addressed local user, or,
// for Public addressing, to every local follower of the sender.
func handleSharedInbox(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		acceptActivity(deps, c, nil)
	}
}

// acceptActivity validates and enqueues an inbound POST. A nil uid list
// means shared-inbox routing.
func acceptActivity(deps *activitypub.Deps, c *gin.Context, uids []string) {
	if !strings.Contains(c.ContentType(), "json") {
		c.Status(http.StatusBadRequest)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	digest := c.GetHeader("Digest")
	if len(body) > 0 && digest == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if digest != "" && !activitypub.CheckDigest(digest, body) {
		deps.Conf.Debugf(1, "inbox: digest mismatch from %s", c.ClientIP())
		c.Status(http.StatusBadRequest)
		return
	}

	var activity map[string]any
	if err := json.Unmarshal(body, &activity); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if uids == nil {
		uids = routeSharedInbox(deps, activity)
		if len(uids) == 0 {
			deps.Conf.Debugf(1, "shared inbox: no local recipient for %s from %s",
				domain.GetString(activity, "type"), domain.GetString(activity, "actor"))
			c.Status(http.StatusAccepted)
			return
		}
	}

	req := queueRequestOf(c)
	for _, uid := range uids {
		if err := deps.Queue.Enqueue(uid, domain.NewInputItem(activity, req)); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
	}
	c.Status(http.StatusAccepted)
}

// queueRequestOf preserves the signed parts of the request for replay.
func queueRequestOf(c *gin.Context) *domain.QueueRequest {
	headers := map[string]string{"Host": c.Request.Host}
	for name := range c.Request.Header {
		headers[name] = c.Request.Header.Get(name)
	}
	return &domain.QueueRequest{
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Headers: headers,
	}
}

// routeSharedInbox finds the local users an activity concerns: every local
// actor in the addressing (the /followers suffix counts for its owner), or
// every local follower of the sender when addressed to Public.
func routeSharedInbox(deps *activitypub.Deps, activity map[string]any) []string {
	var uids []string
	seen := map[string]bool{}
	add := func(uid string) {
		if uid != "" && !seen[uid] && deps.Store.UserExists(uid) {
			seen[uid] = true
			uids = append(uids, uid)
		}
	}

	public := false
	for _, r := range domain.Addressees(activity) {
		if r == domain.PublicURI {
			public = true
			continue
		}
		r = strings.TrimSuffix(r, "/followers")
		if uid, ok := deps.Conf.IsLocalActor(r); ok {
			add(uid)
		}
	}
	if target := domain.GetString(activity, "object"); target != "" {
		if uid, ok := deps.Conf.IsLocalActor(target); ok {
			add(uid)
		}
	}

	if len(uids) == 0 && public {
		sender := domain.GetString(activity, "actor")
		err, all := deps.Store.ListUsers()
		if err != nil {
			deps.Conf.Debugf(1, "shared inbox: list users: %s", err)
		}
		for _, uid := range all {
			if deps.Store.IsFollowing(uid, sender) {
				add(uid)
			}
		}
	}
	return uids
}
