package activitypub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/storage"
	"github.com/deemkeen/loxodon/util"
)

// ActorStaleAfter is how long a cached actor document stays fresh. A stale
// hit is still served; the advisory status tells callers to refresh.
const ActorStaleAfter = 36 * time.Hour

// StatusStale is the advisory ActorRequest status for a usable but stale
// cached document.
const StatusStale = http.StatusResetContent

// WebFinger resolves a handle to an actor URL and canonical uid. The handle
// is either an https actor URL or a "@user@host" / "user@host" address.
func WebFinger(deps *Deps, handle string) (actorURL, uid string, err error) {
	handle = strings.TrimSpace(handle)

	var host, resource string
	if strings.HasPrefix(handle, "https://") {
		u, err := url.Parse(handle)
		if err != nil || u.Host == "" {
			return "", "", fmt.Errorf("invalid actor URL %q", handle)
		}
		host = u.Host
		resource = handle
	} else {
		name, domainPart, ok := strings.Cut(strings.TrimPrefix(handle, "@"), "@")
		if !ok || name == "" || domainPart == "" {
			return "", "", fmt.Errorf("invalid handle %q: want user@host", handle)
		}
		host = domainPart
		resource = "acct:" + name + "@" + domainPart
		uid = name
	}

	wfURL := "https://" + host + "/.well-known/webfinger?resource=" + url.QueryEscape(resource)
	req, err := http.NewRequest(http.MethodGet, wfURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", domain.ContentTypeJRD+", application/json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := deps.Client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("webfinger %s: %w", host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("webfinger %s: HTTP %d", host, resp.StatusCode)
	}

	var jrd domain.WebFingerResponse
	if err := json.NewDecoder(resp.Body).Decode(&jrd); err != nil {
		return "", "", fmt.Errorf("webfinger %s: %w", host, err)
	}

	for _, link := range jrd.Links {
		if link.Rel != "self" || link.Href == "" {
			continue
		}
		if strings.Contains(link.Type, "activity+json") || strings.Contains(link.Type, "ld+json") {
			if uid == "" {
				if acct, ok := strings.CutPrefix(jrd.Subject, "acct:"); ok {
					uid, _, _ = strings.Cut(acct, "@")
				}
			}
			return link.Href, uid, nil
		}
	}
	return "", "", fmt.Errorf("no actor link in webfinger response for %q", handle)
}

// ActorRequest returns the actor document for an actor URL. The object
// store is consulted first: a fresh copy answers 200. A copy older than
// ActorStaleAfter triggers a signed re-fetch so key rotations are picked
// up; when the refresh fails the stale copy is still returned with the
// advisory StatusStale. An absent actor must fetch; there remote 404/410
// are permanent failures.
func ActorRequest(deps *Deps, user *domain.User, actor string) (map[string]any, int, error) {
	cached, code := deps.Store.Get(actor, "")
	haveCached := storage.ValidStatus(code)
	if haveCached && actorFresh(deps.Store, actor) {
		return cached, http.StatusOK, nil
	}

	doc, status, err := fetchActor(deps, user, actor)
	if err != nil && haveCached {
		deps.Conf.Debugf(1, "actor %s: refresh failed, serving stale copy: %s", actor, err)
		return cached, StatusStale, nil
	}
	return doc, status, err
}

// fetchActor does the signed fetch-parse-store of an actor document.
func fetchActor(deps *Deps, user *domain.User, actor string) (map[string]any, int, error) {
	resp, err := SignedGet(deps, user, actor)
	if err != nil {
		return nil, http.StatusBadGateway, err
	}
	if resp.Permanent() {
		return nil, resp.Status, fmt.Errorf("actor %s: HTTP %d: %w", actor, resp.Status, ErrWontRetry)
	}
	if !resp.OK() {
		return nil, resp.Status, fmt.Errorf("actor %s: HTTP %d", actor, resp.Status)
	}
	if ct := resp.Headers["content-type"]; !strings.Contains(ct, "json") {
		return nil, http.StatusBadGateway, fmt.Errorf("actor %s: content-type %q: %w", actor, ct, ErrWontRetry)
	}

	var doc map[string]any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, http.StatusBadGateway, fmt.Errorf("actor %s: %w: %w", actor, err, ErrWontRetry)
	}
	if domain.GetString(doc, "id") == "" {
		return nil, http.StatusBadGateway, fmt.Errorf("actor %s: document has no id: %w", actor, ErrWontRetry)
	}

	if code := deps.Store.Put(actor, doc, true); !storage.ValidStatus(code) {
		return nil, code, fmt.Errorf("store actor %s: status %d", actor, code)
	}
	return doc, http.StatusOK, nil
}

func actorFresh(store *storage.Store, actor string) bool {
	st, err := os.Stat(store.ObjectPath(storage.Md5Hex(actor)))
	if err != nil {
		return false
	}
	return time.Since(st.ModTime()) <= ActorStaleAfter
}
