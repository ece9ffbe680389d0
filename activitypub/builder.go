package activitypub

import (
	"fmt"
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/storage"
	"github.com/deemkeen/loxodon/util"
)

// Activity envelopes are built as map[string]any and stored/delivered as
// literal JSON. Ephemeral activities (Follow, Undo, Delete, Update) get an
// id under the actor's /d/ namespace; activities bound to an object (Create,
// Accept, Like, Announce) derive their id from the object's.

const publishedFormat = "2006-01-02T15:04:05Z"

func published() string {
	return time.Now().UTC().Format(publishedFormat)
}

func ephemeralID(conf *util.AppConfig, uid, typ string) string {
	return fmt.Sprintf("%s/d/%.6f/%s", conf.ActorURL(uid), util.Tid(), typ)
}

// NewPerson builds the actor document served at the actor URL and pushed in
// profile Updates.
func NewPerson(conf *util.AppConfig, user *domain.User) map[string]any {
	actor := conf.ActorURL(user.UID())
	return map[string]any{
		"@context":          domain.ContextActivityStreams,
		"id":                actor,
		"type":              "Person",
		"preferredUsername": user.UID(),
		"name":              user.Config.Name,
		"summary":           user.Config.Bio,
		"url":               actor,
		"published":         user.Config.Published,
		"inbox":             actor + "/inbox",
		"outbox":            actor + "/outbox",
		"followers":         actor + "/followers",
		"following":         actor + "/following",
		"publicKey": map[string]any{
			"id":           actor + "#main-key",
			"owner":        actor,
			"publicKeyPem": user.Keys.Public,
		},
		"endpoints": map[string]any{
			"sharedInbox": conf.BaseURL() + "/inbox",
		},
	}
}

// NewAccept answers a received Follow. The Follow activity is echoed as the
// object so the remote side can match it up.
func NewAccept(conf *util.AppConfig, uid string, follow map[string]any) map[string]any {
	return map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        domain.GetString(follow, "id") + "/Accept",
		"type":      "Accept",
		"actor":     conf.ActorURL(uid),
		"published": published(),
		"to":        []string{domain.GetString(follow, "actor")},
		"object":    follow,
	}
}

// NewFollow builds a Follow of a remote actor.
func NewFollow(conf *util.AppConfig, uid, targetActor string) map[string]any {
	return map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        ephemeralID(conf, uid, "Follow"),
		"type":      "Follow",
		"actor":     conf.ActorURL(uid),
		"published": published(),
		"to":        []string{targetActor},
		"object":    targetActor,
	}
}

// NewCreate wraps a freshly built note, copying its addressing.
func NewCreate(conf *util.AppConfig, uid string, note map[string]any) map[string]any {
	create := map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        domain.GetString(note, "id") + "/Create",
		"type":      "Create",
		"actor":     conf.ActorURL(uid),
		"published": domain.GetString(note, "published"),
		"object":    note,
	}
	for _, key := range []string{"attributedTo", "to", "cc"} {
		if v, ok := note[key]; ok {
			create[key] = v
		}
	}
	return create
}

// NewNote builds a Note from plain text. Mentions resolve via WebFinger into
// Mention tags and join cc, hashtags become Hashtag tags, and a reply adopts
// the parent's context and addressing. An empty recipient list means Public.
func NewNote(deps *Deps, user *domain.User, text, inReplyTo string, rcpts []string) (map[string]any, error) {
	actor := deps.Conf.ActorURL(user.UID())
	id := fmt.Sprintf("%s/p/%.6f", actor, util.Tid())

	to := append([]string{}, rcpts...)
	var cc []string
	var tags []map[string]any

	for _, mention := range util.ExtractMentions(text) {
		href, _, err := WebFinger(deps, mention)
		if err != nil {
			deps.Conf.Debugf(1, "mention %s not resolvable: %s", mention, err)
			continue
		}
		tags = append(tags, map[string]any{
			"type": "Mention",
			"href": href,
			"name": mention,
		})
		cc = append(cc, href)
	}

	for _, hashtag := range util.ExtractHashtags(text) {
		tags = append(tags, map[string]any{
			"type": "Hashtag",
			"name": hashtag,
		})
	}

	context := id + "#ctxt"
	if inReplyTo != "" {
		if parent, code := deps.Store.Get(inReplyTo, ""); storage.ValidStatus(code) {
			if pctx := domain.GetString(parent, "context"); pctx != "" {
				context = pctx
			}
			if author := domain.GetString(parent, "attributedTo"); author != "" {
				to = append(to, author)
			}
			if domain.IsPublic(parent) {
				to = append(to, domain.PublicURI)
			}
		}
	}
	if len(to) == 0 {
		to = []string{domain.PublicURI}
	}

	note := map[string]any{
		"@context":     domain.ContextActivityStreams,
		"id":           id,
		"type":         "Note",
		"attributedTo": actor,
		"published":    published(),
		"content":      util.FormatNote(text),
		"context":      context,
		"to":           dedupe(to),
	}
	if inReplyTo != "" {
		note["inReplyTo"] = inReplyTo
	}
	if len(cc) > 0 {
		note["cc"] = dedupe(cc)
	}
	if len(tags) > 0 {
		note["tag"] = tags
	}
	return note, nil
}

// NewLike builds a Like of an object.
func NewLike(conf *util.AppConfig, uid, objectID string) map[string]any {
	return map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        objectID + "/Like",
		"type":      "Like",
		"actor":     conf.ActorURL(uid),
		"published": published(),
		"object":    objectID,
	}
}

// NewAnnounce builds an Announce of an object to the actor's followers.
func NewAnnounce(conf *util.AppConfig, uid, objectID string) map[string]any {
	return map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        objectID + "/Announce",
		"type":      "Announce",
		"actor":     conf.ActorURL(uid),
		"published": published(),
		"to":        []string{domain.PublicURI},
		"object":    objectID,
	}
}

// NewUndo reverses a previously sent activity, echoing it as the object.
func NewUndo(conf *util.AppConfig, uid string, activity map[string]any) map[string]any {
	return map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        ephemeralID(conf, uid, "Undo"),
		"type":      "Undo",
		"actor":     conf.ActorURL(uid),
		"published": published(),
		"object":    activity,
	}
}

// NewDelete retracts an object, wrapping it in a Tombstone.
func NewDelete(conf *util.AppConfig, uid, objectID string) map[string]any {
	return map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        ephemeralID(conf, uid, "Delete"),
		"type":      "Delete",
		"actor":     conf.ActorURL(uid),
		"published": published(),
		"to":        []string{domain.PublicURI},
		"object": map[string]any{
			"id":   objectID,
			"type": "Tombstone",
		},
	}
}

// NewUpdate pushes a changed actor document to followers.
func NewUpdate(conf *util.AppConfig, uid string, actorDoc map[string]any) map[string]any {
	return map[string]any{
		"@context":  domain.ContextActivityStreams,
		"id":        ephemeralID(conf, uid, "Update"),
		"type":      "Update",
		"actor":     conf.ActorURL(uid),
		"published": published(),
		"to":        []string{domain.PublicURI},
		"object":    actorDoc,
	}
}

// NewOrderedCollection builds the collection documents served for outbox,
// followers and following. Count-only collections pass total with no items.
func NewOrderedCollection(id string, total int, items []any) map[string]any {
	if items == nil {
		items = []any{}
	}
	return map[string]any{
		"@context":     domain.ContextActivityStreams,
		"id":           id,
		"type":         "OrderedCollection",
		"totalItems":   total,
		"orderedItems": items,
	}
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
