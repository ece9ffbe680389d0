package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/storage"
)

// ancestorDepthMax caps the inReplyTo chain walked when a reply to an
// unknown thread arrives.
const ancestorDepthMax = 32

// ProcessInput runs one dequeued input item through the inbound state
// machine: resolve the sender, verify the replayed signature, then dispatch
// on (type, object type). Errors wrapping ErrWontRetry drop the item; other
// errors requeue it.
func ProcessInput(deps *Deps, user *domain.User, item *domain.QueueItem) error {
	env := domain.EnvelopeOf(item.Object)
	if env.Actor == "" {
		return fmt.Errorf("activity %s has no actor: %w", env.ID, ErrWontRetry)
	}

	actorDoc, _, err := ActorRequest(deps, user, env.Actor)
	if err != nil {
		return fmt.Errorf("resolve sender: %w", err)
	}
	actor, err := domain.ActorFromObject(actorDoc)
	if err != nil {
		return fmt.Errorf("sender %s: %w: %w", env.Actor, err, ErrWontRetry)
	}

	if err := verifyReplayed(item.Req, env.Actor, actor.PublicKey.PublicKeyPem); err != nil {
		return fmt.Errorf("%w: %w", err, ErrWontRetry)
	}

	uid := user.UID()
	deps.Conf.Debugf(1, "inbox %s: %s/%s from %s", uid, env.Type, env.UType, env.Actor)

	switch {
	case env.Type == "Follow":
		return handleFollow(deps, user, actor, item.Object)
	case env.Type == "Undo" && env.UType == "Follow":
		return handleUnfollow(deps, user, actor)
	case env.Type == "Create" && env.UType == "Note":
		return handleNote(deps, user, actor, env)
	case env.Type == "Accept" && env.UType == "Follow":
		return handleAccepted(deps, uid, env)
	case env.Type == "Like":
		return handleLike(deps, user, actor, env)
	case env.Type == "Announce":
		return handleAnnounce(deps, user, actor, env)
	case env.Type == "Update" && env.UType == "Person":
		return handleActorUpdate(deps, env)
	case env.Type == "Delete":
		return handleDelete(deps, uid, env)
	default:
		deps.Conf.Debugf(1, "inbox %s: ignoring %s/%s", uid, env.Type, env.UType)
		return nil
	}
}

// verifyReplayed rebuilds the original HTTP request from the queued metadata
// and checks its signature against the sender's published key. The keyId in
// the signature must belong to the claimed actor.
func verifyReplayed(qr *domain.QueueRequest, claimedActor, publicKeyPEM string) error {
	if qr == nil {
		return errors.New("queued item has no request metadata")
	}
	if publicKeyPEM == "" {
		return fmt.Errorf("actor %s publishes no key", claimedActor)
	}

	req, err := http.NewRequest(qr.Method, "https://"+qr.Headers["Host"]+qr.Path, nil)
	if err != nil {
		return fmt.Errorf("rebuild request: %w", err)
	}
	for name, value := range qr.Headers {
		req.Header.Set(name, value)
	}
	if host := qr.Headers["Host"]; host != "" {
		req.Host = host
	}

	signer, err := VerifyRequest(req, publicKeyPEM)
	if err != nil {
		return err
	}
	if signer != claimedActor {
		return fmt.Errorf("signature by %s but activity claims %s", signer, claimedActor)
	}
	return nil
}

func handleFollow(deps *Deps, user *domain.User, actor *domain.Actor, follow map[string]any) error {
	uid := user.UID()

	if code := deps.Store.FollowerAdd(uid, actorDocOf(deps, actor)); !storage.ValidStatus(code) {
		return fmt.Errorf("add follower %s: status %d", actor.ID, code)
	}

	followID := domain.GetString(follow, "id")
	if followID != "" {
		deps.Store.Put(followID, follow, true)
		deps.Store.CacheAdd(uid, followID, storage.CachePrivate)
	}

	inbox := actor.DeliveryInbox()
	if inbox == "" {
		return fmt.Errorf("follower %s has no inbox: %w", actor.ID, ErrWontRetry)
	}
	accept := NewAccept(deps.Conf, uid, follow)
	if err := deps.Queue.Enqueue(uid, domain.NewOutputItem(uid, inbox, accept)); err != nil {
		return fmt.Errorf("enqueue accept: %w", err)
	}

	notify(deps, user, &domain.Notification{
		Kind:  domain.NotificationFollow,
		Actor: actor.Handle(),
	})
	return nil
}

func handleUnfollow(deps *Deps, user *domain.User, actor *domain.Actor) error {
	deps.Store.FollowerDel(user.UID(), actor.ID)
	notify(deps, user, &domain.Notification{
		Kind:  domain.NotificationUnfollow,
		Actor: actor.Handle(),
	})
	return nil
}

func handleNote(deps *Deps, user *domain.User, actor *domain.Actor, env domain.Envelope) error {
	uid := user.UID()
	if deps.Store.IsMuted(uid, env.Actor) {
		deps.Conf.Debugf(1, "inbox %s: note from muted %s", uid, env.Actor)
		return nil
	}

	note := env.Object
	if note == nil {
		return fmt.Errorf("create %s carries no note: %w", env.ID, ErrWontRetry)
	}
	noteID := domain.GetString(note, "id")
	if noteID == "" {
		return fmt.Errorf("note in %s has no id: %w", env.ID, ErrWontRetry)
	}

	if err := fetchAncestors(deps, user, domain.GetString(note, "inReplyTo")); err != nil {
		return err
	}
	if code := deps.Store.Put(noteID, note, false); !storage.ValidStatus(code) {
		return fmt.Errorf("store note %s: status %d", noteID, code)
	}

	if deps.Store.IsHidden(uid, threadRoot(deps.Store, noteID)) {
		return nil
	}
	deps.Store.CacheAdd(uid, noteID, storage.CachePrivate)

	if addressedTo(note, deps.Conf.ActorURL(uid)) {
		notify(deps, user, &domain.Notification{
			Kind:     domain.NotificationNote,
			Actor:    actor.Handle(),
			ObjectID: noteID,
			Preview:  previewOf(note),
		})
	}
	return nil
}

func handleAccepted(deps *Deps, uid string, env domain.Envelope) error {
	remote := env.Actor
	err, entry := deps.Store.ReadFollowing(uid, remote)
	if err != nil {
		deps.Conf.Debugf(1, "inbox %s: accept from %s without pending follow", uid, remote)
		return nil
	}
	if entry.Accepted {
		return nil
	}
	entry.Accepted = true
	return deps.Store.FollowingAdd(uid, entry)
}

func handleLike(deps *Deps, user *domain.User, actor *domain.Actor, env domain.Envelope) error {
	uid := user.UID()
	target := env.ObjectID
	if target == "" {
		return nil
	}

	deps.Store.Admire(target, env.Actor, storage.AdmireLike)

	if isOwnNote(deps, uid, target) {
		notify(deps, user, &domain.Notification{
			Kind:     domain.NotificationLike,
			Actor:    actor.Handle(),
			ObjectID: target,
		})
	}
	return nil
}

func handleAnnounce(deps *Deps, user *domain.User, actor *domain.Actor, env domain.Envelope) error {
	uid := user.UID()
	target := env.ObjectID
	if target == "" {
		return nil
	}
	if deps.Store.IsMuted(uid, env.Actor) {
		return nil
	}

	if _, code := deps.Store.Get(target, ""); !storage.ValidStatus(code) {
		doc, err := fetchObject(deps, user, target)
		if err != nil {
			return err
		}
		author := domain.GetString(doc, "attributedTo")
		if author != "" && deps.Store.IsMuted(uid, author) {
			return nil
		}
		if code := deps.Store.Put(target, doc, false); !storage.ValidStatus(code) {
			return fmt.Errorf("store announced %s: status %d", target, code)
		}
	}

	deps.Store.Admire(target, env.Actor, storage.AdmireAnnounce)
	deps.Store.CacheAdd(uid, target, storage.CachePrivate)

	if isOwnNote(deps, uid, target) {
		notify(deps, user, &domain.Notification{
			Kind:     domain.NotificationAnnounce,
			Actor:    actor.Handle(),
			ObjectID: target,
		})
	}
	return nil
}

func handleActorUpdate(deps *Deps, env domain.Envelope) error {
	if env.Object == nil || env.ObjectID == "" {
		return fmt.Errorf("update %s carries no person: %w", env.ID, ErrWontRetry)
	}
	if env.ObjectID != env.Actor {
		return fmt.Errorf("update of %s signed by %s: %w", env.ObjectID, env.Actor, ErrWontRetry)
	}
	if code := deps.Store.Put(env.ObjectID, env.Object, true); !storage.ValidStatus(code) {
		return fmt.Errorf("store actor %s: status %d", env.ObjectID, code)
	}
	return nil
}

func handleDelete(deps *Deps, uid string, env domain.Envelope) error {
	target := env.ObjectID
	if target == "" {
		return nil
	}
	if !ownedBy(deps.Store, target, env.Actor) {
		return fmt.Errorf("delete of %s signed by %s: %w", target, env.Actor, ErrWontRetry)
	}
	for _, cache := range []string{storage.CachePrivate, storage.CachePublic} {
		deps.Store.CacheDel(uid, target, cache)
	}
	deps.Store.DelIfUnreferenced(target)
	return nil
}

// ownedBy reports whether an object belongs to an actor: its id lives under
// the actor's URL, or the stored copy is attributed to the actor. An actor
// may only delete its own objects.
func ownedBy(store *storage.Store, id, actor string) bool {
	if id == actor || strings.HasPrefix(id, actor+"/") {
		return true
	}
	if doc, code := store.Get(id, ""); storage.ValidStatus(code) {
		return domain.GetString(doc, "attributedTo") == actor
	}
	return false
}

// fetchAncestors walks an inReplyTo chain, fetching and storing every
// unknown ancestor. The walk stops at a known object, a missing inReplyTo,
// a failed fetch or the depth cap.
func fetchAncestors(deps *Deps, user *domain.User, inReplyTo string) error {
	for depth := 0; inReplyTo != "" && depth < ancestorDepthMax; depth++ {
		if _, code := deps.Store.Get(inReplyTo, ""); storage.ValidStatus(code) {
			return nil
		}

		doc, err := fetchObject(deps, user, inReplyTo)
		if err != nil {
			deps.Conf.Debugf(1, "ancestor %s not fetchable: %s", inReplyTo, err)
			return nil
		}
		if code := deps.Store.Put(inReplyTo, doc, false); !storage.ValidStatus(code) {
			return fmt.Errorf("store ancestor %s: status %d", inReplyTo, code)
		}

		inReplyTo = domain.GetString(doc, "inReplyTo")
	}
	return nil
}

// fetchObject does a signed GET of a remote object and parses it. The
// returned document must claim the id it was fetched from.
func fetchObject(deps *Deps, user *domain.User, id string) (map[string]any, error) {
	resp, err := SignedGet(deps, user, id)
	if err != nil {
		return nil, err
	}
	if resp.Permanent() {
		return nil, fmt.Errorf("fetch %s: HTTP %d: %w", id, resp.Status, ErrWontRetry)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch %s: HTTP %d", id, resp.Status)
	}

	var doc map[string]any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", id, err, ErrWontRetry)
	}
	if got := domain.GetString(doc, "id"); got != id {
		return nil, fmt.Errorf("fetch %s: document claims id %s: %w", id, got, ErrWontRetry)
	}
	return doc, nil
}

// threadRoot walks stored parents up to the root of a reply tree.
func threadRoot(store *storage.Store, id string) string {
	root := storage.AsMd5(id)
	for depth := 0; depth < ancestorDepthMax; depth++ {
		parent := store.Parent(root)
		if parent == "" {
			break
		}
		root = parent
	}
	return root
}

func isOwnNote(deps *Deps, uid, id string) bool {
	return strings.HasPrefix(id, deps.Conf.ActorURL(uid)+"/p/")
}

func addressedTo(obj map[string]any, actorURL string) bool {
	for _, r := range domain.Addressees(obj) {
		if r == actorURL {
			return true
		}
	}
	return false
}

// previewOf returns the first line of a note's content with markup
// stripped, capped for mail subjects.
func previewOf(note map[string]any) string {
	content := domain.GetString(note, "content")
	if i := strings.Index(content, "<br>"); i >= 0 {
		content = content[:i]
	}
	content = stripTags(content)
	if runes := []rune(content); len(runes) > 140 {
		content = string(runes[:140])
	}
	return strings.TrimSpace(content)
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// notify composes and enqueues a mail item when the user opted into email
// notifications.
func notify(deps *Deps, user *domain.User, n *domain.Notification) {
	if user.Config.Email == "" {
		return
	}
	mail := n.ComposeMail(deps.Conf.Conf.Host, user.Config.Email)
	if err := deps.Queue.Enqueue(user.UID(), domain.NewEmailItem(mail)); err != nil {
		deps.Conf.Debugf(1, "enqueue mail for %s: %s", user.UID(), err)
	}
}

// actorDocOf prefers the stored actor document, falling back to the typed
// view when the store somehow lost it between resolve and dispatch.
func actorDocOf(deps *Deps, actor *domain.Actor) map[string]any {
	if doc, code := deps.Store.Get(actor.ID, ""); storage.ValidStatus(code) {
		return doc
	}
	return map[string]any{
		"id":                actor.ID,
		"type":              actor.Type,
		"preferredUsername": actor.PreferredUsername,
		"inbox":             actor.Inbox,
	}
}
