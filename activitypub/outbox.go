package activitypub

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/deemkeen/loxodon/domain"
)

// RecipientList unions the to and cc addressing of an activity. When
// expandPublic is set every Public collection entry is replaced by the
// sender's follower actor URLs.
func RecipientList(deps *Deps, uid string, msg map[string]any, expandPublic bool) []string {
	var out []string
	seen := map[string]bool{}

	add := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}

	for _, r := range domain.Addressees(msg) {
		if r == domain.PublicURI {
			if expandPublic {
				for _, follower := range deps.Store.Followers(uid) {
					add(domain.GetString(follower, "id"))
				}
			}
			continue
		}
		add(r)
	}
	return out
}

// Post fans an activity out to its recipients, one output queue item per
// distinct inbox. Recipient inboxes are resolved now so the delivery worker
// only has to POST; a recipient whose actor cannot be fetched is skipped.
// Nothing is ever enqueued toward the sender's own actor.
func Post(deps *Deps, user *domain.User, msg map[string]any) error {
	uid := user.UID()
	self := deps.Conf.ActorURL(uid)

	inboxes := map[string]bool{}
	for _, recipient := range RecipientList(deps, uid, msg, true) {
		if strings.HasPrefix(recipient, self) {
			continue
		}

		doc, _, err := ActorRequest(deps, user, recipient)
		if err != nil {
			log.Printf("post: skipping %s: %s", recipient, err)
			continue
		}
		actor, err := domain.ActorFromObject(doc)
		if err != nil {
			log.Printf("post: skipping %s: %s", recipient, err)
			continue
		}

		inbox := actor.DeliveryInbox()
		if inbox == "" || strings.HasPrefix(inbox, self) {
			continue
		}
		inboxes[inbox] = true
	}

	for inbox := range inboxes {
		if err := deps.Queue.Enqueue(uid, domain.NewOutputItem(uid, inbox, msg)); err != nil {
			return fmt.Errorf("enqueue delivery to %s: %w", inbox, err)
		}
	}

	deps.Conf.Debugf(1, "post: %s %s to %d inboxes",
		domain.GetString(msg, "type"), domain.GetString(msg, "id"), len(inboxes))
	return nil
}

// DeliverOutput performs one delivery attempt for an output queue item.
// A 404/410 answer wraps ErrWontRetry so the worker drops the item; any
// other failure is returned plain and gets retried.
func DeliverOutput(deps *Deps, item *domain.QueueItem) error {
	err, user := deps.Store.ReadUser(item.Actor)
	if err != nil {
		return fmt.Errorf("deliver as %s: %w: %w", item.Actor, err, ErrWontRetry)
	}

	body, err := json.Marshal(item.Object)
	if err != nil {
		return fmt.Errorf("marshal activity: %w: %w", err, ErrWontRetry)
	}

	resp, err := SignedPost(deps, user, item.Inbox, body)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", item.Inbox, err)
	}
	if resp.Permanent() {
		return fmt.Errorf("deliver to %s: HTTP %d: %w", item.Inbox, resp.Status, ErrWontRetry)
	}
	if !resp.OK() {
		return fmt.Errorf("deliver to %s: HTTP %d", item.Inbox, resp.Status)
	}
	return nil
}
