package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationKind says what a remote actor did to warrant mail.
type NotificationKind string

const (
	NotificationFollow   NotificationKind = "follow"
	NotificationUnfollow NotificationKind = "unfollow"
	NotificationNote     NotificationKind = "note"
	NotificationLike     NotificationKind = "like"
	NotificationAnnounce NotificationKind = "announce"
)

// Notification describes an event worth mailing to a local user: a new
// follower, a note addressed to us, a like or announce of our content.
type Notification struct {
	Kind     NotificationKind
	Actor    string // "@user@host" handle of the acting remote actor
	ObjectID string // id of the note involved, empty for follows
	Preview  string // first line of the note content, plain text
}

// KindLabel returns the verb phrase used in subjects and bodies.
func (n *Notification) KindLabel() string {
	switch n.Kind {
	case NotificationFollow:
		return "followed you"
	case NotificationUnfollow:
		return "unfollowed you"
	case NotificationNote:
		return "sent you a note"
	case NotificationLike:
		return "liked your note"
	case NotificationAnnounce:
		return "announced your note"
	default:
		return string(n.Kind)
	}
}

// Summary returns a one-line description of the notification.
func (n *Notification) Summary() string {
	return fmt.Sprintf("%s %s", n.Actor, n.KindLabel())
}

// ComposeMail renders the notification as an RFC 822 message ready for the
// email queue. The server name goes in From, the user's configured address
// in To.
func (n *Notification) ComposeMail(server, to string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <noreply@%s>\r\n", server, server)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", n.Summary())
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("\r\n")
	b.WriteString(n.Summary())
	b.WriteString("\r\n")
	if n.ObjectID != "" {
		fmt.Fprintf(&b, "\r\n%s\r\n", n.ObjectID)
	}
	if n.Preview != "" {
		fmt.Fprintf(&b, "\r\n> %s\r\n", n.Preview)
	}
	return b.String()
}
