package domain

import (
	"encoding/json"
	"strings"
)

const (
	// ContextActivityStreams is the @context carried by every envelope.
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"

	// PublicURI is the magic addressee meaning "everyone".
	PublicURI = "https://www.w3.org/ns/activitystreams#Public"

	// NullType marks a missing embedded object type in FSM dispatch.
	NullType = "(null)"

	ContentTypeActivity = "application/activity+json"
	ContentTypeLD       = "application/ld+json"
	ContentTypeJRD      = "application/jrd+json"
)

// Actor is the typed projection of a Person document. The stored
// map[string]any remains authoritative; this view only surfaces the fields
// federation needs.
type Actor struct {
	Context           any       `json:"@context,omitempty"`
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	PreferredUsername string    `json:"preferredUsername,omitempty"`
	Name              string    `json:"name,omitempty"`
	Summary           string    `json:"summary,omitempty"`
	URL               string    `json:"url,omitempty"`
	Inbox             string    `json:"inbox,omitempty"`
	Outbox            string    `json:"outbox,omitempty"`
	Followers         string    `json:"followers,omitempty"`
	Following         string    `json:"following,omitempty"`
	PublicKey         PublicKey `json:"publicKey,omitempty"`
	Endpoints         Endpoints `json:"endpoints,omitempty"`
}

type PublicKey struct {
	ID           string `json:"id,omitempty"`
	Owner        string `json:"owner,omitempty"`
	PublicKeyPem string `json:"publicKeyPem,omitempty"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// ActorFromObject projects a stored actor document into an Actor.
func ActorFromObject(obj map[string]any) (*Actor, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var actor Actor
	if err := json.Unmarshal(data, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

// Handle returns "@user@host" for display and notifications.
func (a *Actor) Handle() string {
	host := a.ID
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	name := a.PreferredUsername
	if name == "" {
		name = a.Name
	}
	return "@" + name + "@" + host
}

// DeliveryInbox returns the inbox deliveries should target, preferring the
// shared inbox when the actor advertises one.
func (a *Actor) DeliveryInbox() string {
	if a.Endpoints.SharedInbox != "" {
		return a.Endpoints.SharedInbox
	}
	return a.Inbox
}

// Envelope is the typed projection of an activity document used by the
// inbound dispatcher. UType is the embedded object's type, or NullType when
// the object is absent or a bare IRI.
type Envelope struct {
	ID       string
	Type     string
	Actor    string
	UType    string
	ObjectID string
	Object   map[string]any
}

func EnvelopeOf(activity map[string]any) Envelope {
	env := Envelope{
		ID:    GetString(activity, "id"),
		Type:  GetString(activity, "type"),
		UType: NullType,
	}

	switch actor := activity["actor"].(type) {
	case string:
		env.Actor = actor
	case map[string]any:
		env.Actor = GetString(actor, "id")
	}

	switch obj := activity["object"].(type) {
	case string:
		env.ObjectID = obj
	case map[string]any:
		env.Object = obj
		env.ObjectID = GetString(obj, "id")
		if t := GetString(obj, "type"); t != "" {
			env.UType = t
		}
	}

	return env
}

// GetString returns obj[key] when it is a string, else "".
func GetString(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	s, _ := obj[key].(string)
	return s
}

// GetList returns obj[key] as a string slice, accepting both a single
// string and an array of strings.
func GetList(obj map[string]any, key string) []string {
	if obj == nil {
		return nil
	}
	switch v := obj[key].(type) {
	case string:
		return []string{v}
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GetMap returns obj[key] when it is an object, else nil.
func GetMap(obj map[string]any, key string) map[string]any {
	if obj == nil {
		return nil
	}
	m, _ := obj[key].(map[string]any)
	return m
}

// Addressees unions the to and cc lists of a document, deduplicated in
// order of first appearance.
func Addressees(obj map[string]any) []string {
	var out []string
	seen := map[string]bool{}
	for _, key := range []string{"to", "cc"} {
		for _, r := range GetList(obj, key) {
			if r != "" && !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// IsPublic reports whether a document is addressed to the Public collection.
func IsPublic(obj map[string]any) bool {
	for _, r := range Addressees(obj) {
		if r == PublicURI {
			return true
		}
	}
	return false
}

// WebFinger JRD documents, as served and as parsed from remote servers.
type WebFingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []WebFingerLink `json:"links"`
}

type WebFingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}
