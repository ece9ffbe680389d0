package activitypub

import (
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/storage"
)

func TestNewNoteDefaultsToPublic(t *testing.T) {
	deps, _ := newTestDeps(t)
	user := newTestUser(t, deps, "alice")

	note, err := NewNote(deps, user, "hello world", "", nil)
	if err != nil {
		t.Fatalf("NewNote: %v", err)
	}

	id := domain.GetString(note, "id")
	if !strings.HasPrefix(id, "https://here.example/alice/p/") {
		t.Errorf("id = %q", id)
	}
	if to := domain.GetList(note, "to"); len(to) != 1 || to[0] != domain.PublicURI {
		t.Errorf("to = %v, want just Public", to)
	}
	if ctx := domain.GetString(note, "context"); ctx != id+"#ctxt" {
		t.Errorf("context = %q", ctx)
	}
	if got := domain.GetString(note, "content"); got != "<p>hello world</p>" {
		t.Errorf("content = %q", got)
	}
	if domain.GetString(note, "attributedTo") != "https://here.example/alice" {
		t.Errorf("attributedTo = %q", domain.GetString(note, "attributedTo"))
	}
}

func TestNewNoteMentionResolvesToTagAndCc(t *testing.T) {
	deps, client := newTestDeps(t)
	user := newTestUser(t, deps, "alice")

	jrd := domain.WebFingerResponse{
		Subject: "acct:bob@remote.example",
		Links: []domain.WebFingerLink{
			{Rel: "self", Type: domain.ContentTypeActivity, Href: "https://remote.example/bob"},
		},
	}
	client.SetTypedResponse(webfingerURL("remote.example", "acct:bob@remote.example"),
		http.StatusOK, domain.ContentTypeJRD, mustJSON(t, jrd))

	note, err := NewNote(deps, user, "hi @bob@remote.example, nice #weather", "", nil)
	if err != nil {
		t.Fatalf("NewNote: %v", err)
	}

	cc := domain.GetList(note, "cc")
	if len(cc) != 1 || cc[0] != "https://remote.example/bob" {
		t.Errorf("cc = %v", cc)
	}

	tags, _ := note["tag"].([]map[string]any)
	if len(tags) != 2 {
		t.Fatalf("tags = %v", note["tag"])
	}
	if tags[0]["type"] != "Mention" || tags[0]["href"] != "https://remote.example/bob" {
		t.Errorf("mention tag = %v", tags[0])
	}
	if tags[1]["type"] != "Hashtag" || tags[1]["name"] != "#weather" {
		t.Errorf("hashtag tag = %v", tags[1])
	}

	// mention text stays verbatim in the rendered content
	if !strings.Contains(domain.GetString(note, "content"), "@bob@remote.example") {
		t.Error("mention token missing from content")
	}
}

func TestNewNoteUnresolvableMentionSkipped(t *testing.T) {
	deps, _ := newTestDeps(t)
	user := newTestUser(t, deps, "alice")

	note, err := NewNote(deps, user, "hi @ghost@nowhere.example", "", nil)
	if err != nil {
		t.Fatalf("NewNote: %v", err)
	}
	if _, ok := note["tag"]; ok {
		t.Errorf("tag = %v, want none", note["tag"])
	}
	if cc := domain.GetList(note, "cc"); len(cc) != 0 {
		t.Errorf("cc = %v, want empty", cc)
	}
}

func TestNewNoteReplyAdoptsThread(t *testing.T) {
	deps, _ := newTestDeps(t)
	user := newTestUser(t, deps, "alice")

	parentID := "https://remote.example/bob/p/1"
	parent := map[string]any{
		"id":           parentID,
		"type":         "Note",
		"attributedTo": "https://remote.example/bob",
		"context":      "https://remote.example/bob/p/1#ctxt",
		"to":           []string{domain.PublicURI},
	}
	if code := deps.Store.Put(parentID, parent, false); !storage.ValidStatus(code) {
		t.Fatalf("store parent: %d", code)
	}

	note, err := NewNote(deps, user, "agreed", parentID, nil)
	if err != nil {
		t.Fatalf("NewNote: %v", err)
	}

	if got := domain.GetString(note, "inReplyTo"); got != parentID {
		t.Errorf("inReplyTo = %q", got)
	}
	if got := domain.GetString(note, "context"); got != "https://remote.example/bob/p/1#ctxt" {
		t.Errorf("context = %q", got)
	}

	to := domain.GetList(note, "to")
	var hasAuthor, hasPublic bool
	for _, r := range to {
		if r == "https://remote.example/bob" {
			hasAuthor = true
		}
		if r == domain.PublicURI {
			hasPublic = true
		}
	}
	if !hasAuthor {
		t.Errorf("to = %v, missing parent author", to)
	}
	if !hasPublic {
		t.Errorf("to = %v, parent was public", to)
	}
}

func TestNewNoteReplyToPrivateStaysPrivate(t *testing.T) {
	deps, _ := newTestDeps(t)
	user := newTestUser(t, deps, "alice")

	parentID := "https://remote.example/bob/p/2"
	parent := map[string]any{
		"id":           parentID,
		"type":         "Note",
		"attributedTo": "https://remote.example/bob",
		"to":           []string{"https://here.example/alice"},
	}
	deps.Store.Put(parentID, parent, false)

	note, err := NewNote(deps, user, "just between us", parentID, nil)
	if err != nil {
		t.Fatalf("NewNote: %v", err)
	}
	for _, r := range domain.GetList(note, "to") {
		if r == domain.PublicURI {
			t.Error("reply to a private note must not be public")
		}
	}
}

func TestNewCreateCopiesAddressing(t *testing.T) {
	deps, _ := newTestDeps(t)
	user := newTestUser(t, deps, "alice")

	note, err := NewNote(deps, user, "hello", "", []string{"https://remote.example/bob"})
	if err != nil {
		t.Fatalf("NewNote: %v", err)
	}
	create := NewCreate(deps.Conf, "alice", note)

	if got := domain.GetString(create, "id"); got != domain.GetString(note, "id")+"/Create" {
		t.Errorf("id = %q", got)
	}
	if got := domain.GetString(create, "type"); got != "Create" {
		t.Errorf("type = %q", got)
	}
	noteTo := domain.GetList(note, "to")
	createTo := domain.GetList(create, "to")
	if len(noteTo) != len(createTo) || noteTo[0] != createTo[0] {
		t.Errorf("create to = %v, note to = %v", createTo, noteTo)
	}
	if domain.GetMap(create, "object") == nil {
		t.Error("create carries no object")
	}
}

func TestNewAcceptEchoesFollow(t *testing.T) {
	deps, _ := newTestDeps(t)

	follow := map[string]any{
		"id":     "https://remote.example/activities/1",
		"type":   "Follow",
		"actor":  "https://remote.example/bob",
		"object": "https://here.example/alice",
	}
	accept := NewAccept(deps.Conf, "alice", follow)

	if got := domain.GetString(accept, "id"); got != "https://remote.example/activities/1/Accept" {
		t.Errorf("id = %q", got)
	}
	if got := domain.GetString(accept, "actor"); got != "https://here.example/alice" {
		t.Errorf("actor = %q", got)
	}
	if to := domain.GetList(accept, "to"); len(to) != 1 || to[0] != "https://remote.example/bob" {
		t.Errorf("to = %v", to)
	}
	if obj := domain.GetMap(accept, "object"); domain.GetString(obj, "id") != "https://remote.example/activities/1" {
		t.Errorf("object = %v", obj)
	}
}

func TestNewFollowAndUndo(t *testing.T) {
	deps, _ := newTestDeps(t)

	follow := NewFollow(deps.Conf, "alice", "https://remote.example/bob")
	if got := domain.GetString(follow, "type"); got != "Follow" {
		t.Errorf("type = %q", got)
	}
	if !strings.HasPrefix(domain.GetString(follow, "id"), "https://here.example/alice/d/") {
		t.Errorf("id = %q, want ephemeral", domain.GetString(follow, "id"))
	}
	if got := domain.GetString(follow, "object"); got != "https://remote.example/bob" {
		t.Errorf("object = %q", got)
	}

	undo := NewUndo(deps.Conf, "alice", follow)
	if got := domain.GetString(undo, "type"); got != "Undo" {
		t.Errorf("type = %q", got)
	}
	inner := domain.GetMap(undo, "object")
	if domain.GetString(inner, "id") != domain.GetString(follow, "id") {
		t.Error("undo must echo the original activity")
	}
}

func TestNewDeleteWrapsTombstone(t *testing.T) {
	deps, _ := newTestDeps(t)

	del := NewDelete(deps.Conf, "alice", "https://here.example/alice/p/1")
	obj := domain.GetMap(del, "object")
	if domain.GetString(obj, "type") != "Tombstone" {
		t.Errorf("object = %v", obj)
	}
	if domain.GetString(obj, "id") != "https://here.example/alice/p/1" {
		t.Errorf("tombstone id = %q", domain.GetString(obj, "id"))
	}
}

func TestNewPerson(t *testing.T) {
	deps, _ := newTestDeps(t)
	user := newTestUser(t, deps, "alice")

	person := NewPerson(deps.Conf, user)
	if got := domain.GetString(person, "id"); got != "https://here.example/alice" {
		t.Errorf("id = %q", got)
	}
	if got := domain.GetString(person, "inbox"); got != "https://here.example/alice/inbox" {
		t.Errorf("inbox = %q", got)
	}

	key := domain.GetMap(person, "publicKey")
	if domain.GetString(key, "id") != "https://here.example/alice#main-key" {
		t.Errorf("key id = %q", domain.GetString(key, "id"))
	}
	if domain.GetString(key, "publicKeyPem") != user.Keys.Public {
		t.Error("publicKeyPem does not match the stored key")
	}

	endpoints := domain.GetMap(person, "endpoints")
	if domain.GetString(endpoints, "sharedInbox") != "https://here.example/inbox" {
		t.Errorf("sharedInbox = %q", domain.GetString(endpoints, "sharedInbox"))
	}
}

func TestNewOrderedCollection(t *testing.T) {
	coll := NewOrderedCollection("https://here.example/alice/followers", 3, nil)
	if coll["totalItems"] != 3 {
		t.Errorf("totalItems = %v", coll["totalItems"])
	}
	if items, ok := coll["orderedItems"].([]any); !ok || len(items) != 0 {
		t.Errorf("orderedItems = %v", coll["orderedItems"])
	}
}
