package storage

import (
	"net/http"
	"os"
	"testing"
)

func TestPutGetStatuses(t *testing.T) {
	s := newTestStore(t)
	id := "https://remote.example/notes/1"

	if code := s.Put(id, testNote(id, "https://remote.example/bob"), false); code != http.StatusCreated {
		t.Errorf("First Put = %d, want 201", code)
	}
	if code := s.Put(id, testNote(id, "https://remote.example/bob"), false); code != http.StatusNoContent {
		t.Errorf("Duplicate Put without overwrite = %d, want 204", code)
	}
	if code := s.Put(id, testNote(id, "https://remote.example/bob"), true); code != http.StatusOK {
		t.Errorf("Overwrite Put = %d, want 200", code)
	}

	obj, code := s.Get(id, "")
	if code != http.StatusOK {
		t.Fatalf("Get = %d, want 200", code)
	}
	if obj["id"] != id {
		t.Errorf("Stored id = %v, want %s", obj["id"], id)
	}

	// Lookup by the store key works the same.
	if _, code := s.Get(Md5Hex(id), ""); code != http.StatusOK {
		t.Errorf("Get by md5 = %d, want 200", code)
	}
}

func TestPutRejectsEmpty(t *testing.T) {
	s := newTestStore(t)

	if code := s.Put("", map[string]any{"type": "Note"}, false); code != http.StatusBadRequest {
		t.Errorf("Put with empty id = %d, want 400", code)
	}
	if code := s.Put("https://x/1", nil, false); code != http.StatusBadRequest {
		t.Errorf("Put with nil object = %d, want 400", code)
	}
}

func TestGetExpectedType(t *testing.T) {
	s := newTestStore(t)
	id := "https://remote.example/notes/2"
	s.Put(id, testNote(id, "https://remote.example/bob"), false)

	if obj, code := s.Get(id, "Note"); code != http.StatusOK || obj == nil {
		t.Errorf("Get with matching type = %d, want 200", code)
	}
	if obj, code := s.Get(id, "Person"); code != http.StatusNotFound || obj != nil {
		t.Errorf("Get with mismatched type = (%v, %d), want (nil, 404)", obj, code)
	}
	if _, code := s.Get("https://remote.example/missing", ""); code != http.StatusNotFound {
		t.Errorf("Get of missing object = %d, want 404", code)
	}
}

func TestPutWiresReplyIndexes(t *testing.T) {
	s := newTestStore(t)

	parentID := "https://example.com/alice/p/100"
	s.Put(parentID, testNote(parentID, "https://example.com/alice"), false)

	childID := "https://remote.example/notes/3"
	child := testNote(childID, "https://remote.example/bob")
	child["inReplyTo"] = parentID
	if code := s.Put(childID, child, false); code != http.StatusCreated {
		t.Fatalf("Put reply = %d, want 201", code)
	}

	children := s.Children(parentID)
	if len(children) != 1 || children[0] != Md5Hex(childID) {
		t.Errorf("Children(parent) = %v, want [%s]", children, Md5Hex(childID))
	}
	if got := s.Parent(childID); got != Md5Hex(parentID) {
		t.Errorf("Parent(child) = %s, want %s", got, Md5Hex(parentID))
	}

	// Storing the same reply again must not duplicate the relation.
	s.Put(childID, child, true)
	if got := s.Children(parentID); len(got) != 1 {
		t.Errorf("Children after second Put = %v, want one entry", got)
	}
}

func TestPutReplyBeforeParent(t *testing.T) {
	s := newTestStore(t)

	parentID := "https://remote.example/notes/parent"
	childID := "https://remote.example/notes/child"
	child := testNote(childID, "https://remote.example/bob")
	child["inReplyTo"] = parentID

	// The parent is not stored yet; the relation still lands on disk.
	s.Put(childID, child, false)

	if got := s.Children(parentID); len(got) != 1 || got[0] != Md5Hex(childID) {
		t.Errorf("Children of not-yet-stored parent = %v", got)
	}
}

func TestAdmire(t *testing.T) {
	s := newTestStore(t)
	id := "https://example.com/alice/p/200"
	s.Put(id, testNote(id, "https://example.com/alice"), false)

	actor := "https://remote.example/bob"

	if code := s.Admire(id, actor, AdmireLike); code != http.StatusCreated {
		t.Errorf("First like = %d, want 201", code)
	}
	if code := s.Admire(id, actor, AdmireLike); code != http.StatusOK {
		t.Errorf("Repeated like = %d, want 200", code)
	}
	if got := s.LikesCount(id); got != 1 {
		t.Errorf("LikesCount = %d, want 1", got)
	}
	if got := s.Likes(id); len(got) != 1 || got[0] != Md5Hex(actor) {
		t.Errorf("Likes = %v, want [%s]", got, Md5Hex(actor))
	}

	if code := s.Admire(id, actor, AdmireAnnounce); code != http.StatusCreated {
		t.Errorf("Announce = %d, want 201", code)
	}
	if got := s.AnnouncesCount(id); got != 1 {
		t.Errorf("AnnouncesCount = %d, want 1", got)
	}

	if code := s.Admire(id, actor, "boost"); code != http.StatusBadRequest {
		t.Errorf("Unknown admire kind = %d, want 400", code)
	}
}

func TestDelRemovesSidecars(t *testing.T) {
	s := newTestStore(t)
	id := "https://example.com/alice/p/300"
	s.Put(id, testNote(id, "https://example.com/alice"), false)
	s.Admire(id, "https://remote.example/bob", AdmireLike)
	s.Admire(id, "https://remote.example/carol", AdmireAnnounce)

	md := Md5Hex(id)
	if code := s.Del(id); code != http.StatusOK {
		t.Fatalf("Del = %d, want 200", code)
	}

	if _, err := os.Stat(s.ObjectPath(md)); !os.IsNotExist(err) {
		t.Error("Object file should be gone")
	}
	for _, kind := range []string{idxLikes, idxAnnounces} {
		if _, err := os.Stat(s.sidecarPath(md, kind)); !os.IsNotExist(err) {
			t.Errorf("Sidecar %s should be gone", kind)
		}
	}

	if code := s.Del(id); code != http.StatusNotFound {
		t.Errorf("Del of missing object = %d, want 404", code)
	}
}

func TestDelIfUnreferenced(t *testing.T) {
	s := newTestStore(t)
	addTestUser(t, s, "alice")

	id := "https://remote.example/notes/4"
	s.Put(id, testNote(id, "https://remote.example/bob"), false)

	// With a cache hardlink, the object must survive.
	if code := s.CacheAdd("alice", id, CachePrivate); code != http.StatusCreated {
		t.Fatalf("CacheAdd = %d", code)
	}
	if code := s.DelIfUnreferenced(id); code != http.StatusNoContent {
		t.Errorf("DelIfUnreferenced with cache link = %d, want 204", code)
	}
	if _, code := s.Get(id, ""); code != http.StatusOK {
		t.Error("Object should still be stored while referenced")
	}

	// After the last cache reference goes, it can be deleted.
	s.CacheDel("alice", id, CachePrivate)
	if code := s.DelIfUnreferenced(id); code != http.StatusOK {
		t.Errorf("DelIfUnreferenced without references = %d, want 200", code)
	}
	if _, code := s.Get(id, ""); code != http.StatusNotFound {
		t.Error("Object should be gone")
	}

	if code := s.DelIfUnreferenced(id); code != http.StatusNotFound {
		t.Errorf("DelIfUnreferenced of missing = %d, want 404", code)
	}
}
