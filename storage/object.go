package storage

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/deemkeen/loxodon/domain"
)

// Sidecar index kinds.
const (
	idxChildren  = "c"
	idxParent    = "p"
	idxLikes     = "l"
	idxAnnounces = "a"
)

// Admire kinds.
const (
	AdmireLike     = "like"
	AdmireAnnounce = "announce"
)

// Put stores an object under the md5 of its id. When the object is new and
// carries an inReplyTo, the parent's children index gains this object and a
// one-record parent index is written beside the child. Returns 201 on
// create, 204 when present and overwrite is false, 200 on overwrite.
func (s *Store) Put(id string, obj map[string]any, overwrite bool) int {
	if id == "" || obj == nil {
		return http.StatusBadRequest
	}

	md := Md5Hex(id)
	if err := os.MkdirAll(s.objectDir(md), 0755); err != nil {
		return http.StatusInternalServerError
	}

	path := s.ObjectPath(md)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if exists && !overwrite {
		return http.StatusNoContent
	}

	data, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return http.StatusInternalServerError
	}
	data = append(data, '\n')

	f, err := lockFile(path, os.O_CREATE|os.O_WRONLY, unix.LOCK_EX)
	if err != nil {
		return http.StatusInternalServerError
	}
	defer f.Close()

	if err := f.Truncate(0); err != nil {
		return http.StatusInternalServerError
	}
	if _, err := f.Write(data); err != nil {
		return http.StatusInternalServerError
	}

	if !exists {
		if parent := domain.GetString(obj, "inReplyTo"); parent != "" {
			s.linkParent(md, parent)
		}
		return http.StatusCreated
	}
	return http.StatusOK
}

// linkParent wires the reply relation both ways: the child's key joins the
// parent's children index, and the child gets a one-record parent index.
// The parent object may not be stored yet; its index directory is created
// regardless so the relation survives out-of-order arrival.
func (s *Store) linkParent(childMd5, parentID string) {
	parentMd5 := Md5Hex(parentID)

	if err := os.MkdirAll(s.objectDir(parentMd5), 0755); err != nil {
		return
	}

	childrenIdx := s.sidecarPath(parentMd5, idxChildren)
	if in, _ := indexIn(childrenIdx, childMd5); !in {
		indexAdd(childrenIdx, childMd5)
	}

	parentIdx := s.sidecarPath(childMd5, idxParent)
	os.WriteFile(parentIdx, []byte(parentMd5+"\n"), 0644)
}

// Get reads an object by id or store key under a shared lock. When
// expectedType is set and the stored type differs, the object is treated as
// not found.
func (s *Store) Get(idOrMd5, expectedType string) (map[string]any, int) {
	md := AsMd5(idOrMd5)

	f, err := lockFile(s.ObjectPath(md), os.O_RDONLY, unix.LOCK_SH)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, http.StatusNotFound
		}
		return nil, http.StatusInternalServerError
	}
	defer f.Close()

	var obj map[string]any
	if err := json.NewDecoder(f).Decode(&obj); err != nil {
		return nil, http.StatusInternalServerError
	}

	if expectedType != "" && domain.GetString(obj, "type") != expectedType {
		return nil, http.StatusNotFound
	}
	return obj, http.StatusOK
}

// Del unlinks the object file and every sidecar index it owns.
func (s *Store) Del(idOrMd5 string) int {
	md := AsMd5(idOrMd5)

	if err := os.Remove(s.ObjectPath(md)); err != nil {
		if os.IsNotExist(err) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}

	sidecars, _ := filepath.Glob(filepath.Join(s.objectDir(md), md+"_*.idx"))
	for _, sc := range sidecars {
		os.Remove(sc)
	}
	return http.StatusOK
}

// DelIfUnreferenced deletes the object only when no user cache still links
// its canonical file. Returns 204 when the object stays because a cache
// holds a reference.
func (s *Store) DelIfUnreferenced(idOrMd5 string) int {
	md := AsMd5(idOrMd5)

	n, err := linkCount(s.ObjectPath(md))
	if err != nil {
		if os.IsNotExist(err) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}
	if n >= 2 {
		return http.StatusNoContent
	}
	return s.Del(md)
}

// Admire records a like or announce of an object by an actor, once.
func (s *Store) Admire(idOrMd5, actor, kind string) int {
	var suffix string
	switch kind {
	case AdmireLike:
		suffix = idxLikes
	case AdmireAnnounce:
		suffix = idxAnnounces
	default:
		return http.StatusBadRequest
	}

	md := AsMd5(idOrMd5)
	if err := os.MkdirAll(s.objectDir(md), 0755); err != nil {
		return http.StatusInternalServerError
	}

	idx := s.sidecarPath(md, suffix)
	actorMd5 := Md5Hex(actor)

	if in, err := indexIn(idx, actorMd5); err != nil {
		return http.StatusInternalServerError
	} else if in {
		return http.StatusOK
	}

	if err := indexAdd(idx, actorMd5); err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusCreated
}

// Children returns the store keys of the direct replies to an object.
func (s *Store) Children(idOrMd5 string) []string {
	list, _ := indexList(s.sidecarPath(AsMd5(idOrMd5), idxChildren))
	return list
}

// Parent returns the store key of the object this one replies to, or "".
func (s *Store) Parent(idOrMd5 string) string {
	return indexFirst(s.sidecarPath(AsMd5(idOrMd5), idxParent))
}

// Likes returns the store keys of the actors that liked an object.
func (s *Store) Likes(idOrMd5 string) []string {
	list, _ := indexList(s.sidecarPath(AsMd5(idOrMd5), idxLikes))
	return list
}

// Announces returns the store keys of the actors that announced an object.
func (s *Store) Announces(idOrMd5 string) []string {
	list, _ := indexList(s.sidecarPath(AsMd5(idOrMd5), idxAnnounces))
	return list
}

// LikesCount derives the count from the index file size alone.
func (s *Store) LikesCount(idOrMd5 string) int {
	return indexLen(s.sidecarPath(AsMd5(idOrMd5), idxLikes))
}

// AnnouncesCount derives the count from the index file size alone.
func (s *Store) AnnouncesCount(idOrMd5 string) int {
	return indexLen(s.sidecarPath(AsMd5(idOrMd5), idxAnnounces))
}
