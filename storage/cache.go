package storage

import (
	"net/http"
	"os"
)

// User cache names. private and public are timeline projections, followers
// holds cached actor documents. Each is a directory of hardlinks into the
// object tree plus a flat {cache}.idx.
const (
	CachePrivate   = "private"
	CachePublic    = "public"
	CacheFollowers = "followers"
)

// CacheAdd hardlinks the canonical object file into a user cache and
// appends its key to the cache index. The object must already be stored.
func (s *Store) CacheAdd(uid, idOrMd5, cache string) int {
	md := AsMd5(idOrMd5)

	if err := os.MkdirAll(s.cacheDir(uid, cache), 0755); err != nil {
		return http.StatusInternalServerError
	}

	dst := s.cachePath(uid, cache, md)
	if err := os.Link(s.ObjectPath(md), dst); err != nil {
		if os.IsExist(err) {
			return http.StatusOK
		}
		if os.IsNotExist(err) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}

	idx := s.cacheIndexPath(uid, cache)
	if in, _ := indexIn(idx, md); !in {
		if err := indexAdd(idx, md); err != nil {
			return http.StatusInternalServerError
		}
	}
	return http.StatusCreated
}

// CacheDel unlinks the cache file and removes the key from the index.
func (s *Store) CacheDel(uid, idOrMd5, cache string) int {
	md := AsMd5(idOrMd5)

	removeErr := os.Remove(s.cachePath(uid, cache, md))
	if err := indexDel(s.cacheIndexPath(uid, cache), md); err != nil {
		return http.StatusInternalServerError
	}

	if removeErr != nil {
		if os.IsNotExist(removeErr) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// CacheIn reports whether a user cache references an object.
func (s *Store) CacheIn(uid, idOrMd5, cache string) bool {
	_, err := os.Stat(s.cachePath(uid, cache, AsMd5(idOrMd5)))
	return err == nil
}

// CacheList returns up to max store keys of a cache, newest first. max <= 0
// returns everything.
func (s *Store) CacheList(uid, cache string, max int) []string {
	list, _ := indexListDesc(s.cacheIndexPath(uid, cache), 0, max)
	return list
}

func (s *Store) cachePath(uid, cache, md5 string) string {
	return s.cacheDir(uid, cache) + "/" + md5 + ".json"
}
