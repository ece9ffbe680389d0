package storage

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/deemkeen/loxodon/util"
)

// Store is the filesystem-native database rooted at a basedir. Objects are
// content-addressed by the md5 of their id, relations live in fixed-record
// sidecar indexes, and per-user timelines are hardlink projections over the
// canonical object tree. All mutation is serialized with POSIX advisory
// locks, which also makes the layout safe to share between the daemon and
// the command line tools.
type Store struct {
	conf *util.AppConfig
}

func New(conf *util.AppConfig) *Store {
	return &Store{conf: conf}
}

func (s *Store) Conf() *util.AppConfig {
	return s.conf
}

func (s *Store) BaseDir() string {
	return s.conf.BaseDir
}

// Md5Hex returns the store key of an object id.
func Md5Hex(id string) string {
	sum := md5.Sum([]byte(id))
	return hex.EncodeToString(sum[:])
}

// AsMd5 passes through a value that already is a store key and hashes
// anything else, so callers can use ids and keys interchangeably.
func AsMd5(idOrMd5 string) string {
	if looksLikeMd5(idOrMd5) {
		return idOrMd5
	}
	return Md5Hex(idOrMd5)
}

func looksLikeMd5(s string) bool {
	if len(s) != 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (s *Store) objectDir(md5 string) string {
	return filepath.Join(s.conf.BaseDir, "object", md5[0:2])
}

// ObjectPath returns the canonical file of an object key.
func (s *Store) ObjectPath(md5 string) string {
	return filepath.Join(s.objectDir(md5), md5+".json")
}

func (s *Store) sidecarPath(md5, kind string) string {
	return filepath.Join(s.objectDir(md5), md5+"_"+kind+".idx")
}

func (s *Store) UserDir(uid string) string {
	return filepath.Join(s.conf.BaseDir, "user", uid)
}

func (s *Store) userFile(uid, name string) string {
	return filepath.Join(s.UserDir(uid), name)
}

func (s *Store) cacheDir(uid, cache string) string {
	return filepath.Join(s.UserDir(uid), cache)
}

func (s *Store) cacheIndexPath(uid, cache string) string {
	return filepath.Join(s.UserDir(uid), cache+".idx")
}

// lockFile opens path and takes a flock of the given type (unix.LOCK_EX or
// unix.LOCK_SH). Closing the file releases the lock.
func lockFile(path string, openFlags int, lockType int) (*os.File, error) {
	f, err := os.OpenFile(path, openFlags, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), lockType); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// linkCount returns the hardlink count of a file. A canonical object file
// with a count of 2 or more is still referenced by some user cache.
func linkCount(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Nlink), nil
}

// ValidStatus reports whether an object layer status means success.
func ValidStatus(code int) bool {
	return code >= 200 && code <= 299
}
