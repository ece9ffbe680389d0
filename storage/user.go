package storage

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

// Per-user directories created by AddUser. private, public and followers
// are cache projections; following, muted and hidden hold plain md5-named
// JSON files; queue, static and history belong to the queue worker and the
// front-end collaborators.
var userDirs = []string{
	CachePrivate, CachePublic, CacheFollowers,
	"following", "muted", "hidden",
	"queue", "static", "history",
}

// AddUser creates the on-disk account: directories, user.json and key.json.
func (s *Store) AddUser(user *domain.User) error {
	uid := user.UID()
	if ok, msg := util.IsValidUID(uid); !ok {
		return fmt.Errorf("invalid uid %q: %s", uid, msg)
	}
	if s.UserExists(uid) {
		return fmt.Errorf("user %s already exists", uid)
	}

	for _, dir := range userDirs {
		if err := os.MkdirAll(filepath.Join(s.UserDir(uid), dir), 0755); err != nil {
			return err
		}
	}

	if err := writeJSON(s.userFile(uid, "user.json"), &user.Config, 0600); err != nil {
		return err
	}
	return writeJSON(s.userFile(uid, "key.json"), &user.Keys, 0600)
}

// WriteUserConfig rewrites user.json, preserving key.json.
func (s *Store) WriteUserConfig(uid string, config *domain.UserConfig) error {
	if !s.UserExists(uid) {
		return fmt.Errorf("no such user %s", uid)
	}
	return writeJSON(s.userFile(uid, "user.json"), config, 0600)
}

// ReadUser loads user.json and key.json of a local account.
func (s *Store) ReadUser(uid string) (error, *domain.User) {
	var user domain.User
	if err := readJSON(s.userFile(uid, "user.json"), &user.Config); err != nil {
		return fmt.Errorf("cannot read user %s: %w", uid, err), nil
	}
	if err := readJSON(s.userFile(uid, "key.json"), &user.Keys); err != nil {
		return fmt.Errorf("cannot read keys of %s: %w", uid, err), nil
	}
	return nil, &user
}

func (s *Store) UserExists(uid string) bool {
	if ok, _ := util.IsValidUID(uid); !ok {
		return false
	}
	_, err := os.Stat(s.userFile(uid, "user.json"))
	return err == nil
}

// ListUsers returns the uids that have a user.json, in directory order.
func (s *Store) ListUsers() (error, []string) {
	entries, err := os.ReadDir(filepath.Join(s.conf.BaseDir, "user"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return err, nil
	}

	var uids []string
	for _, e := range entries {
		if e.IsDir() && s.UserExists(e.Name()) {
			uids = append(uids, e.Name())
		}
	}
	return nil, uids
}

// FollowerAdd stores the follower's actor document and projects it into the
// followers cache.
func (s *Store) FollowerAdd(uid string, actorDoc map[string]any) int {
	actor := domain.GetString(actorDoc, "id")
	if actor == "" {
		return http.StatusBadRequest
	}

	if code := s.Put(actor, actorDoc, true); !ValidStatus(code) {
		return code
	}
	return s.CacheAdd(uid, actor, CacheFollowers)
}

// FollowerDel drops the follower projection. The actor document stays in
// the object tree until nothing references it.
func (s *Store) FollowerDel(uid, actor string) int {
	return s.CacheDel(uid, actor, CacheFollowers)
}

func (s *Store) IsFollower(uid, actor string) bool {
	return s.CacheIn(uid, actor, CacheFollowers)
}

// Followers returns the cached actor documents of a user's followers,
// newest first.
func (s *Store) Followers(uid string) []map[string]any {
	var out []map[string]any
	for _, md := range s.CacheList(uid, CacheFollowers, 0) {
		if doc, code := s.Get(md, ""); ValidStatus(code) {
			out = append(out, doc)
		}
	}
	return out
}

// FollowingAdd records that uid follows (or asked to follow) an actor.
func (s *Store) FollowingAdd(uid string, entry *domain.FollowingEntry) error {
	return writeJSON(s.followingPath(uid, entry.Actor), entry, 0644)
}

func (s *Store) FollowingDel(uid, actor string) error {
	err := os.Remove(s.followingPath(uid, actor))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) ReadFollowing(uid, actor string) (error, *domain.FollowingEntry) {
	var entry domain.FollowingEntry
	if err := readJSON(s.followingPath(uid, actor), &entry); err != nil {
		return err, nil
	}
	return nil, &entry
}

func (s *Store) IsFollowing(uid, actor string) bool {
	_, err := os.Stat(s.followingPath(uid, actor))
	return err == nil
}

// ListFollowing returns the actor URLs this user follows.
func (s *Store) ListFollowing(uid string) (error, []string) {
	entries, err := os.ReadDir(s.cacheDir(uid, "following"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return err, nil
	}

	var actors []string
	for _, e := range entries {
		var entry domain.FollowingEntry
		if err := readJSON(filepath.Join(s.cacheDir(uid, "following"), e.Name()), &entry); err != nil {
			continue
		}
		if entry.Actor != "" {
			actors = append(actors, entry.Actor)
		}
	}
	return nil, actors
}

// Mute suppresses storing and notifying anything authored or boosted by an
// actor.
func (s *Store) Mute(uid, actor string) error {
	return writeJSON(s.mutedPath(uid, actor), actor, 0644)
}

func (s *Store) Unmute(uid, actor string) error {
	err := os.Remove(s.mutedPath(uid, actor))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) IsMuted(uid, actor string) bool {
	_, err := os.Stat(s.mutedPath(uid, actor))
	return err == nil
}

// Hide marks a message id as hidden for this user: the object is still
// stored for thread integrity, but it is neither projected nor notified.
func (s *Store) Hide(uid, id string) error {
	return writeJSON(s.hiddenPath(uid, id), id, 0644)
}

func (s *Store) Unhide(uid, id string) error {
	err := os.Remove(s.hiddenPath(uid, id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) IsHidden(uid, id string) bool {
	_, err := os.Stat(s.hiddenPath(uid, id))
	return err == nil
}

func (s *Store) followingPath(uid, actor string) string {
	return filepath.Join(s.cacheDir(uid, "following"), Md5Hex(actor)+".json")
}

func (s *Store) mutedPath(uid, actor string) string {
	return filepath.Join(s.cacheDir(uid, "muted"), Md5Hex(actor)+".json")
}

func (s *Store) hiddenPath(uid, id string) string {
	return filepath.Join(s.cacheDir(uid, "hidden"), AsMd5(id)+".json")
}

func writeJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), perm)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
