package storage

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Purge expires old timeline data. Per user it drops cache entries older
// than timeline_purge_days and history older than local_purge_days; then it
// sweeps the global object tree, removing files past the timeline horizon
// that no cache links anymore. A purge_days value of 0 keeps data forever.
func (s *Store) Purge() error {
	started := time.Now()

	var timelineHorizon, localHorizon time.Time
	if days := s.conf.Conf.TimelinePurgeDays; days > 0 {
		timelineHorizon = started.AddDate(0, 0, -days)
	}
	if days := s.conf.Conf.LocalPurgeDays; days > 0 {
		localHorizon = started.AddDate(0, 0, -days)
	}

	err, uids := s.ListUsers()
	if err != nil {
		return err
	}

	cacheRemoved := 0
	for _, uid := range uids {
		if !timelineHorizon.IsZero() {
			cacheRemoved += s.purgeCache(uid, CachePrivate, timelineHorizon)
			cacheRemoved += s.purgeCache(uid, CachePublic, timelineHorizon)
			cacheRemoved += s.purgeDir(s.cacheDir(uid, "hidden"), timelineHorizon)
		}
		if !localHorizon.IsZero() {
			cacheRemoved += s.purgeDir(s.cacheDir(uid, "history"), localHorizon)
		}
	}

	objectsRemoved, bytesFreed := 0, int64(0)
	if !timelineHorizon.IsZero() {
		objectsRemoved, bytesFreed = s.purgeObjects(timelineHorizon)
	}

	log.Printf("Purge: %d cache entries, %d objects removed (%s freed) in %s",
		cacheRemoved, objectsRemoved, humanize.Bytes(uint64(bytesFreed)),
		time.Since(started).Round(time.Millisecond))
	return nil
}

// purgeCache unlinks cache files older than the horizon and rebuilds the
// cache index from the survivors, preserving order.
func (s *Store) purgeCache(uid, cache string, horizon time.Time) int {
	idx := s.cacheIndexPath(uid, cache)

	records, err := indexList(idx)
	if err != nil || len(records) == 0 {
		return 0
	}

	removed := 0
	var survivors []string
	for _, md := range records {
		path := s.cachePath(uid, cache, md)
		st, err := os.Stat(path)
		if err != nil {
			// Stale index entry; drop it from the rewrite.
			removed++
			continue
		}
		if st.ModTime().Before(horizon) {
			os.Remove(path)
			removed++
			continue
		}
		survivors = append(survivors, md)
	}

	if removed > 0 {
		rewriteIndex(idx, survivors)
	}
	return removed
}

// purgeDir removes plain files older than the horizon from a directory.
func (s *Store) purgeDir(dir string, horizon time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(horizon) {
			if os.Remove(filepath.Join(dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// purgeObjects sweeps the object tree for files past the horizon whose link
// count shows no cache reference. Sidecar indexes go with their object.
func (s *Store) purgeObjects(horizon time.Time) (int, int64) {
	removed, freed := 0, int64(0)

	objectRoot := filepath.Join(s.conf.BaseDir, "object")
	filepath.WalkDir(objectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		info, err := d.Info()
		if err != nil || !info.ModTime().Before(horizon) {
			return nil
		}

		if n, err := linkCount(path); err != nil || n >= 2 {
			return nil
		}

		md := strings.TrimSuffix(filepath.Base(path), ".json")
		if !looksLikeMd5(md) {
			return nil
		}

		freed += info.Size()
		removed++
		s.Del(md)
		return nil
	})

	return removed, freed
}

// rewriteIndex replaces an index with the given records, using the same
// .new/.bak/rename discipline as a single-record delete.
func rewriteIndex(path string, records []string) error {
	var buf []byte
	for _, r := range records {
		buf = append(buf, r...)
		buf = append(buf, '\n')
	}

	newPath := path + ".new"
	if err := os.WriteFile(newPath, buf, 0644); err != nil {
		return err
	}

	bakPath := path + ".bak"
	os.Remove(bakPath)
	os.Link(path, bakPath)

	return os.Rename(newPath, path)
}
