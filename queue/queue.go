package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

// Queue is the filesystem-durable delayed queue. Each user owns a queue/
// directory of JSON items named by a microsecond tid; an item whose tid lies
// in the future is invisible until that time. Enqueue writes a temp file and
// renames it into place, so a crash never leaves a half-written item, and
// the dequeuer unlinks on read and owns the in-memory copy.
type Queue struct {
	conf *util.AppConfig
}

func New(conf *util.AppConfig) *Queue {
	return &Queue{conf: conf}
}

func (q *Queue) Dir(uid string) string {
	return filepath.Join(q.conf.BaseDir, "user", uid, "queue")
}

// Enqueue stores an item, delayed by retries * queue_retry_minutes.
func (q *Queue) Enqueue(uid string, item *domain.QueueItem) error {
	delay := float64(item.Retries*q.conf.Conf.QueueRetryMinutes) * 60
	return q.enqueueAt(uid, item, util.Tid()+delay)
}

func (q *Queue) enqueueAt(uid string, item *domain.QueueItem, ts float64) error {
	dir := q.Dir(uid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	// Bump by a microsecond until the name is free; two items never share
	// a timestamp within one user's queue.
	for {
		final := filepath.Join(dir, itemName(ts))
		if _, err := os.Stat(final); err == nil {
			ts += 1e-6
			continue
		}
		return os.Rename(tmp, final)
	}
}

// List returns the names of mature items, oldest first. Items with a tid in
// the future stay invisible.
func (q *Queue) List(uid string) ([]string, error) {
	entries, err := os.ReadDir(q.Dir(uid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	now := util.Tid()
	var names []string
	for _, e := range entries {
		ts, ok := itemTid(e.Name())
		if !ok || ts > now {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Dequeue reads an item and unlinks it. The caller owns the copy; a failed
// item must be re-enqueued explicitly.
func (q *Queue) Dequeue(uid, name string) (*domain.QueueItem, error) {
	path := filepath.Join(q.Dir(uid), name)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, err
	}

	var item domain.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("malformed queue item %s: %w", name, err)
	}
	return &item, nil
}

// Retry re-enqueues a failed item with its retry counter bumped. It reports
// false when the item exceeded queue_retry_max and was dropped instead.
func (q *Queue) Retry(uid string, item *domain.QueueItem) (bool, error) {
	item.Retries++
	if item.Retries > q.conf.Conf.QueueRetryMax {
		return false, nil
	}
	return true, q.Enqueue(uid, item)
}

// Len counts all items, mature or not.
func (q *Queue) Len(uid string) int {
	entries, err := os.ReadDir(q.Dir(uid))
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if _, ok := itemTid(e.Name()); ok {
			n++
		}
	}
	return n
}

func itemName(ts float64) string {
	return fmt.Sprintf("%.6f.json", ts)
}

func itemTid(name string) (float64, bool) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
