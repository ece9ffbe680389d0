package storage

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func testIndexPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.idx")
}

func fakeKey(i int) string {
	return Md5Hex(fmt.Sprintf("key-%d", i))
}

func TestIndexAddAndIn(t *testing.T) {
	path := testIndexPath(t)
	key := fakeKey(1)

	if in, _ := indexIn(path, key); in {
		t.Error("Missing index should not contain anything")
	}

	if err := indexAdd(path, key); err != nil {
		t.Fatalf("indexAdd failed: %v", err)
	}

	if in, err := indexIn(path, key); err != nil || !in {
		t.Errorf("indexIn after add = (%v, %v), want (true, nil)", in, err)
	}
	if in, _ := indexIn(path, fakeKey(2)); in {
		t.Error("indexIn should not report a key that was never added")
	}
}

func TestIndexRecordSize(t *testing.T) {
	path := testIndexPath(t)

	for i := 0; i < 5; i++ {
		if err := indexAdd(path, fakeKey(i)); err != nil {
			t.Fatalf("indexAdd failed: %v", err)
		}
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Size() != 5*recordLen {
		t.Errorf("File size = %d, want %d", st.Size(), 5*recordLen)
	}
	if got := indexLen(path); got != 5 {
		t.Errorf("indexLen = %d, want 5", got)
	}
}

func TestIndexRejectsBadRecords(t *testing.T) {
	path := testIndexPath(t)

	for _, bad := range []string{"", "short", "ABCDEF0123456789ABCDEF0123456789", fakeKey(0) + "0"} {
		if err := indexAdd(path, bad); err == nil {
			t.Errorf("indexAdd(%q) should fail", bad)
		}
	}
}

func TestIndexDel(t *testing.T) {
	path := testIndexPath(t)

	keys := []string{fakeKey(0), fakeKey(1), fakeKey(2)}
	for _, k := range keys {
		indexAdd(path, k)
	}

	if err := indexDel(path, keys[1]); err != nil {
		t.Fatalf("indexDel failed: %v", err)
	}

	if in, _ := indexIn(path, keys[1]); in {
		t.Error("Deleted key should be gone")
	}
	for _, k := range []string{keys[0], keys[2]} {
		if in, _ := indexIn(path, k); !in {
			t.Errorf("Key %s should survive the rewrite", k)
		}
	}
	if got := indexLen(path); got != 2 {
		t.Errorf("indexLen after del = %d, want 2", got)
	}

	// The rewrite keeps a .bak hardlink of the pre-delete index.
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("Expected .bak after delete: %v", err)
	}

	// Deleting an absent key is a no-op.
	if err := indexDel(path, fakeKey(99)); err != nil {
		t.Errorf("Deleting an absent key should not fail: %v", err)
	}
	if got := indexLen(path); got != 2 {
		t.Errorf("indexLen after no-op del = %d, want 2", got)
	}
}

func TestIndexListOrder(t *testing.T) {
	path := testIndexPath(t)

	var keys []string
	for i := 0; i < 7; i++ {
		k := fakeKey(i)
		keys = append(keys, k)
		indexAdd(path, k)
	}

	asc, err := indexList(path)
	if err != nil {
		t.Fatalf("indexList failed: %v", err)
	}
	if len(asc) != len(keys) {
		t.Fatalf("indexList returned %d records, want %d", len(asc), len(keys))
	}
	for i, k := range keys {
		if asc[i] != k {
			t.Errorf("asc[%d] = %s, want %s", i, asc[i], k)
		}
	}

	desc, err := indexListDesc(path, 0, 0)
	if err != nil {
		t.Fatalf("indexListDesc failed: %v", err)
	}
	for i := range desc {
		if desc[i] != keys[len(keys)-1-i] {
			t.Errorf("desc[%d] = %s, want %s", i, desc[i], keys[len(keys)-1-i])
		}
	}

	// skip and max slice from the newest end.
	window, _ := indexListDesc(path, 2, 3)
	want := []string{keys[4], keys[3], keys[2]}
	if len(window) != 3 {
		t.Fatalf("window length = %d, want 3", len(window))
	}
	for i := range want {
		if window[i] != want[i] {
			t.Errorf("window[%d] = %s, want %s", i, window[i], want[i])
		}
	}
}

func TestIndexFirst(t *testing.T) {
	path := testIndexPath(t)

	if got := indexFirst(path); got != "" {
		t.Errorf("indexFirst of missing index = %q, want empty", got)
	}

	indexAdd(path, fakeKey(0))
	indexAdd(path, fakeKey(1))

	if got := indexFirst(path); got != fakeKey(0) {
		t.Errorf("indexFirst = %s, want %s", got, fakeKey(0))
	}
}

// Random add/del churn preserving the invariants: size is always a
// multiple of the record length, length matches size, membership matches a
// model map, and guarded adds never duplicate.
func TestIndexRandomChurn(t *testing.T) {
	path := testIndexPath(t)
	rng := rand.New(rand.NewSource(42))

	model := map[string]bool{}
	universe := make([]string, 20)
	for i := range universe {
		universe[i] = fakeKey(i)
	}

	for op := 0; op < 300; op++ {
		key := universe[rng.Intn(len(universe))]
		if rng.Intn(2) == 0 {
			if in, _ := indexIn(path, key); !in {
				if err := indexAdd(path, key); err != nil {
					t.Fatalf("op %d: add failed: %v", op, err)
				}
			}
			model[key] = true
		} else {
			if err := indexDel(path, key); err != nil {
				t.Fatalf("op %d: del failed: %v", op, err)
			}
			delete(model, key)
		}

		st, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) && len(model) == 0 {
				continue
			}
			t.Fatalf("op %d: stat failed: %v", op, err)
		}
		if st.Size()%recordLen != 0 {
			t.Fatalf("op %d: size %d is not a multiple of %d", op, st.Size(), recordLen)
		}
		if got := indexLen(path); got != len(model) {
			t.Fatalf("op %d: indexLen = %d, model = %d", op, got, len(model))
		}
	}

	records, _ := indexList(path)
	seen := map[string]bool{}
	for _, r := range records {
		if seen[r] {
			t.Errorf("Duplicate record %s", r)
		}
		seen[r] = true
		if !model[r] {
			t.Errorf("Record %s present but deleted in model", r)
		}
	}
	for k := range model {
		if !seen[k] {
			t.Errorf("Record %s missing", k)
		}
	}
}
