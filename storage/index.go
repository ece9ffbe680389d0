package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Index files are flat, append-only sequences of 33-byte records: 32 hex
// characters plus a newline. filesize/33 is the authoritative length, and a
// single append write keeps readers aligned on record boundaries.

const recordLen = 33

func checkRecord(md5 string) error {
	if !looksLikeMd5(md5) {
		return fmt.Errorf("invalid index record %q", md5)
	}
	return nil
}

// indexAdd appends one record under exclusive lock. Callers that need
// set semantics check indexIn first.
func indexAdd(path, md5 string) error {
	if err := checkRecord(md5); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := lockFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write([]byte(md5 + "\n"))
	return err
}

// indexDel removes every occurrence of a record. The surviving records are
// written to {path}.new, the original is hardlinked to {path}.bak, and the
// rewrite is renamed over the original. Removing an absent record is a
// no-op.
func indexDel(path, md5 string) error {
	if err := checkRecord(md5); err != nil {
		return err
	}

	f, err := lockFile(path, os.O_RDONLY, unix.LOCK_EX)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		return err
	}

	found := false
	survivors := make([]byte, 0, len(records)*recordLen)
	for _, r := range records {
		if r == md5 {
			found = true
			continue
		}
		survivors = append(survivors, r...)
		survivors = append(survivors, '\n')
	}
	if !found {
		return nil
	}

	newPath := path + ".new"
	if err := os.WriteFile(newPath, survivors, 0644); err != nil {
		return err
	}

	bakPath := path + ".bak"
	os.Remove(bakPath)
	if err := os.Link(path, bakPath); err != nil {
		return err
	}

	return os.Rename(newPath, path)
}

// indexIn reports whether a record is present.
func indexIn(path, md5 string) (bool, error) {
	if err := checkRecord(md5); err != nil {
		return false, err
	}

	f, err := lockFile(path, os.O_RDONLY, unix.LOCK_SH)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r == md5 {
			return true, nil
		}
	}
	return false, nil
}

// indexLen divides the file size by the record length. Missing files have
// length zero.
func indexLen(path string) int {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return int(st.Size() / recordLen)
}

// indexFirst returns the oldest record, or "".
func indexFirst(path string) string {
	f, err := lockFile(path, os.O_RDONLY, unix.LOCK_SH)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, recordLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return ""
	}
	return string(buf[:recordLen-1])
}

// indexList returns all records, oldest first.
func indexList(path string) ([]string, error) {
	f, err := lockFile(path, os.O_RDONLY, unix.LOCK_SH)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	return readRecords(f)
}

// indexListDesc returns up to maxItems records, newest first, skipping the
// newest skip entries. maxItems <= 0 means all. It seeks backward from the
// end in record-sized steps instead of reading the whole file.
func indexListDesc(path string, skip, maxItems int) ([]string, error) {
	f, err := lockFile(path, os.O_RDONLY, unix.LOCK_SH)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	total := int(st.Size() / recordLen)

	if maxItems <= 0 {
		maxItems = total
	}

	var out []string
	buf := make([]byte, recordLen)
	for i := total - 1 - skip; i >= 0 && len(out) < maxItems; i-- {
		if _, err := f.ReadAt(buf, int64(i)*recordLen); err != nil {
			return out, err
		}
		out = append(out, string(buf[:recordLen-1]))
	}
	return out, nil
}

func readRecords(f *os.File) ([]string, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var out []string
	for i := 0; i+recordLen <= len(data); i += recordLen {
		out = append(out, string(data[i:i+recordLen-1]))
	}
	return out, nil
}
