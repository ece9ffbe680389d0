package storage

import (
	"testing"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conf := &util.AppConfig{BaseDir: t.TempDir(), Conf: util.DefaultServerConfig()}
	conf.Conf.Host = "example.com"
	return New(conf)
}

func testNote(id, author string) map[string]any {
	return map[string]any{
		"id":           id,
		"type":         "Note",
		"attributedTo": author,
		"content":      "<p>hello</p>",
	}
}

func addTestUser(t *testing.T, s *Store, uid string) *domain.User {
	t.Helper()
	user := &domain.User{
		Config: domain.UserConfig{
			UID:       uid,
			Name:      uid,
			Published: "2025-01-01T00:00:00Z",
			Passwd:    util.HashPassword(uid, "secret"),
		},
		Keys: domain.KeyPair{Secret: "sk", Public: "pk"},
	}
	if err := s.AddUser(user); err != nil {
		t.Fatalf("AddUser(%s) failed: %v", uid, err)
	}
	return user
}

func TestMd5Hex(t *testing.T) {
	got := Md5Hex("https://example.com/alice/p/1")
	if len(got) != 32 {
		t.Errorf("Md5Hex length = %d, want 32", len(got))
	}
	if got != Md5Hex("https://example.com/alice/p/1") {
		t.Error("Md5Hex should be deterministic")
	}
}

func TestAsMd5(t *testing.T) {
	md := Md5Hex("https://example.com/x")
	if AsMd5(md) != md {
		t.Error("AsMd5 should pass a key through unchanged")
	}
	if AsMd5("https://example.com/x") != md {
		t.Error("AsMd5 should hash an id")
	}
	// Uppercase hex is not a store key.
	if AsMd5("ABCDEF0123456789ABCDEF0123456789") == "ABCDEF0123456789ABCDEF0123456789" {
		t.Error("AsMd5 should hash non-canonical input")
	}
}

func TestValidStatus(t *testing.T) {
	for code, want := range map[int]bool{200: true, 201: true, 204: true, 205: true, 299: true, 400: false, 404: false, 500: false, 199: false} {
		if got := ValidStatus(code); got != want {
			t.Errorf("ValidStatus(%d) = %v, want %v", code, got, want)
		}
	}
}
