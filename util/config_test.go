package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeServerJSON(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "server.json"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write server.json: %v", err)
	}
}

func TestReadConfDefaults(t *testing.T) {
	dir := t.TempDir()
	writeServerJSON(t, dir, `{"host": "example.com", "layout": 2.7}`)

	conf, err := ReadConf(dir)
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if conf.Conf.Host != "example.com" {
		t.Errorf("host = %q, want example.com", conf.Conf.Host)
	}
	if conf.Conf.Port != 8001 {
		t.Errorf("default port = %d, want 8001", conf.Conf.Port)
	}
	if conf.Conf.Address != "127.0.0.1" {
		t.Errorf("default address = %q, want 127.0.0.1", conf.Conf.Address)
	}
	if conf.Conf.QueueRetryMinutes != 2 {
		t.Errorf("default queue_retry_minutes = %d, want 2", conf.Conf.QueueRetryMinutes)
	}
	if conf.Conf.QueueRetryMax != 10 {
		t.Errorf("default queue_retry_max = %d, want 10", conf.Conf.QueueRetryMax)
	}
	if conf.Conf.TimelinePurgeDays != 120 {
		t.Errorf("default timeline_purge_days = %d, want 120", conf.Conf.TimelinePurgeDays)
	}
}

func TestReadConfOverrides(t *testing.T) {
	dir := t.TempDir()
	writeServerJSON(t, dir, `{
		"host": "social.example.org",
		"prefix": "/fedi",
		"address": "0.0.0.0",
		"port": 9090,
		"layout": 2.7,
		"dbglevel": 2,
		"queue_retry_minutes": 5,
		"queue_retry_max": 3,
		"max_timeline_entries": 64,
		"timeline_purge_days": 30,
		"local_purge_days": 7
	}`)

	conf, err := ReadConf(dir)
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if conf.Conf.Prefix != "/fedi" {
		t.Errorf("prefix = %q, want /fedi", conf.Conf.Prefix)
	}
	if conf.Conf.Port != 9090 {
		t.Errorf("port = %d, want 9090", conf.Conf.Port)
	}
	if conf.Conf.QueueRetryMax != 3 {
		t.Errorf("queue_retry_max = %d, want 3", conf.Conf.QueueRetryMax)
	}
	if conf.Conf.LocalPurgeDays != 7 {
		t.Errorf("local_purge_days = %d, want 7", conf.Conf.LocalPurgeDays)
	}
}

func TestReadConfErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"missing host", `{"layout": 2.7}`, "no host"},
		{"old layout", `{"host": "example.com", "layout": 2.0}`, "unsupported layout"},
		{"malformed json", `{"host": `, "cannot parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeServerJSON(t, dir, tt.content)

			_, err := ReadConf(dir)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestReadConfMissingFile(t *testing.T) {
	_, err := ReadConf(t.TempDir())
	if err == nil {
		t.Fatal("Expected an error for a basedir without server.json")
	}
}

func TestBaseURLAndActorURL(t *testing.T) {
	conf := &AppConfig{Conf: ServerConfig{Host: "example.com", Prefix: "/social"}}

	if got := conf.BaseURL(); got != "https://example.com/social" {
		t.Errorf("BaseURL = %q", got)
	}
	if got := conf.ActorURL("alice"); got != "https://example.com/social/alice" {
		t.Errorf("ActorURL = %q", got)
	}
}

func TestIsLocalActor(t *testing.T) {
	conf := &AppConfig{Conf: ServerConfig{Host: "example.com"}}

	tests := []struct {
		url     string
		wantUID string
		wantOK  bool
	}{
		{"https://example.com/alice", "alice", true},
		{"https://example.com/alice/inbox", "", false},
		{"https://other.example/alice", "", false},
		{"https://example.com/", "", false},
	}

	for _, tt := range tests {
		uid, ok := conf.IsLocalActor(tt.url)
		if uid != tt.wantUID || ok != tt.wantOK {
			t.Errorf("IsLocalActor(%q) = (%q, %v), want (%q, %v)", tt.url, uid, ok, tt.wantUID, tt.wantOK)
		}
	}
}

func TestWriteConfRoundtrip(t *testing.T) {
	dir := t.TempDir()
	conf := &AppConfig{BaseDir: dir, Conf: DefaultServerConfig()}
	conf.Conf.Host = "example.com"

	if err := conf.WriteConf(); err != nil {
		t.Fatalf("WriteConf failed: %v", err)
	}

	read, err := ReadConf(dir)
	if err != nil {
		t.Fatalf("ReadConf after WriteConf failed: %v", err)
	}
	if read.Conf.Host != "example.com" || read.Conf.Layout != LayoutVersion {
		t.Errorf("Roundtrip mismatch: %+v", read.Conf)
	}
}
