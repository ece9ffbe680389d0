package util

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const Name = "loxodon"

// LayoutVersion is the disk layout generation this build reads and writes.
// Older basedirs are refused instead of migrated.
const LayoutVersion = 2.7

// ServerConfig mirrors {basedir}/server.json.
type ServerConfig struct {
	Host               string  `json:"host"`
	Prefix             string  `json:"prefix"`
	Address            string  `json:"address"`
	Port               int     `json:"port"`
	Layout             float64 `json:"layout"`
	DbgLevel           int     `json:"dbglevel"`
	QueueRetryMinutes  int     `json:"queue_retry_minutes"`
	QueueRetryMax      int     `json:"queue_retry_max"`
	MaxTimelineEntries int     `json:"max_timeline_entries"`
	TimelinePurgeDays  int     `json:"timeline_purge_days"`
	LocalPurgeDays     int     `json:"local_purge_days"`
	WithJournald       bool    `json:"with_journald,omitempty"`
}

// AppConfig bundles the parsed server configuration with the basedir it
// was loaded from. It is created once at startup and treated as read-only.
type AppConfig struct {
	BaseDir string
	Conf    ServerConfig
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:            "127.0.0.1",
		Port:               8001,
		Layout:             LayoutVersion,
		QueueRetryMinutes:  2,
		QueueRetryMax:      10,
		MaxTimelineEntries: 256,
		TimelinePurgeDays:  120,
		LocalPurgeDays:     0,
	}
}

// ReadConf loads {basedir}/server.json. Missing numeric settings fall back
// to the defaults; a layout older than LayoutVersion is an error.
func ReadConf(basedir string) (*AppConfig, error) {
	basedir = filepath.Clean(basedir)

	data, err := os.ReadFile(filepath.Join(basedir, "server.json"))
	if err != nil {
		return nil, fmt.Errorf("cannot read server.json in %s: %w", basedir, err)
	}

	conf := DefaultServerConfig()
	if err := json.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("cannot parse server.json: %w", err)
	}

	if conf.Host == "" {
		return nil, fmt.Errorf("server.json has no host")
	}
	if conf.Layout < LayoutVersion {
		return nil, fmt.Errorf("unsupported layout %.1f (need %.1f or newer)", conf.Layout, LayoutVersion)
	}

	return &AppConfig{BaseDir: basedir, Conf: conf}, nil
}

// WriteConf writes the configuration back to {basedir}/server.json.
// Only used by the init command; a running server never rewrites it.
func (a *AppConfig) WriteConf() error {
	data, err := json.MarshalIndent(&a.Conf, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.BaseDir, "server.json"), append(data, '\n'), 0644)
}

// BaseURL returns the public https base of this instance, prefix included.
func (a *AppConfig) BaseURL() string {
	return "https://" + a.Conf.Host + a.Conf.Prefix
}

// ActorURL returns the canonical actor id of a local user.
func (a *AppConfig) ActorURL(uid string) string {
	return a.BaseURL() + "/" + uid
}

// IsLocalActor reports whether url names an actor on this instance and, if
// so, which one.
func (a *AppConfig) IsLocalActor(url string) (string, bool) {
	prefix := a.BaseURL() + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	uid := strings.TrimPrefix(url, prefix)
	if uid == "" || strings.Contains(uid, "/") {
		return "", false
	}
	return uid, true
}

// Debugf logs when the configured dbglevel is at least level.
func (a *AppConfig) Debugf(level int, format string, args ...any) {
	if a.Conf.DbgLevel >= level {
		log.Printf(format, args...)
	}
}
