// Package config loads mport's INI-style settings file into a Settings
// value. No component reads configuration itself; main constructs one
// Settings and passes the fields each component needs (spec §6).
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultPath is where mport looks for its settings file absent a -c
// override.
const DefaultPath = "/etc/mport.conf"

// DefaultDBPath is the live package database's default location.
const DefaultDBPath = "/var/db/mport/master.db"

// DefaultLockPath is the advisory lock file's default location.
const DefaultLockPath = "/var/db/mport/.lock"

// DefaultInfraDir is the base directory under which each installed
// package's hook scripts and mtree skeleton are persisted, one
// subdirectory per "<name>-<version>" (spec §6).
const DefaultInfraDir = "/var/db/mport/infrastructure"

// Settings is the parsed contents of mport.conf plus the defaults that apply
// when a key is absent.
type Settings struct {
	DBPath          string
	LockPath        string
	Prefix          string
	MirrorRoot      string
	MirrorRegion    string
	OSRelease       string
	Arch            string
	FetchTimeout    time.Duration
	AssumeAlwaysYes bool
	AuditFeedURL    string
}

// Keys returns the recognized mport.conf key names in a stable order, for
// "mport config list" (spec §6); Get supplies each key's current value.
func (s Settings) Keys() []string {
	return []string{"database", "lockfile", "prefix", "mirror_root", "mirror_region",
		"os_release", "arch", "fetch_timeout_seconds", "assume_always_yes", "audit_feed_url"}
}

// Get returns the string form of key's current value, or ok=false if key
// isn't one of the recognized settings.
func (s Settings) Get(key string) (string, bool) {
	switch key {
	case "database":
		return s.DBPath, true
	case "lockfile":
		return s.LockPath, true
	case "prefix":
		return s.Prefix, true
	case "mirror_root":
		return s.MirrorRoot, true
	case "mirror_region":
		return s.MirrorRegion, true
	case "os_release":
		return s.OSRelease, true
	case "arch":
		return s.Arch, true
	case "fetch_timeout_seconds":
		return fmt.Sprintf("%d", int(s.FetchTimeout.Seconds())), true
	case "assume_always_yes":
		return fmt.Sprintf("%v", s.AssumeAlwaysYes), true
	case "audit_feed_url":
		return s.AuditFeedURL, true
	default:
		return "", false
	}
}

// Default returns the settings a fresh installation uses before any config
// file is read.
func Default() Settings {
	return Settings{
		DBPath:       DefaultDBPath,
		LockPath:     DefaultLockPath,
		Prefix:       "/usr/local",
		MirrorRoot:   "https://mirror.midnightbsd.org/mport",
		FetchTimeout: 120 * time.Second,
	}
}

// Load reads path (an INI file) and overlays it on Default(). A missing file
// is not an error: Default() alone is returned.
func Load(path string) (Settings, error) {
	s := Default()

	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true, Insensitive: true}, path)
	if err != nil {
		return s, fmt.Errorf("config: load %q: %w", path, err)
	}

	sec := cfg.Section("")
	if k := sec.Key("database"); k.String() != "" {
		s.DBPath = k.String()
	}
	if k := sec.Key("lockfile"); k.String() != "" {
		s.LockPath = k.String()
	}
	if k := sec.Key("prefix"); k.String() != "" {
		s.Prefix = k.String()
	}
	if k := sec.Key("mirror_root"); k.String() != "" {
		s.MirrorRoot = k.String()
	}
	if k := sec.Key("os_release"); k.String() != "" {
		s.OSRelease = k.String()
	}
	if k := sec.Key("arch"); k.String() != "" {
		s.Arch = k.String()
	}
	if k := sec.Key("fetch_timeout_seconds"); k.String() != "" {
		secs, err := k.Int()
		if err != nil {
			return s, fmt.Errorf("config: parse fetch_timeout_seconds: %w", err)
		}
		s.FetchTimeout = time.Duration(secs) * time.Second
	}
	if k := sec.Key("mirror_region"); k.String() != "" {
		s.MirrorRegion = k.String()
	}
	if k := sec.Key("assume_always_yes"); k.String() != "" {
		yes, err := k.Bool()
		if err != nil {
			return s, fmt.Errorf("config: parse assume_always_yes: %w", err)
		}
		s.AssumeAlwaysYes = yes
	}
	if k := sec.Key("audit_feed_url"); k.String() != "" {
		s.AuditFeedURL = k.String()
	}

	return s, nil
}
