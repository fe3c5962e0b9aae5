package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/midnightbsd/go-mport/config"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mport.conf")
	contents := "database = /srv/pkg/master.db\nfetch_timeout_seconds = 30\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.DBPath != "/srv/pkg/master.db" {
		t.Errorf("DBPath = %q, want /srv/pkg/master.db", got.DBPath)
	}
	if got.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want 30s", got.FetchTimeout)
	}
	if got.Prefix != "/usr/local" {
		t.Errorf("Prefix = %q, want default /usr/local", got.Prefix)
	}
}

func TestLoadParsesMirrorRegionAndAssumeAlwaysYes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mport.conf")
	contents := "mirror_region = us-east\nassume_always_yes = true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.MirrorRegion != "us-east" {
		t.Errorf("MirrorRegion = %q, want us-east", got.MirrorRegion)
	}
	if !got.AssumeAlwaysYes {
		t.Errorf("AssumeAlwaysYes = false, want true")
	}
	if v, ok := got.Get("mirror_region"); !ok || v != "us-east" {
		t.Errorf("Get(mirror_region) = %q, %v, want us-east, true", v, ok)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	got, err := config.Load(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing file", err)
	}
	if got.DBPath != config.DefaultDBPath {
		t.Errorf("DBPath = %q, want default %q", got.DBPath, config.DefaultDBPath)
	}
}
