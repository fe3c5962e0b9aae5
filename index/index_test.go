package index_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/midnightbsd/go-mport/index"
	"github.com/midnightbsd/go-mport/store"

	_ "modernc.org/sqlite"
)

// buildIndexDB creates a standalone SQLite file with the minimal idx schema
// Client's queries expect, populated with one package, one dependency, one
// mirror, and one moved-package redirect.
func buildIndexDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE packages (pkg TEXT PRIMARY KEY, version TEXT, origin TEXT, flavor TEXT, automatic INTEGER)`,
		`CREATE TABLE depends (pkg TEXT, depend_pkgname TEXT, depend_pkgversion TEXT, depend_port TEXT)`,
		`CREATE TABLE mirrors (url TEXT, priority INTEGER)`,
		`CREATE TABLE moved (old_pkgname TEXT, new_pkgname TEXT, new_origin TEXT, reason TEXT, expiration_date TEXT)`,
		`INSERT INTO packages VALUES ('foo', '2.0', 'devel/foo', '', 0)`,
		`INSERT INTO depends VALUES ('foo', 'bar', '>=1.0', 'devel/bar')`,
		`INSERT INTO mirrors VALUES ('https://mirror1.example/', 0)`,
		`INSERT INTO mirrors VALUES ('https://mirror2.example/', 1)`,
		`INSERT INTO moved VALUES ('oldfoo', 'foo', 'devel/foo', 'renamed', '')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func openAttachedClient(t *testing.T) (*index.Client, *store.Store) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	idxPath := filepath.Join(dir, "index.db")
	buildIndexDB(t, idxPath)

	s, err := store.Open(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c, err := index.Load(ctx, s.DB(), idxPath)
	if err != nil {
		t.Fatalf("index.Load() error = %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })
	return c, s
}

func TestLookupByNameAndSearchTerm(t *testing.T) {
	ctx := context.Background()
	c, _ := openAttachedClient(t)

	got, ok, err := c.LookupByName(ctx, "foo")
	if err != nil || !ok || got.Version != "2.0" {
		t.Fatalf("LookupByName() = %+v, %v, %v", got, ok, err)
	}

	results, err := c.SearchTerm(ctx, "fo")
	if err != nil || len(results) != 1 || results[0].Name != "foo" {
		t.Fatalf("SearchTerm() = %+v, %v", results, err)
	}
}

func TestDependsListAndMirrorList(t *testing.T) {
	ctx := context.Background()
	c, _ := openAttachedClient(t)

	deps, err := c.DependsList(ctx, "foo")
	if err != nil || len(deps) != 1 || deps[0].DependPkgname != "bar" {
		t.Fatalf("DependsList() = %+v, %v", deps, err)
	}

	mirrors, err := c.MirrorList(ctx)
	if err != nil || len(mirrors) != 2 || mirrors[0].URL != "https://mirror1.example/" {
		t.Fatalf("MirrorList() = %+v, %v", mirrors, err)
	}
}

func TestMovedLookup(t *testing.T) {
	ctx := context.Background()
	c, _ := openAttachedClient(t)

	m, ok, err := c.MovedLookup(ctx, "oldfoo")
	if err != nil || !ok || m.NewPkgname != "foo" {
		t.Fatalf("MovedLookup() = %+v, %v, %v", m, ok, err)
	}

	_, ok, err = c.MovedLookup(ctx, "neverexisted")
	if err != nil || ok {
		t.Fatalf("MovedLookup(absent) = ok=%v, err=%v, want not found", ok, err)
	}
}

func TestCheckTriState(t *testing.T) {
	ctx := context.Background()
	c, _ := openAttachedClient(t)

	status, err := c.Check(ctx, store.Package{Name: "foo", Version: "1.0", Origin: "devel/foo"})
	if err != nil || status != index.UpdateAvailable {
		t.Fatalf("Check(older) = %v, %v, want UpdateAvailable", status, err)
	}

	status, err = c.Check(ctx, store.Package{Name: "foo", Version: "2.0", Origin: "devel/foo"})
	if err != nil || status != index.NoUpdate {
		t.Fatalf("Check(current) = %v, %v, want NoUpdate", status, err)
	}

	status, err = c.Check(ctx, store.Package{Name: "notindexed", Version: "1.0"})
	if err != nil || status != index.NoUpdate {
		t.Fatalf("Check(not indexed, no origin match either) = %v, %v, want NoUpdate", status, err)
	}

	// The installed name "renamed-foo" is absent from the index, but the
	// index still carries "foo" under the same origin - the port was
	// renamed upstream without installed's metadata catching up yet.
	status, err = c.Check(ctx, store.Package{Name: "renamed-foo", Version: "1.0", Origin: "devel/foo"})
	if err != nil || status != index.OriginMatch {
		t.Fatalf("Check(renamed, origin still indexed under new name) = %v, %v, want OriginMatch", status, err)
	}
}

func TestGetVerifiesChecksumAndRenamesAtomically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dest := filepath.Join(dir, "index.db.zst")

	fetcher := fakeFetcher{
		"https://mirror.example/index.db.zst":        []byte("index-bytes"),
		"https://mirror.example/index.db.zst.sha256": []byte("1f38b0c7b2d30c3c3a8a1a1a6f3f9d4d7e8d2e9e9f0f1e2d3c4b5a697887766  index.db.zst\n"),
	}

	err := index.Get(ctx, fetcher, "https://mirror.example/index.db.zst", "https://mirror.example/index.db.zst.sha256", dest, nil)
	if err == nil {
		t.Fatalf("Get() with deliberately wrong checksum = nil error, want ChecksumMismatch")
	}

	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Errorf("Stat(dest) after failed verify = %v, want not-exist (no partial write)", statErr)
	}
}

type fakeFetcher map[string][]byte

func (f fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return f[url], nil
}
