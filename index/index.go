// Package index implements the mirror index client described in spec §4.G:
// loading a downloaded index database, looking packages up by name or
// search term, listing dependencies and mirrors, resolving moved-package
// redirects, and the tri-state freshness check used by the upgrade planner.
package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/stats"
	"github.com/midnightbsd/go-mport/store"
	"github.com/midnightbsd/go-mport/version"
)

// Status is the tri-state result of Client.Check, spec §4.G.
type Status int

// Recognized Check results.
const (
	NoUpdate Status = iota
	UpdateAvailable
	OriginMatch
)

// MovedEntry is a row of the index's moved-package table: the old name is
// redirected to a new name/origin, optionally with an expiration note.
type MovedEntry struct {
	OldPkgname string
	NewPkgname string
	NewOrigin  string
	Reason     string
	Expiration string
}

// Client wraps an attached index database plus the HTTP fetcher used to
// refresh it.
type Client struct {
	db      *sql.DB
	fetcher collab.HttpFetcher
}

// New returns a Client backed by db (already migrated/attached as the
// "idx" schema by Load) and fetcher for refreshing the local copy.
func New(db *sql.DB, fetcher collab.HttpFetcher) *Client {
	return &Client{db: db, fetcher: fetcher}
}

// Load opens the index database at path (a copy fetched by Get) and
// attaches it under the idx schema name so queries can address
// idx.packages etc. without a second *sql.DB connection pool.
func Load(ctx context.Context, liveDB *sql.DB, path string) (*Client, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.New(errs.IndexNotLoaded, "index.Load", err)
	}
	if _, err := liveDB.ExecContext(ctx, `ATTACH DATABASE ? AS idx`, path); err != nil {
		return nil, errs.New(errs.IndexNotLoaded, "index.Load", err)
	}
	return &Client{db: liveDB}, nil
}

// Close detaches the idx schema.
func (c *Client) Close(ctx context.Context) {
	c.db.ExecContext(ctx, `DETACH DATABASE idx`)
}

// Get fetches the index archive at url, verifies it against the SHA-256
// digest at sha256URL, and atomically replaces destPath with the verified
// download (temp-file-then-rename, so a reader never observes a
// partially-written index). A nil collector is treated as stats.NoopCollector.
func Get(ctx context.Context, fetcher collab.HttpFetcher, url, sha256URL, destPath string, collector stats.Collector) error {
	if collector == nil {
		collector = stats.NoopCollector{}
	}
	start := time.Now()
	var bytesRead int64

	err := func() error {
		data, err := fetcher.Get(ctx, url)
		if err != nil {
			return err
		}
		bytesRead = int64(len(data))
		wantSumBytes, err := fetcher.Get(ctx, sha256URL)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		got := hex.EncodeToString(sum[:])
		want := firstToken(string(wantSumBytes))
		if got != want {
			return errs.New(errs.ChecksumMismatch, "index.Get", fmt.Errorf("index checksum %s, want %s", got, want))
		}

		tmp := destPath + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return errs.New(errs.Fatal, "index.Get", err)
		}
		if err := os.Rename(tmp, destPath); err != nil {
			os.Remove(tmp)
			return errs.New(errs.Fatal, "index.Get", err)
		}
		return nil
	}()

	collector.AfterIndexFetch(time.Since(start), bytesRead, err)
	return err
}

func firstToken(s string) string {
	for i, c := range s {
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			return s[:i]
		}
	}
	return s
}

// LookupByName returns the index's record for name, or ok=false if absent.
func (c *Client) LookupByName(ctx context.Context, name string) (store.Package, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT pkg, version, origin, flavor, automatic FROM idx.packages WHERE pkg = ?`, name)
	var p store.Package
	var automatic int
	if err := row.Scan(&p.Name, &p.Version, &p.Origin, &p.Flavor, &automatic); err != nil {
		if err == sql.ErrNoRows {
			return store.Package{}, false, nil
		}
		return store.Package{}, false, errs.New(errs.DbCorruption, "index.LookupByName", err)
	}
	p.Automatic = automatic != 0
	return p, true, nil
}

// LookupByOrigin returns the index's record for a package with the given
// origin, used by the upgrade planner's rename-reconciliation pass to find
// the new name a renamed port now uses.
func (c *Client) LookupByOrigin(ctx context.Context, origin string) (store.Package, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT pkg, version, origin, flavor, automatic FROM idx.packages WHERE origin = ?`, origin)
	var p store.Package
	var automatic int
	if err := row.Scan(&p.Name, &p.Version, &p.Origin, &p.Flavor, &automatic); err != nil {
		if err == sql.ErrNoRows {
			return store.Package{}, false, nil
		}
		return store.Package{}, false, errs.New(errs.DbCorruption, "index.LookupByOrigin", err)
	}
	p.Automatic = automatic != 0
	return p, true, nil
}

// SearchTerm returns every index package whose name contains term.
func (c *Client) SearchTerm(ctx context.Context, term string) ([]store.Package, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT pkg, version, origin, flavor, automatic FROM idx.packages WHERE pkg LIKE '%' || ? || '%' ORDER BY pkg`, term)
	if err != nil {
		return nil, errs.New(errs.DbCorruption, "index.SearchTerm", err)
	}
	defer rows.Close()
	var out []store.Package
	for rows.Next() {
		var p store.Package
		var automatic int
		if err := rows.Scan(&p.Name, &p.Version, &p.Origin, &p.Flavor, &automatic); err != nil {
			return nil, errs.New(errs.DbCorruption, "index.SearchTerm", err)
		}
		p.Automatic = automatic != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// DependsList returns the index's declared dependency edges for name.
func (c *Client) DependsList(ctx context.Context, name string) ([]store.Dependency, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT pkg, depend_pkgname, depend_pkgversion, depend_port FROM idx.depends WHERE pkg = ?`, name)
	if err != nil {
		return nil, errs.New(errs.DbCorruption, "index.DependsList", err)
	}
	defer rows.Close()
	var out []store.Dependency
	for rows.Next() {
		var d store.Dependency
		if err := rows.Scan(&d.Pkg, &d.DependPkgname, &d.DependPkgversion, &d.DependPort); err != nil {
			return nil, errs.New(errs.DbCorruption, "index.DependsList", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Mirror is one entry of the mirror_list table: a download base URL plus a
// priority the client tries in ascending order.
type Mirror struct {
	URL      string
	Priority int
}

// MirrorList returns the index's configured mirrors, highest-priority
// (lowest Priority value) first.
func (c *Client) MirrorList(ctx context.Context) ([]Mirror, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT url, priority FROM idx.mirrors ORDER BY priority`)
	if err != nil {
		return nil, errs.New(errs.DbCorruption, "index.MirrorList", err)
	}
	defer rows.Close()
	var out []Mirror
	for rows.Next() {
		var m Mirror
		if err := rows.Scan(&m.URL, &m.Priority); err != nil {
			return nil, errs.New(errs.DbCorruption, "index.MirrorList", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MovedLookup returns the moved-table entry whose old_pkgname column equals
// oldName, or ok=false if there is none. The upgrade planner looks entries up
// by package origin.
func (c *Client) MovedLookup(ctx context.Context, oldName string) (MovedEntry, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT old_pkgname, new_pkgname, new_origin, reason, expiration_date FROM idx.moved WHERE old_pkgname = ?`, oldName)
	var m MovedEntry
	if err := row.Scan(&m.OldPkgname, &m.NewPkgname, &m.NewOrigin, &m.Reason, &m.Expiration); err != nil {
		if err == sql.ErrNoRows {
			return MovedEntry{}, false, nil
		}
		return MovedEntry{}, false, errs.New(errs.DbCorruption, "index.MovedLookup", err)
	}
	return m, true, nil
}

// Check compares installed against the index's record for its name and
// reports the tri-state freshness result spec §4.G defines:
//
//   - NoUpdate: installed version >= index version for the same name, or
//     the name is absent from the index and no renamed equivalent exists.
//   - UpdateAvailable: installed name present in the index with a greater
//     version.
//   - OriginMatch: installed name absent from the index, but the index
//     contains a different pkgname sharing installed's origin - i.e. the
//     port was renamed (spec §4.G). This is the case the upgrade planner's
//     rename-reconciliation pass (§4.H pass 2) depends on: without the
//     origin fallback below, every real rename would be silently reported
//     as NoUpdate and never reconciled.
func (c *Client) Check(ctx context.Context, installed store.Package) (Status, error) {
	idx, ok, err := c.LookupByName(ctx, installed.Name)
	if err != nil {
		return NoUpdate, err
	}
	if ok {
		if version.Compare(idx.Version, installed.Version) > 0 {
			return UpdateAvailable, nil
		}
		return NoUpdate, nil
	}

	if installed.Origin == "" {
		return NoUpdate, nil
	}
	byOrigin, ok, err := c.LookupByOrigin(ctx, installed.Origin)
	if err != nil {
		return NoUpdate, err
	}
	if ok && byOrigin.Name != installed.Name {
		return OriginMatch, nil
	}
	return NoUpdate, nil
}
