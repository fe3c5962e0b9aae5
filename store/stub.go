package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// AttachStub attaches the SQLite database at stubPath to this connection as
// the "stub" schema (spec §4.B/§4.D). The bundle reader copies the
// stub database to a temporary file before calling this, so the attach target
// is never the archive itself.
func (s *Store) AttachStub(ctx context.Context, stubPath string) error {
	_, err := s.db.ExecContext(ctx, `ATTACH DATABASE ? AS stub`, stubPath)
	if err != nil {
		return fmt.Errorf("store: attach stub %q: %w", stubPath, err)
	}
	return nil
}

// DetachStub detaches the stub schema. Safe to call even if AttachStub was
// never called successfully; errors are swallowed since this always runs
// from a best-effort cleanup path (bundle.Finish).
func (s *Store) DetachStub(ctx context.Context) {
	s.db.ExecContext(ctx, `DETACH DATABASE stub`)
}

// stubColumnSets lists progressively smaller column sets to try when reading
// a stub package row, oldest bundle format last. Newer columns
// (flatsize, then type) are the ones most likely to be absent in a bundle
// built by an older mport release (spec §4.B).
var stubColumnSets = [][]string{
	{"pkg", "version", "origin", "prefix", "lang", "options", "comment", "desc",
		"os_release", "cpe", "locked", "deprecated", "expiration_date",
		"no_provide_shlib", "flavor", "automatic", "install_date", "type", "flatsize"},
	{"pkg", "version", "origin", "prefix", "lang", "options", "comment", "desc",
		"os_release", "cpe", "locked", "deprecated", "expiration_date",
		"no_provide_shlib", "flavor", "automatic", "install_date", "type"},
	{"pkg", "version", "origin", "prefix", "lang", "options", "comment", "desc",
		"os_release", "cpe", "locked", "deprecated", "expiration_date",
		"no_provide_shlib", "flavor", "automatic", "install_date"},
}

// ReadStubPackage reads one package row from the attached stub database,
// tolerating schema drift by retrying with fewer columns and synthesizing
// zero-value defaults for anything the older schema lacked, as spec §4.B
// requires.
func ReadStubPackage(ctx context.Context, q querier, name string) (Package, error) {
	var lastErr error
	for _, cols := range stubColumnSets {
		p, err := readStubPackageWithColumns(ctx, q, name, cols)
		if err == nil {
			return p, nil
		}
		if !isMissingColumnErr(err) {
			return Package{}, err
		}
		lastErr = err
	}
	return Package{}, fmt.Errorf("store: no compatible stub schema for %q: %w", name, lastErr)
}

func readStubPackageWithColumns(ctx context.Context, q querier, name string, cols []string) (Package, error) {
	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM stub.packages WHERE pkg = ?`
	row := q.QueryRowContext(ctx, query, name)

	dest := make([]any, len(cols))
	p := Package{Type: TypeApplication}
	var locked, noShlib, typ int
	for i, c := range cols {
		switch c {
		case "pkg":
			dest[i] = &p.Name
		case "version":
			dest[i] = &p.Version
		case "origin":
			dest[i] = &p.Origin
		case "prefix":
			dest[i] = &p.Prefix
		case "lang":
			dest[i] = &p.Lang
		case "options":
			dest[i] = &p.Options
		case "comment":
			dest[i] = &p.Comment
		case "desc":
			dest[i] = &p.Desc
		case "os_release":
			dest[i] = &p.OSRelease
		case "cpe":
			dest[i] = &p.CPE
		case "locked":
			dest[i] = &locked
		case "deprecated":
			dest[i] = &p.Deprecated
		case "expiration_date":
			dest[i] = &p.ExpirationDate
		case "no_provide_shlib":
			dest[i] = &noShlib
		case "flavor":
			dest[i] = &p.Flavor
		case "automatic":
			dest[i] = &boolScanner{&p.Automatic}
		case "install_date":
			dest[i] = &p.InstallDate
		case "type":
			dest[i] = &typ
		case "flatsize":
			dest[i] = &p.Flatsize
		}
	}
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return Package{}, fmt.Errorf("store: stub package %q not found", name)
		}
		return Package{}, err
	}
	p.Locked = locked != 0
	p.NoProvideShlib = noShlib != 0
	p.Type = PackageType(typ)
	return p, nil
}

func isMissingColumnErr(err error) bool {
	return strings.Contains(err.Error(), "no such column")
}
