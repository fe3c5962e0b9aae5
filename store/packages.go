package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PackageType distinguishes an ordinary application package from a
// system-provided one (spec §3).
type PackageType int

// Recognized package types.
const (
	TypeApplication PackageType = iota
	TypeSystem
)

// Action is a transient planner tag the upgrade planner attaches to a
// Package while deciding what to do with it. It is never persisted (spec §3).
type Action int

// Planner actions.
const (
	ActionNone Action = iota
	ActionInstall
	ActionUpgrade
	ActionDelete
	ActionReinstall
)

// Package is the in-memory representation of one row of the packages table,
// spec §3's "Package record".
type Package struct {
	Name             string
	Version          string
	Origin           string
	Prefix           string
	Lang             string
	Options          string
	Comment          string
	Desc             string
	OSRelease        string
	CPE              string
	PURL             string
	Locked           bool
	Deprecated       string
	ExpirationDate   int64
	NoProvideShlib   bool
	Flavor           string
	Automatic        bool
	InstallDate      int64
	Type             PackageType
	Flatsize         int64
	Status           string

	// Action is set only by the upgrade planner; it is never read from or
	// written to the database.
	Action Action
}

const packageColumns = `pkg, version, origin, prefix, lang, options, comment, desc, os_release,
	cpe, purl, locked, deprecated, expiration_date, no_provide_shlib, flavor,
	automatic, install_date, type, flatsize, status`

func scanPackage(row interface{ Scan(...any) error }) (Package, error) {
	var p Package
	var locked, noShlib, typ int
	err := row.Scan(
		&p.Name, &p.Version, &p.Origin, &p.Prefix, &p.Lang, &p.Options,
		&p.Comment, &p.Desc, &p.OSRelease, &p.CPE, &p.PURL, &locked,
		&p.Deprecated, &p.ExpirationDate, &noShlib, &p.Flavor,
		&boolScanner{&p.Automatic}, &p.InstallDate, &typ, &p.Flatsize, &p.Status,
	)
	if err != nil {
		return Package{}, err
	}
	p.Locked = locked != 0
	p.NoProvideShlib = noShlib != 0
	p.Type = PackageType(typ)
	return p, nil
}

// boolScanner adapts an INTEGER column into a *bool destination for Scan.
type boolScanner struct{ dst *bool }

func (b *boolScanner) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*b.dst = v != 0
	case nil:
		*b.dst = false
	default:
		return fmt.Errorf("store: cannot scan %T into bool", src)
	}
	return nil
}

// InsertPackage inserts a new package row with status='dirty', the state
// phase 2 begins materialization in (spec §4.E).
func InsertPackage(ctx context.Context, q querier, p Package) error {
	locked, noShlib := 0, 0
	if p.Locked {
		locked = 1
	}
	if p.NoProvideShlib {
		noShlib = 1
	}
	automatic := 0
	if p.Automatic {
		automatic = 1
	}
	status := p.Status
	if status == "" {
		status = "dirty"
	}
	_, err := q.ExecContext(ctx, `INSERT INTO packages (`+packageColumns+`) VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Name, p.Version, p.Origin, p.Prefix, p.Lang, p.Options, p.Comment,
		p.Desc, p.OSRelease, p.CPE, p.PURL, locked, p.Deprecated,
		p.ExpirationDate, noShlib, p.Flavor, automatic, p.InstallDate,
		int(p.Type), p.Flatsize, status)
	if err != nil {
		return fmt.Errorf("store: insert package %q: %w", p.Name, err)
	}
	return nil
}

// SetStatus updates the transient install-progress marker ('dirty'/'clean').
func SetStatus(ctx context.Context, q querier, name, status string) error {
	_, err := q.ExecContext(ctx, `UPDATE packages SET status = ? WHERE pkg = ?`, status, name)
	if err != nil {
		return fmt.Errorf("store: set status %q: %w", name, err)
	}
	return nil
}

// UpdatePackageFields applies the in-place mutations permitted by spec §3's
// lifecycle note: locked, automatic, install_date, prefix. Other fields are
// changed only via delete-then-insert.
func UpdatePackageFields(ctx context.Context, q querier, name string, locked, automatic bool, installDate int64, prefix string) error {
	l, a := 0, 0
	if locked {
		l = 1
	}
	if automatic {
		a = 1
	}
	_, err := q.ExecContext(ctx, `UPDATE packages SET locked=?, automatic=?, install_date=?, prefix=? WHERE pkg=?`,
		l, a, installDate, prefix, name)
	if err != nil {
		return fmt.Errorf("store: update package fields %q: %w", name, err)
	}
	return nil
}

// SetFlatsize rewrites the recorded flatsize for name: the sum of every
// materialized file's size, computed once phase 2's asset walk completes
// (spec §9: "sum of recorded file sizes at install time", advisory only).
func SetFlatsize(ctx context.Context, q querier, name string, flatsize int64) error {
	_, err := q.ExecContext(ctx, `UPDATE packages SET flatsize = ? WHERE pkg = ?`, flatsize, name)
	if err != nil {
		return fmt.Errorf("store: set flatsize %q: %w", name, err)
	}
	return nil
}

// DeletePackageRow removes just the packages row for name. Callers (the
// deletion engine) are responsible for removing dependent rows from
// depends/assets/categories/conflicts in the same transaction (spec §4.F).
func DeletePackageRow(ctx context.Context, q querier, name string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM packages WHERE pkg = ?`, name)
	if err != nil {
		return fmt.Errorf("store: delete package %q: %w", name, err)
	}
	return nil
}

// GetPackage returns the package row named name, or (Package{}, false) if
// absent.
func GetPackage(ctx context.Context, q querier, name string) (Package, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE pkg = ?`, name)
	p, err := scanPackage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Package{}, false, nil
		}
		return Package{}, false, fmt.Errorf("store: get package %q: %w", name, err)
	}
	return p, true, nil
}

// ListAll returns every installed package, ordered by name (stable across
// queries against the same snapshot, per spec §3's ownership note).
func ListAll(ctx context.Context, q querier) ([]Package, error) {
	return queryPackages(ctx, q, `SELECT `+packageColumns+` FROM packages ORDER BY pkg`)
}

// ListLocked returns every package with locked=1.
func ListLocked(ctx context.Context, q querier) ([]Package, error) {
	return queryPackages(ctx, q, `SELECT `+packageColumns+` FROM packages WHERE locked=1 ORDER BY pkg`)
}

// Predicate is a parameterized SQL fragment plus its bind arguments, used by
// Search so callers never string-concatenate user input into a query (spec
// §4.B).
type Predicate struct {
	Where string
	Args  []any
}

// NamePredicate returns a Predicate matching packages whose name contains
// substr.
func NamePredicate(substr string) Predicate {
	return Predicate{Where: `pkg LIKE '%' || ? || '%'`, Args: []any{substr}}
}

// OriginPredicate returns a Predicate matching packages with the given origin.
func OriginPredicate(origin string) Predicate {
	return Predicate{Where: `origin = ?`, Args: []any{origin}}
}

// Search runs a predicate-filtered query against the packages table.
func Search(ctx context.Context, q querier, p Predicate) ([]Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE ` + p.Where + ` ORDER BY pkg`
	return queryPackages(ctx, q, query, p.Args...)
}

func queryPackages(ctx context.Context, q querier, query string, args ...any) ([]Package, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query packages: %w", err)
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan package: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
