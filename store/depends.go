package store

import (
	"context"
	"fmt"
)

// Dependency is the "(pkg, depend_pkgname, depend_version_requirement,
// depend_origin)" edge from spec §3: pkg must be installed after
// DependPkgname and cannot be removed while it remains installed.
type Dependency struct {
	Pkg              string
	DependPkgname    string
	DependPkgversion string
	DependPort       string
}

// InsertDependency adds one depends edge.
func InsertDependency(ctx context.Context, q querier, d Dependency) error {
	_, err := q.ExecContext(ctx, `INSERT INTO depends (pkg, depend_pkgname, depend_pkgversion, depend_port) VALUES (?,?,?,?)`,
		d.Pkg, d.DependPkgname, d.DependPkgversion, d.DependPort)
	if err != nil {
		return fmt.Errorf("store: insert dependency %s->%s: %w", d.Pkg, d.DependPkgname, err)
	}
	return nil
}

// DownDepends returns the packages pkg requires: spec §4.B's get_down_depends.
func DownDepends(ctx context.Context, q querier, pkg string) ([]Dependency, error) {
	return queryDepends(ctx, q, `SELECT pkg, depend_pkgname, depend_pkgversion, depend_port FROM depends WHERE pkg = ?`, pkg)
}

// UpDepends returns the packages that require pkg: spec §4.B's get_up_depends
// (reverse traversal, a distinct query from DownDepends).
func UpDepends(ctx context.Context, q querier, pkg string) ([]Dependency, error) {
	return queryDepends(ctx, q, `SELECT pkg, depend_pkgname, depend_pkgversion, depend_port FROM depends WHERE depend_pkgname = ?`, pkg)
}

func queryDepends(ctx context.Context, q querier, query, arg string) ([]Dependency, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("store: query depends: %w", err)
	}
	defer rows.Close()

	var out []Dependency
	for rows.Next() {
		var d Dependency
		if err := rows.Scan(&d.Pkg, &d.DependPkgname, &d.DependPkgversion, &d.DependPort); err != nil {
			return nil, fmt.Errorf("store: scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDependencies removes every depends row naming pkg as the owner.
func DeleteDependencies(ctx context.Context, q querier, pkg string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM depends WHERE pkg = ?`, pkg)
	if err != nil {
		return fmt.Errorf("store: delete dependencies for %q: %w", pkg, err)
	}
	return nil
}

// CopyStubDepends bulk-copies rows for pkg from the attached stub database
// into the live depends table, used by phase 2 of the installer (spec §4.E).
func CopyStubDepends(ctx context.Context, q querier, pkg string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO depends (pkg, depend_pkgname, depend_pkgversion, depend_port)
		SELECT pkg, depend_pkgname, depend_pkgversion, depend_port FROM stub.depends WHERE pkg = ?`, pkg)
	if err != nil {
		return fmt.Errorf("store: copy stub depends for %q: %w", pkg, err)
	}
	return nil
}
