package store

import (
	"context"
	"fmt"
)

// Conflict is the "(pkg, conflict_pkg, conflict_version)" row from spec §3,
// consulted by the installer's precheck (spec §4.E) before phase 1 begins.
type Conflict struct {
	Pkg             string
	ConflictPkg     string
	ConflictVersion string
}

// InsertConflict adds one conflicts row.
func InsertConflict(ctx context.Context, q querier, c Conflict) error {
	_, err := q.ExecContext(ctx, `INSERT INTO conflicts (pkg, conflict_pkg, conflict_version) VALUES (?,?,?)`,
		c.Pkg, c.ConflictPkg, c.ConflictVersion)
	if err != nil {
		return fmt.Errorf("store: insert conflict %s/%s: %w", c.Pkg, c.ConflictPkg, err)
	}
	return nil
}

// Conflicts returns the conflicts declared by pkg.
func Conflicts(ctx context.Context, q querier, pkg string) ([]Conflict, error) {
	rows, err := q.QueryContext(ctx, `SELECT pkg, conflict_pkg, conflict_version FROM conflicts WHERE pkg = ?`, pkg)
	if err != nil {
		return nil, fmt.Errorf("store: query conflicts: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var c Conflict
		if err := rows.Scan(&c.Pkg, &c.ConflictPkg, &c.ConflictVersion); err != nil {
			return nil, fmt.Errorf("store: scan conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConflicts removes every conflicts row owned by pkg.
func DeleteConflicts(ctx context.Context, q querier, pkg string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM conflicts WHERE pkg = ?`, pkg)
	if err != nil {
		return fmt.Errorf("store: delete conflicts for %q: %w", pkg, err)
	}
	return nil
}

// CopyStubConflicts bulk-copies pkg's conflicts rows from the attached stub
// database into the live table (installer phase 2).
func CopyStubConflicts(ctx context.Context, q querier, pkg string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO conflicts (pkg, conflict_pkg, conflict_version)
		SELECT pkg, conflict_pkg, conflict_version FROM stub.conflicts WHERE pkg = ?`, pkg)
	if err != nil {
		return fmt.Errorf("store: copy stub conflicts for %q: %w", pkg, err)
	}
	return nil
}

// InsertCategory adds pkg's seq-th category.
func InsertCategory(ctx context.Context, q querier, pkg string, seq int, category string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO categories (pkg, seq, category) VALUES (?,?,?)`, pkg, seq, category)
	if err != nil {
		return fmt.Errorf("store: insert category %q for %q: %w", category, pkg, err)
	}
	return nil
}

// Categories returns pkg's categories in insertion order (spec §3's ordered
// set).
func Categories(ctx context.Context, q querier, pkg string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT category FROM categories WHERE pkg = ? ORDER BY seq`, pkg)
	if err != nil {
		return nil, fmt.Errorf("store: query categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategories removes every categories row owned by pkg.
func DeleteCategories(ctx context.Context, q querier, pkg string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM categories WHERE pkg = ?`, pkg)
	if err != nil {
		return fmt.Errorf("store: delete categories for %q: %w", pkg, err)
	}
	return nil
}

// CopyStubCategories bulk-copies pkg's categories rows from the stub database.
func CopyStubCategories(ctx context.Context, q querier, pkg string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO categories (pkg, seq, category)
		SELECT pkg, seq, category FROM stub.categories WHERE pkg = ?`, pkg)
	if err != nil {
		return fmt.Errorf("store: copy stub categories for %q: %w", pkg, err)
	}
	return nil
}
