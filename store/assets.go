package store

import (
	"context"
	"fmt"

	"github.com/midnightbsd/go-mport/asset"
)

// InsertAsset records one asset-list entry for pkg at position seq. Order is
// semantically significant (spec §3), so seq is always the entry's position
// in the original plist, not an autoincrement side effect.
func InsertAsset(ctx context.Context, q querier, pkg string, seq int, e asset.Entry) error {
	_, err := q.ExecContext(ctx, `INSERT INTO assets (pkg, seq, type, data, checksum, owner, grp, mode) VALUES (?,?,?,?,?,?,?,?)`,
		pkg, seq, int(e.Kind), e.Data, e.Checksum, e.Owner, e.Group, e.Mode)
	if err != nil {
		return fmt.Errorf("store: insert asset %v for %q: %w", e.Kind, pkg, err)
	}
	return nil
}

// AssetsForPackage returns pkg's full asset list in insertion order, the
// order the installer wrote it in during phase 2.
func AssetsForPackage(ctx context.Context, q querier, pkg string) ([]asset.Entry, error) {
	rows, err := q.QueryContext(ctx, `SELECT type, data, checksum, owner, grp, mode FROM assets WHERE pkg = ? ORDER BY seq`, pkg)
	if err != nil {
		return nil, fmt.Errorf("store: query assets for %q: %w", pkg, err)
	}
	defer rows.Close()

	var out []asset.Entry
	for rows.Next() {
		var e asset.Entry
		var kind int
		if err := rows.Scan(&kind, &e.Data, &e.Checksum, &e.Owner, &e.Group, &e.Mode); err != nil {
			return nil, fmt.Errorf("store: scan asset: %w", err)
		}
		e.Kind = asset.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AssetsForPackageReverse returns pkg's asset list in reverse insertion
// order, the order the deletion engine walks it in (spec §4.F).
func AssetsForPackageReverse(ctx context.Context, q querier, pkg string) ([]asset.Entry, error) {
	rows, err := q.QueryContext(ctx, `SELECT type, data, checksum, owner, grp, mode FROM assets WHERE pkg = ? ORDER BY seq DESC`, pkg)
	if err != nil {
		return nil, fmt.Errorf("store: query assets reverse for %q: %w", pkg, err)
	}
	defer rows.Close()

	var out []asset.Entry
	for rows.Next() {
		var e asset.Entry
		var kind int
		if err := rows.Scan(&kind, &e.Data, &e.Checksum, &e.Owner, &e.Group, &e.Mode); err != nil {
			return nil, fmt.Errorf("store: scan asset: %w", err)
		}
		e.Kind = asset.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteAssets removes every assets row owned by pkg.
func DeleteAssets(ctx context.Context, q querier, pkg string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM assets WHERE pkg = ?`, pkg)
	if err != nil {
		return fmt.Errorf("store: delete assets for %q: %w", pkg, err)
	}
	return nil
}

// UpdateAssetChecksum rewrites the stored checksum for one File asset,
// the operator-override path used by verify.RecomputeChecksums (spec §4.I).
func UpdateAssetChecksum(ctx context.Context, q querier, pkg, path, checksum string) error {
	_, err := q.ExecContext(ctx, `UPDATE assets SET checksum = ? WHERE pkg = ? AND data = ?`, checksum, pkg, path)
	if err != nil {
		return fmt.Errorf("store: update checksum for %s in %q: %w", path, pkg, err)
	}
	return nil
}
