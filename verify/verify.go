// Package verify implements the installed-package audit described in spec
// §4.I: recomputing stored checksums against what is actually on disk and
// reporting mismatches, plus the operator-only override that rewrites the
// stored checksum to match the current file contents.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	iofs "io/fs"
	"strings"

	mportfs "github.com/midnightbsd/go-mport/fs"

	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/store"
)

// Status classifies one asset's verification result.
type Status int

// Recognized Status values.
const (
	StatusOK Status = iota
	StatusMismatch
	StatusMissing
)

// Finding is one File-like asset's verification outcome.
type Finding struct {
	Path     string
	Status   Status
	Expected string
	Actual   string
}

// Package verifies every File-like asset of pkgName against root, a
// read-only virtual filesystem rooted at "/" by default. Reading through
// fs.FS rather than the os package directly lets tests substitute any
// fstest.MapFS-like root without touching the real filesystem. Package
// never modifies the store or the filesystem; RecomputeChecksums is the
// only operation that does.
func Package(ctx context.Context, s *store.Store, root *mportfs.PrefixRoot, pkgName string) ([]Finding, error) {
	root = defaultRoot(root)
	assets, err := store.AssetsForPackage(ctx, s.DB(), pkgName)
	if err != nil {
		return nil, errs.New(errs.Fatal, "verify.Package", err)
	}

	var findings []Finding
	for _, e := range assets {
		if !e.IsFileLike() || e.Checksum == "" {
			continue
		}
		f := Finding{Path: e.Data, Expected: e.Checksum}
		sum, err := sha256Asset(root, e.Data)
		switch {
		case errors.Is(err, iofs.ErrNotExist):
			f.Status = StatusMissing
		case err != nil:
			return nil, errs.New(errs.Fatal, "verify.Package", err)
		case sum != e.Checksum:
			f.Status = StatusMismatch
			f.Actual = sum
		default:
			f.Status = StatusOK
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// All verifies every installed package and returns the combined findings
// that are not StatusOK, one slice per affected package name.
func All(ctx context.Context, s *store.Store, root *mportfs.PrefixRoot) (map[string][]Finding, error) {
	pkgs, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return nil, errs.New(errs.Fatal, "verify.All", err)
	}
	out := make(map[string][]Finding)
	for _, pkg := range pkgs {
		findings, err := Package(ctx, s, root, pkg.Name)
		if err != nil {
			return nil, err
		}
		var bad []Finding
		for _, f := range findings {
			if f.Status != StatusOK {
				bad = append(bad, f)
			}
		}
		if len(bad) > 0 {
			out[pkg.Name] = bad
		}
	}
	return out, nil
}

// RecomputeChecksums rewrites the stored checksum for every File-like asset
// of pkgName to match what is currently on disk. This is an explicit
// operator override: it hides genuine tampering rather than reporting it, so
// callers should only invoke it after a human has reviewed verify.Package's
// findings.
func RecomputeChecksums(ctx context.Context, s *store.Store, root *mportfs.PrefixRoot, pkgName string) error {
	root = defaultRoot(root)
	assets, err := store.AssetsForPackage(ctx, s.DB(), pkgName)
	if err != nil {
		return errs.New(errs.Fatal, "verify.RecomputeChecksums", err)
	}
	for _, e := range assets {
		if !e.IsFileLike() {
			continue
		}
		sum, err := sha256Asset(root, e.Data)
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				continue
			}
			return errs.New(errs.Fatal, "verify.RecomputeChecksums", err)
		}
		if err := store.UpdateAssetChecksum(ctx, s.DB(), pkgName, e.Data, sum); err != nil {
			return errs.New(errs.Fatal, "verify.RecomputeChecksums", err)
		}
	}
	return nil
}

func defaultRoot(root *mportfs.PrefixRoot) *mportfs.PrefixRoot {
	if root != nil {
		return root
	}
	return mportfs.RealPrefixRoot("/")
}

// sha256Asset hashes the asset at the absolute path abs, resolved against
// root's FS as a path relative to root.Path.
func sha256Asset(root *mportfs.PrefixRoot, abs string) (string, error) {
	rel := strings.TrimPrefix(strings.TrimPrefix(abs, root.Path), "/")
	if rel == "" {
		rel = "."
	}
	f, err := root.FS.Open(rel)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
