package verify_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/midnightbsd/go-mport/asset"
	"github.com/midnightbsd/go-mport/store"
	"github.com/midnightbsd/go-mport/verify"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestPackageReportsMismatchAndMissing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()

	okPath := filepath.Join(dir, "ok")
	os.WriteFile(okPath, []byte("original"), 0o644)
	tamperedPath := filepath.Join(dir, "tampered")
	os.WriteFile(tamperedPath, []byte("tampered-now"), 0o644)
	missingPath := filepath.Join(dir, "gone")

	store.InsertPackage(ctx, s.DB(), store.Package{Name: "foo", Version: "1.0"})
	store.InsertAsset(ctx, s.DB(), "foo", 0, asset.Entry{Kind: asset.KindFile, Data: okPath, Checksum: sha256Hex([]byte("original"))})
	store.InsertAsset(ctx, s.DB(), "foo", 1, asset.Entry{Kind: asset.KindFile, Data: tamperedPath, Checksum: sha256Hex([]byte("original-different"))})
	store.InsertAsset(ctx, s.DB(), "foo", 2, asset.Entry{Kind: asset.KindFile, Data: missingPath, Checksum: sha256Hex([]byte("whatever"))})

	findings, err := verify.Package(ctx, s, nil, "foo")
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}
	byPath := make(map[string]verify.Finding, len(findings))
	for _, f := range findings {
		byPath[f.Path] = f
	}
	if byPath[okPath].Status != verify.StatusOK {
		t.Errorf("status(ok) = %v, want StatusOK", byPath[okPath].Status)
	}
	if byPath[tamperedPath].Status != verify.StatusMismatch {
		t.Errorf("status(tampered) = %v, want StatusMismatch", byPath[tamperedPath].Status)
	}
	if byPath[missingPath].Status != verify.StatusMissing {
		t.Errorf("status(missing) = %v, want StatusMissing", byPath[missingPath].Status)
	}
}

func TestAllOnlyReportsAffectedPackages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()

	cleanPath := filepath.Join(dir, "clean")
	os.WriteFile(cleanPath, []byte("data"), 0o644)
	dirtyPath := filepath.Join(dir, "dirty")
	os.WriteFile(dirtyPath, []byte("data"), 0o644)

	store.InsertPackage(ctx, s.DB(), store.Package{Name: "clean-pkg", Version: "1.0"})
	store.InsertAsset(ctx, s.DB(), "clean-pkg", 0, asset.Entry{Kind: asset.KindFile, Data: cleanPath, Checksum: sha256Hex([]byte("data"))})

	store.InsertPackage(ctx, s.DB(), store.Package{Name: "dirty-pkg", Version: "1.0"})
	store.InsertAsset(ctx, s.DB(), "dirty-pkg", 0, asset.Entry{Kind: asset.KindFile, Data: dirtyPath, Checksum: sha256Hex([]byte("different"))})

	findings, err := verify.All(ctx, s, nil)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if _, ok := findings["clean-pkg"]; ok {
		t.Errorf("All() included clean-pkg, want only affected packages")
	}
	if got := findings["dirty-pkg"]; len(got) != 1 || got[0].Status != verify.StatusMismatch {
		t.Errorf("All()[dirty-pkg] = %+v, want one StatusMismatch finding", got)
	}
}

func TestRecomputeChecksumsRewritesStoredSum(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "changed")
	os.WriteFile(path, []byte("new-contents"), 0o644)

	store.InsertPackage(ctx, s.DB(), store.Package{Name: "foo", Version: "1.0"})
	store.InsertAsset(ctx, s.DB(), "foo", 0, asset.Entry{Kind: asset.KindFile, Data: path, Checksum: sha256Hex([]byte("old-contents"))})

	if err := verify.RecomputeChecksums(ctx, s, nil, "foo"); err != nil {
		t.Fatalf("RecomputeChecksums() error = %v", err)
	}

	findings, err := verify.Package(ctx, s, nil, "foo")
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}
	if len(findings) != 1 || findings[0].Status != verify.StatusOK {
		t.Fatalf("Package() after recompute = %+v, want one StatusOK finding", findings)
	}
}
