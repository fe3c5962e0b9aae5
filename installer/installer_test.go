package installer_test

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/midnightbsd/go-mport/asset"
	"github.com/midnightbsd/go-mport/bundle"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/installer"
	"github.com/midnightbsd/go-mport/store"
)

// buildBundle writes a stub database describing one package with one
// directory entry and one file entry, then a matching zstd-compressed tar
// archive, and returns the archive path plus the file entry's expected
// checksum.
func buildBundle(t *testing.T, dir, prefix, pkgName string) (bundlePath string) {
	t.Helper()
	ctx := context.Background()

	stubPath := filepath.Join(dir, "stub.db")
	stub, err := store.Open(ctx, stubPath)
	if err != nil {
		t.Fatalf("store.Open(stub) error = %v", err)
	}

	fileContents := []byte("#!/bin/sh\necho hi\n")
	sum := sha256.Sum256(fileContents)
	checksum := hex.EncodeToString(sum[:])

	if err := store.InsertPackage(ctx, stub.DB(), store.Package{Name: pkgName, Version: "1.0"}); err != nil {
		t.Fatalf("InsertPackage(stub) error = %v", err)
	}
	dirEntry := asset.Entry{Kind: asset.KindDirectory, Data: filepath.Join(prefix, "bin")}
	fileEntry := asset.Entry{Kind: asset.KindFile, Data: filepath.Join(prefix, "bin/hello"), Checksum: checksum}
	if err := store.InsertAsset(ctx, stub.DB(), pkgName, 0, dirEntry); err != nil {
		t.Fatalf("InsertAsset(dir) error = %v", err)
	}
	if err := store.InsertAsset(ctx, stub.DB(), pkgName, 1, fileEntry); err != nil {
		t.Fatalf("InsertAsset(file) error = %v", err)
	}
	stub.Close()

	bundlePath = filepath.Join(dir, "pkg.tzst")
	f, err := os.Create(bundlePath)
	if err != nil {
		t.Fatalf("Create(bundle) error = %v", err)
	}
	defer f.Close()
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd.NewWriter() error = %v", err)
	}
	tw := tar.NewWriter(zw)

	stubBytes, err := os.ReadFile(stubPath)
	if err != nil {
		t.Fatalf("ReadFile(stub) error = %v", err)
	}
	writeTarEntry(t, tw, bundle.StubDBName, stubBytes)
	writeTarEntry(t, tw, "bin/hello", fileContents)

	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close() error = %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd Close() error = %v", err)
	}
	return bundlePath
}

func writeTarEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader(%q) error = %v", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("Write(%q) error = %v", name, err)
	}
}

func TestInstallMaterializesPackageAndAssets(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "root")
	if err := os.MkdirAll(prefix, 0o755); err != nil {
		t.Fatalf("MkdirAll(prefix) error = %v", err)
	}

	bundlePath := buildBundle(t, dir, prefix, "foo")

	live, err := store.Open(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("store.Open(live) error = %v", err)
	}
	defer live.Close()

	r, err := bundle.Open(bundlePath)
	if err != nil {
		t.Fatalf("bundle.Open() error = %v", err)
	}
	defer r.Finish(ctx, live)

	if err := r.AttachStubDB(ctx, live); err != nil {
		t.Fatalf("AttachStubDB() error = %v", err)
	}

	infraDir := filepath.Join(dir, "infra")
	if err := installer.Install(ctx, live, r, "foo", installer.Options{Prefix: prefix, InfraDir: infraDir}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	got, ok, err := store.GetPackage(ctx, live.DB(), "foo")
	if err != nil || !ok {
		t.Fatalf("GetPackage() = %+v, %v, %v", got, ok, err)
	}
	if got.Status != "clean" {
		t.Errorf("Status = %q, want clean", got.Status)
	}
	wantFlatsize := int64(len("#!/bin/sh\necho hi\n"))
	if got.Flatsize != wantFlatsize {
		t.Errorf("Flatsize = %d, want %d", got.Flatsize, wantFlatsize)
	}

	contents, err := os.ReadFile(filepath.Join(prefix, "bin/hello"))
	if err != nil {
		t.Fatalf("ReadFile(extracted) error = %v", err)
	}
	if string(contents) != "#!/bin/sh\necho hi\n" {
		t.Errorf("extracted contents = %q", contents)
	}

	events, err := store.EventsForPackage(ctx, live.DB(), "foo")
	if err != nil || len(events) != 1 || events[0].Msg != "Installed" {
		t.Fatalf("EventsForPackage() = %+v, %v", events, err)
	}
}

func TestInstallRejectsLockedExistingPackage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "root")
	os.MkdirAll(prefix, 0o755)

	bundlePath := buildBundle(t, dir, prefix, "foo")

	live, err := store.Open(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("store.Open(live) error = %v", err)
	}
	defer live.Close()
	if err := store.InsertPackage(ctx, live.DB(), store.Package{Name: "foo", Version: "0.9", Locked: true}); err != nil {
		t.Fatalf("InsertPackage() error = %v", err)
	}

	r, err := bundle.Open(bundlePath)
	if err != nil {
		t.Fatalf("bundle.Open() error = %v", err)
	}
	defer r.Finish(ctx, live)
	if err := r.AttachStubDB(ctx, live); err != nil {
		t.Fatalf("AttachStubDB() error = %v", err)
	}

	err = installer.Install(ctx, live, r, "foo", installer.Options{Prefix: prefix})
	if errs.KindOf(err) != errs.PrecheckLocked {
		t.Fatalf("Install() error kind = %v, want PrecheckLocked (err=%v)", errs.KindOf(err), err)
	}
}

func TestInstallRejectsNotUpgradeableWithoutForce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "root")
	os.MkdirAll(prefix, 0o755)

	bundlePath := buildBundle(t, dir, prefix, "foo") // stub declares version 1.0

	live, err := store.Open(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("store.Open(live) error = %v", err)
	}
	defer live.Close()
	if err := store.InsertPackage(ctx, live.DB(), store.Package{Name: "foo", Version: "1.0"}); err != nil {
		t.Fatalf("InsertPackage() error = %v", err)
	}

	r, err := bundle.Open(bundlePath)
	if err != nil {
		t.Fatalf("bundle.Open() error = %v", err)
	}
	defer r.Finish(ctx, live)
	if err := r.AttachStubDB(ctx, live); err != nil {
		t.Fatalf("AttachStubDB() error = %v", err)
	}

	err = installer.Install(ctx, live, r, "foo", installer.Options{Prefix: prefix})
	if errs.KindOf(err) != errs.PrecheckNotUpgradeable {
		t.Fatalf("Install() error kind = %v, want PrecheckNotUpgradeable (err=%v)", errs.KindOf(err), err)
	}

	// Force bypasses the check and the install proceeds, against a fresh
	// reader since the first attempt already consumed r's stub attach.
	r2, err := bundle.Open(bundlePath)
	if err != nil {
		t.Fatalf("bundle.Open() error = %v", err)
	}
	defer r2.Finish(ctx, live)
	if err := r2.AttachStubDB(ctx, live); err != nil {
		t.Fatalf("AttachStubDB() error = %v", err)
	}
	infraDir := filepath.Join(dir, "infra")
	if err := installer.Install(ctx, live, r2, "foo", installer.Options{Prefix: prefix, Force: true, InfraDir: infraDir}); err != nil {
		t.Fatalf("Install() with Force error = %v", err)
	}
}
