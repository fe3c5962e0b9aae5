// Package bundle implements the archive reader for a mport package bundle:
// open, attach the embedded stub database, and stream archive entries in
// lockstep with the asset list (spec §4.D). A bundle is a zstd- or
// xz-compressed tar with a fixed entry order: "+CONTENTS.db" first, then
// hook/mtree/message files, then the payload in plist order.
package bundle

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/midnightbsd/go-mport/asset"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/store"
)

// Names of the fixed, non-payload entries that precede the asset payload in
// every bundle archive.
const (
	StubDBName    = "+CONTENTS.db"
	MtreeName     = "+MTREE_DIRS"
	MessageName   = "+DISPLAY"
	PreInstallName  = "+PRE_INSTALL"
	PostInstallName = "+POST_INSTALL"
	PreDeinstallName  = "+PRE_DEINSTALL"
	PostDeinstallName = "+POST_DEINSTALL"
)

// ErrBundleOutOfSync is returned when the archive's entry stream and the
// asset list the installer is walking disagree about what comes next (spec
// §4.D).
var ErrBundleOutOfSync = errors.New("bundle: archive entry out of sync with asset list")

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
var xzMagic = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}

// Reader streams a bundle's archive entries and exposes its embedded stub
// database and fixed-name side files.
type Reader struct {
	path     string
	f        *os.File
	dec      io.ReadCloser // zstd/xz decompressor, if any needs closing
	tr       *tar.Reader
	tmpDir   string
	stubPath string

	current *tar.Header
}

// Open opens the bundle archive at path, detects its compression codec by
// magic bytes, and positions a tar reader at the first entry.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.Fatal, "bundle.Open", err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(6)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, errs.New(errs.Fatal, "bundle.Open", err)
	}

	var tr *tar.Reader
	var closer io.ReadCloser
	switch {
	case hasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, errs.New(errs.Fatal, "bundle.Open", fmt.Errorf("zstd: %w", err))
		}
		tr = tar.NewReader(zr)
		closer = ioReadCloserFunc{Reader: zr, closeFn: func() error { zr.Close(); return nil }}
	case hasPrefix(magic, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			f.Close()
			return nil, errs.New(errs.Fatal, "bundle.Open", fmt.Errorf("xz: %w", err))
		}
		tr = tar.NewReader(xr)
	default:
		f.Close()
		return nil, errs.New(errs.Fatal, "bundle.Open", fmt.Errorf("%q: unrecognized archive codec", path))
	}

	return &Reader{path: path, f: f, dec: closer, tr: tr}, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

type ioReadCloserFunc struct {
	io.Reader
	closeFn func() error
}

func (c ioReadCloserFunc) Close() error { return c.closeFn() }

// AttachStubDB copies the archive's embedded "+CONTENTS.db" entry out to a
// temporary file and attaches it to s as the "stub" schema (spec §4.B/§4.D).
// Attaching requires a real file path because SQLite cannot open a database
// from an in-memory tar entry directly.
func (r *Reader) AttachStubDB(ctx context.Context, s *store.Store) error {
	hdr, err := r.tr.Next()
	if err != nil {
		return errs.New(errs.BundleOutOfSync, "bundle.AttachStubDB", err)
	}
	if hdr.Name != StubDBName {
		return errs.New(errs.BundleOutOfSync, "bundle.AttachStubDB",
			fmt.Errorf("expected %q first, got %q", StubDBName, hdr.Name))
	}

	dir, err := os.MkdirTemp("", "mport-bundle-*")
	if err != nil {
		return errs.New(errs.Fatal, "bundle.AttachStubDB", err)
	}
	r.tmpDir = dir

	stubPath := filepath.Join(dir, "stub.db")
	out, err := os.Create(stubPath)
	if err != nil {
		os.RemoveAll(dir)
		return errs.New(errs.Fatal, "bundle.AttachStubDB", err)
	}
	if _, err := io.Copy(out, r.tr); err != nil {
		out.Close()
		os.RemoveAll(dir)
		return errs.New(errs.Fatal, "bundle.AttachStubDB", err)
	}
	out.Close()
	r.stubPath = stubPath

	if err := s.AttachStub(ctx, stubPath); err != nil {
		os.RemoveAll(dir)
		return err
	}
	return nil
}

// PrepForInstall advances past the fixed side files (mtree, hook scripts,
// the display message) that follow the stub database and precede the asset
// payload, returning their raw bytes keyed by entry name so phase 1/3 of the
// installer can stage them without a second archive pass.
func (r *Reader) PrepForInstall() (map[string][]byte, error) {
	fixed := map[string]bool{
		MtreeName: true, MessageName: true,
		PreInstallName: true, PostInstallName: true,
		PreDeinstallName: true, PostDeinstallName: true,
	}
	out := make(map[string][]byte)
	for {
		hdr, err := r.tr.Next()
		if err != nil {
			return nil, errs.New(errs.BundleOutOfSync, "bundle.PrepForInstall", err)
		}
		if !fixed[hdr.Name] {
			// First payload entry: stash it as current and stop.
			r.current = hdr
			return out, nil
		}
		data, err := io.ReadAll(r.tr)
		if err != nil {
			return nil, errs.New(errs.Fatal, "bundle.PrepForInstall", err)
		}
		out[hdr.Name] = data
	}
}

// InfraDir returns the per-package directory under base where phase 1
// persists a bundle's hook scripts and mtree skeleton, so they remain
// available to the deletion engine after the bundle archive itself is gone
// (spec §6: "/var/db/mport/infrastructure/<name>-<version>/").
func InfraDir(base, name, version string) string {
	return filepath.Join(base, name+"-"+version)
}

// WriteInfraFiles persists the fixed metadata entries PrepForInstall
// returned (mtree, hook scripts, display message) to their permanent
// location under InfraDir(base, name, version), matching spec §4.E phase
// 1's "copy hook scripts ... to their permanent location under the
// install-infra directory".
func WriteInfraFiles(base, name, version string, fixed map[string][]byte) error {
	dir := InfraDir(base, name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.Fatal, "bundle.WriteInfraFiles", err)
	}
	for entryName, data := range fixed {
		if err := os.WriteFile(filepath.Join(dir, entryName), data, 0o755); err != nil {
			return errs.New(errs.Fatal, "bundle.WriteInfraFiles", err)
		}
	}
	return nil
}

// ReadInfraFile reads back one fixed metadata entry previously persisted by
// WriteInfraFiles, e.g. so the deletion engine can locate a package's
// pre/post-deinstall hook script. ok is false when the entry was never
// recorded, meaning the original bundle shipped no such hook.
func ReadInfraFile(base, name, version, entryName string) (data []byte, ok bool, err error) {
	data, err = os.ReadFile(filepath.Join(InfraDir(base, name, version), entryName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.New(errs.Fatal, "bundle.ReadInfraFile", err)
	}
	return data, true, nil
}

// NextEntry advances to the next payload archive entry and returns its
// header. Callers compare hdr.Name against the asset list entry they expect
// next; a mismatch is the caller's cue to return ErrBundleOutOfSync.
func (r *Reader) NextEntry() (*tar.Header, error) {
	if r.current != nil {
		hdr := r.current
		r.current = nil
		return hdr, nil
	}
	hdr, err := r.tr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errs.New(errs.BundleOutOfSync, "bundle.NextEntry", err)
	}
	return hdr, nil
}

// ExpectEntry is a convenience wrapper combining NextEntry with the
// desync check the installer performs for every asset.Entry it materializes.
func (r *Reader) ExpectEntry(want string) (*tar.Header, error) {
	hdr, err := r.NextEntry()
	if err != nil {
		return nil, err
	}
	if hdr.Name != want && "./"+hdr.Name != want && hdr.Name != "./"+want {
		return nil, fmt.Errorf("%w: expected %q, archive has %q", ErrBundleOutOfSync, want, hdr.Name)
	}
	return hdr, nil
}

// ExtractCurrent copies the archive's current entry body to targetPath,
// creating parent directories and preserving the header's file mode.
func (r *Reader) ExtractCurrent(hdr *tar.Header, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return errs.New(errs.Fatal, "bundle.ExtractCurrent", err)
	}
	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o7777))
	if err != nil {
		return errs.New(errs.Fatal, "bundle.ExtractCurrent", err)
	}
	defer out.Close()
	if _, err := io.CopyN(out, r.tr, hdr.Size); err != nil && err != io.EOF {
		return errs.New(errs.Fatal, "bundle.ExtractCurrent", err)
	}
	return nil
}

// Assets returns the parsed plist for pkg stored in the attached stub
// database's assets table, queried directly on the stub-attached
// connection.
func (r *Reader) Assets(ctx context.Context, s *store.Store, pkg string) ([]asset.Entry, error) {
	rows, err := s.DB().QueryContext(ctx, `SELECT type, data, checksum, owner, grp, mode FROM stub.assets WHERE pkg = ? ORDER BY seq`, pkg)
	if err != nil {
		return nil, errs.New(errs.DbCorruption, "bundle.Assets", err)
	}
	defer rows.Close()

	var out []asset.Entry
	for rows.Next() {
		var e asset.Entry
		var kind int
		if err := rows.Scan(&kind, &e.Data, &e.Checksum, &e.Owner, &e.Group, &e.Mode); err != nil {
			return nil, errs.New(errs.DbCorruption, "bundle.Assets", err)
		}
		e.Kind = asset.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Finish releases the bundle's resources: the temporary stub database copy
// and the underlying file/decompressor. Safe to call once processing is
// complete or after an error, on every exit path.
func (r *Reader) Finish(ctx context.Context, s *store.Store) {
	if s != nil {
		s.DetachStub(ctx)
	}
	if r.tmpDir != "" {
		os.RemoveAll(r.tmpDir)
	}
	if r.dec != nil {
		r.dec.Close()
	}
	if r.f != nil {
		r.f.Close()
	}
}
