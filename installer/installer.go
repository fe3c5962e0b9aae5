// Package installer implements the three-phase package installation
// contract from spec §4.E: a pre-install phase that runs outside any
// transaction, a transactional materialize phase that inserts the package's
// metadata and extracts its assets, and a post-install phase that also runs
// outside the transaction. Only a phase-2 failure rolls back; phase 1 and
// phase 3 failures are reported but leave whatever they already did in
// place, matching the asymmetry spec §4.E specifies.
package installer

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/midnightbsd/go-mport/asset"
	"github.com/midnightbsd/go-mport/bundle"
	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/config"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/stats"
	"github.com/midnightbsd/go-mport/store"
	"github.com/midnightbsd/go-mport/version"
)

// Collaborators bundles the external dependencies the installer needs
// injected rather than reaching for globally, per spec §4.J.
type Collaborators struct {
	Msg      collab.MsgSink
	Progress collab.ProgressSink
	Cmd      collab.SystemCommand
	Clock    collab.Clock
	Stats    stats.Collector
}

// defaults fills any nil collaborator with a safe no-op implementation.
func (c Collaborators) defaults() Collaborators {
	if c.Msg == nil {
		c.Msg = collab.DefaultMsgSink{W: os.Stderr}
	}
	if c.Progress == nil {
		c.Progress = collab.NoopProgressSink{}
	}
	if c.Cmd == nil {
		c.Cmd = collab.ExecSystemCommand{}
	}
	if c.Clock == nil {
		c.Clock = collab.OSClock{}
	}
	if c.Stats == nil {
		c.Stats = stats.NoopCollector{}
	}
	return c
}

// Options configures one Install call.
type Options struct {
	Prefix    string
	Automatic bool
	// Force skips the MPORT_PRECHECK_UPGRADEABLE check (spec §4.E): absent
	// Force, installing over an existing package of the same name requires a
	// strictly greater version.
	Force bool
	// InfraDir is the base directory hook scripts and the mtree skeleton
	// are persisted under, one subdirectory per "<name>-<version>" (spec
	// §6). Defaults to config.DefaultInfraDir.
	InfraDir string
	Collab   Collaborators
}

// Install runs all three phases for pkg, reading its stub metadata and
// asset list from r (already attached to s) and extracting payload entries
// under opts.Prefix.
func Install(ctx context.Context, s *store.Store, r *bundle.Reader, pkgName string, opts Options) error {
	cb := opts.Collab.defaults()

	stubPkg, err := store.ReadStubPackage(ctx, s.DB(), pkgName)
	if err != nil {
		return errs.New(errs.Fatal, "installer.Install", err)
	}
	stubPkg.Prefix = opts.Prefix
	stubPkg.Automatic = opts.Automatic

	assets, err := r.Assets(ctx, s, pkgName)
	if err != nil {
		return errs.New(errs.Fatal, "installer.Install", err)
	}

	if err := precheck(ctx, s.DB(), stubPkg, opts.Force); err != nil {
		return err
	}

	fixed, err := r.PrepForInstall()
	if err != nil {
		return errs.New(errs.BundleOutOfSync, "installer.Install", err)
	}

	infraDir := opts.InfraDir
	if infraDir == "" {
		infraDir = config.DefaultInfraDir
	}
	if err := bundle.WriteInfraFiles(infraDir, stubPkg.Name, stubPkg.Version, fixed); err != nil {
		return errs.New(errs.Fatal, "installer.Install", err)
	}

	start := cb.Clock.Now()
	err = phase1PreInstall(ctx, fixed, stubPkg, opts.Prefix, cb)
	cb.Stats.AfterPhase(stubPkg.Name, "pre-install", cb.Clock.Now().Sub(start), err)
	if err != nil {
		return errs.New(errs.Fatal, "installer.Install.phase1", err)
	}

	start = cb.Clock.Now()
	err = phase2Materialize(ctx, s, r, stubPkg, assets, opts.Prefix, cb)
	cb.Stats.AfterPhase(stubPkg.Name, "materialize", cb.Clock.Now().Sub(start), err)
	if err != nil {
		var tagged *errs.Error
		if errors.As(err, &tagged) {
			return err
		}
		return errs.New(errs.Fatal, "installer.Install.phase2", err)
	}

	start = cb.Clock.Now()
	err = phase3PostInstall(ctx, s, fixed, stubPkg, opts.Prefix, cb)
	cb.Stats.AfterPhase(stubPkg.Name, "post-install", cb.Clock.Now().Sub(start), err)
	if err != nil {
		return errs.New(errs.Fatal, "installer.Install.phase3", err)
	}

	return nil
}

// precheck runs the preconditions spec §4.E requires before phase 1 begins:
// no conflicting package is already installed, every dependency is present
// and satisfies its version requirement, the target name isn't locked
// against replacement, and - absent force - an existing installation of the
// same name is strictly older than the incoming version
// (MPORT_PRECHECK_UPGRADEABLE).
func precheck(ctx context.Context, q *sql.DB, pkg store.Package, force bool) error {
	existing, ok, err := store.GetPackage(ctx, q, pkg.Name)
	if err != nil {
		return errs.New(errs.Fatal, "installer.precheck", err)
	}
	if ok && existing.Locked {
		return errs.New(errs.PrecheckLocked, "installer.precheck",
			fmt.Errorf("%q is locked", pkg.Name))
	}
	if ok && !force && version.Compare(pkg.Version, existing.Version) <= 0 {
		return errs.New(errs.PrecheckNotUpgradeable, "installer.precheck",
			fmt.Errorf("%q: %s is not newer than installed %s", pkg.Name, pkg.Version, existing.Version))
	}

	// Conflicts and dependencies are declared by the bundle being installed,
	// so they come from the attached stub schema, not the live depends/
	// conflicts tables the installer hasn't populated for this package yet.
	conflicts, err := stubConflicts(ctx, q, pkg.Name)
	if err != nil {
		return errs.New(errs.Fatal, "installer.precheck", err)
	}
	for _, c := range conflicts {
		if other, ok, err := store.GetPackage(ctx, q, c.ConflictPkg); err != nil {
			return errs.New(errs.Fatal, "installer.precheck", err)
		} else if ok {
			if c.ConflictVersion == "" || version.Satisfies(other.Version, c.ConflictVersion) == version.Satisfied {
				return errs.New(errs.PrecheckConflict, "installer.precheck",
					fmt.Errorf("%q conflicts with installed %q %s", pkg.Name, c.ConflictPkg, other.Version))
			}
		}
	}

	depends, err := stubDownDepends(ctx, q, pkg.Name)
	if err != nil {
		return errs.New(errs.Fatal, "installer.precheck", err)
	}
	for _, d := range depends {
		dep, ok, err := store.GetPackage(ctx, q, d.DependPkgname)
		if err != nil {
			return errs.New(errs.Fatal, "installer.precheck", err)
		}
		if !ok {
			return errs.New(errs.PrecheckDependMissing, "installer.precheck",
				fmt.Errorf("%q requires %q, not installed", pkg.Name, d.DependPkgname))
		}
		if d.DependPkgversion != "" {
			switch version.Satisfies(dep.Version, d.DependPkgversion) {
			case version.Unsatisfied:
				return errs.New(errs.PrecheckNotUpgradeable, "installer.precheck",
					fmt.Errorf("%q requires %s %s, have %s", pkg.Name, d.DependPkgname, d.DependPkgversion, dep.Version))
			case version.Malformed:
				return errs.New(errs.MalformedRequirement, "installer.precheck",
					fmt.Errorf("malformed requirement %q for %s", d.DependPkgversion, d.DependPkgname))
			}
		}
	}
	return nil
}

// phase1PreInstall runs outside any transaction: it stages the mtree
// skeleton and runs the bundle's +PRE_INSTALL script, if it carries one,
// with stage "PRE-INSTALL". The asset list is not consulted here: @cwd and
// @preexec entries are neither applied nor executed.
func phase1PreInstall(ctx context.Context, fixed map[string][]byte, pkg store.Package, prefix string, cb Collaborators) error {
	if mtree, ok := fixed[bundle.MtreeName]; ok {
		if err := stageMtree(prefix, mtree); err != nil {
			return fmt.Errorf("stage mtree: %w", err)
		}
	}
	if script, ok := fixed[bundle.PreInstallName]; ok {
		if err := runHookScript(ctx, cb, script, prefix, pkg, "PRE-INSTALL"); err != nil {
			return err
		}
	}
	cb.Msg.Emit(fmt.Sprintf("Installing %s-%s...", pkg.Name, pkg.Version))
	return nil
}

// phase2Materialize is the sole mutating transaction: insert the package
// row, bulk-copy its stub depends/conflicts/categories, and walk the asset
// list extracting each file-like entry, verifying its checksum, and
// recording its row. Any failure rolls the whole transaction back.
func phase2Materialize(ctx context.Context, s *store.Store, r *bundle.Reader, pkg store.Package, assets []asset.Entry, prefix string, cb Collaborators) error {
	cb.Progress.Init(len(assets), "extracting")
	defer cb.Progress.Finish()

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.InsertPackage(ctx, tx, pkg); err != nil {
			return err
		}
		if err := store.CopyStubDepends(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := store.CopyStubConflicts(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := store.CopyStubCategories(ctx, tx, pkg.Name); err != nil {
			return err
		}

		var flatsize int64
		for i, e := range assets {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.IsFileLike() {
				n, err := materializeFile(r, e, prefix)
				if err != nil {
					result := stats.AssetExtractedResultError
					if errs.KindOf(err) == errs.ChecksumMismatch {
						result = stats.AssetExtractedResultChecksumMismatch
					}
					cb.Stats.AfterAssetExtracted(pkg.Name, &stats.AssetExtractedStats{Path: e.Data, Result: result})
					return err
				}
				flatsize += n
				cb.Stats.AfterAssetExtracted(pkg.Name, &stats.AssetExtractedStats{
					Path: e.Data, Result: stats.AssetExtractedResultOK, FileSizeBytes: n,
				})
			} else if e.IsDirectory() {
				if err := os.MkdirAll(e.Data, 0o755); err != nil {
					return fmt.Errorf("mkdir %s: %w", e.Data, err)
				}
			}
			if err := store.InsertAsset(ctx, tx, pkg.Name, i, e); err != nil {
				return err
			}
			cb.Progress.Step(1)
		}

		if err := store.SetFlatsize(ctx, tx, pkg.Name, flatsize); err != nil {
			return err
		}
		return nil
	})
}

// materializeFile extracts one file-like asset entry from the archive,
// verifying the result's checksum when the stub recorded one, and returns
// its size for the package's flatsize accounting.
func materializeFile(r *bundle.Reader, e asset.Entry, prefix string) (int64, error) {
	hdr, err := r.ExpectEntry(relToPrefix(e.Data, prefix))
	if err != nil {
		return 0, err
	}
	if err := r.ExtractCurrent(hdr, e.Data); err != nil {
		return 0, err
	}
	if e.Checksum != "" {
		sum, err := sha256File(e.Data)
		if err != nil {
			return 0, err
		}
		if sum != e.Checksum {
			return 0, errs.New(errs.ChecksumMismatch, "installer.materializeFile",
				fmt.Errorf("%s: checksum %s, want %s", e.Data, sum, e.Checksum))
		}
	}
	fi, err := os.Stat(e.Data)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func relToPrefix(abs, prefix string) string {
	rel, err := filepath.Rel(prefix, abs)
	if err != nil {
		return abs
	}
	return rel
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
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

// phase3PostInstall runs outside any transaction: the pkg-message display,
// the bundle's +POST_INSTALL script if it carries one (stage
// "POST-INSTALL"), and the final status transition plus log event. It copies
// no metafiles (Install persists them with bundle.WriteInfraFiles before
// phase 1), runs none of the asset list's @postexec or other side-effect
// entries, and starts no services.
func phase3PostInstall(ctx context.Context, s *store.Store, fixed map[string][]byte, pkg store.Package, prefix string, cb Collaborators) error {
	if msg, ok := fixed[bundle.MessageName]; ok && len(msg) > 0 {
		cb.Msg.Emit(string(msg))
	}
	if script, ok := fixed[bundle.PostInstallName]; ok {
		if err := runHookScript(ctx, cb, script, prefix, pkg, "POST-INSTALL"); err != nil {
			return err
		}
	}
	if err := store.SetStatus(ctx, s.DB(), pkg.Name, "clean"); err != nil {
		return err
	}
	return store.LogEvent(ctx, s.DB(), pkg.Name, pkg.Version, cb.Clock.Now().Unix(), "Installed")
}

// runHookScript writes script to a temp file and runs it via the injected
// SystemCommand with argv [scriptPath, stage] and the environment variables
// pkg-install hooks expect, matching spec §9's modeling of lua/hook
// execution as an opaque external command rather than an embedded
// interpreter.
func runHookScript(ctx context.Context, cb Collaborators, script []byte, prefix string, pkg store.Package, stage string) error {
	f, err := os.CreateTemp("", "mport-hook-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(script); err != nil {
		f.Close()
		return err
	}
	f.Close()
	os.Chmod(f.Name(), 0o755)

	env := []string{
		"PKG_PREFIX=" + prefix,
		"PKG_NAME=" + pkg.Name,
		"PKG_VERSION=" + pkg.Version,
	}
	hookStart := cb.Clock.Now()
	exitStatus, err := cb.Cmd.Run(ctx, []string{f.Name(), stage}, env, prefix)
	cb.Stats.AfterHookRun(pkg.Name, stage, exitStatus, cb.Clock.Now().Sub(hookStart))
	if err != nil {
		return err
	}
	if exitStatus != 0 {
		return errs.New(errs.HookNonZero, "installer.runHookScript",
			fmt.Errorf("%s hook for %q exited %d", stage, pkg.Name, exitStatus))
	}
	return nil
}

// stageMtree creates the directory skeleton described by the bundle's mtree
// side file. Each non-blank line is "<path> type=dir"; anything else is
// ignored, matching the subset of mtree syntax mport's bundle format uses.
func stageMtree(prefix string, mtree []byte) error {
	for _, line := range splitLines(mtree) {
		if line == "" {
			continue
		}
		fields := splitFields(line)
		if len(fields) == 0 {
			continue
		}
		dir := fields[0]
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(prefix, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func splitLines(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}

// stubDownDepends reads the dependency edges the bundle declares for pkg
// from the attached stub schema.
func stubDownDepends(ctx context.Context, q *sql.DB, pkg string) ([]store.Dependency, error) {
	rows, err := q.QueryContext(ctx, `SELECT pkg, depend_pkgname, depend_pkgversion, depend_port FROM stub.depends WHERE pkg = ?`, pkg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Dependency
	for rows.Next() {
		var d store.Dependency
		if err := rows.Scan(&d.Pkg, &d.DependPkgname, &d.DependPkgversion, &d.DependPort); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// stubConflicts reads the conflicts the bundle declares for pkg from the
// attached stub schema.
func stubConflicts(ctx context.Context, q *sql.DB, pkg string) ([]store.Conflict, error) {
	rows, err := q.QueryContext(ctx, `SELECT pkg, conflict_pkg, conflict_version FROM stub.conflicts WHERE pkg = ?`, pkg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Conflict
	for rows.Next() {
		var c store.Conflict
		if err := rows.Scan(&c.Pkg, &c.ConflictPkg, &c.ConflictVersion); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func splitFields(s string) []string {
	var out []string
	start := -1
	for i, c := range s {
		if c == ' ' || c == '\t' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
