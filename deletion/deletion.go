// Package deletion implements package removal: precondition checks, the
// reverse asset walk, checksum-compare-then-delete for files, best-effort
// directory removal, and the single transaction that drops the package's
// rows (spec §4.F).
package deletion

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
	"syscall"

	"github.com/midnightbsd/go-mport/asset"
	"github.com/midnightbsd/go-mport/bundle"
	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/config"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/stats"
	"github.com/midnightbsd/go-mport/store"
)

// Collaborators bundles the external dependencies deletion needs injected.
type Collaborators struct {
	Msg   collab.MsgSink
	Cmd   collab.SystemCommand
	Clock collab.Clock
	Stats stats.Collector
}

func (c Collaborators) defaults() Collaborators {
	if c.Msg == nil {
		c.Msg = collab.DefaultMsgSink{W: os.Stderr}
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

// Options configures one Delete call.
type Options struct {
	// Force skips the locked and up-depends preconditions, per spec §4.F's
	// "unless force" clause on both checks.
	Force bool
	// InfraDir is the base directory a package's hook scripts were
	// persisted under at install time (installer.Options.InfraDir).
	// Defaults to config.DefaultInfraDir.
	InfraDir string
	Collab   Collaborators
}

// Delete removes pkg: it refuses a locked package or one other installed
// packages still depend on, runs pre/post-deinstall hooks outside the
// transaction, walks the asset list in reverse deleting files after
// comparing their checksum, best-effort-removes now-empty directories, and
// removes the package's rows in one transaction.
func Delete(ctx context.Context, s *store.Store, pkgName string, opts Options) error {
	cb := opts.Collab.defaults()
	q := s.DB()

	pkg, ok, err := store.GetPackage(ctx, q, pkgName)
	if err != nil {
		return errs.New(errs.Fatal, "deletion.Delete", err)
	}
	if !ok {
		return errs.New(errs.Fatal, "deletion.Delete", fmt.Errorf("%q is not installed", pkgName))
	}
	if pkg.Locked && !opts.Force {
		return errs.New(errs.PrecheckLocked, "deletion.Delete", fmt.Errorf("%q is locked", pkgName))
	}

	upDepends, err := store.UpDepends(ctx, q, pkgName)
	if err != nil {
		return errs.New(errs.Fatal, "deletion.Delete", err)
	}
	if !opts.Force {
		for _, d := range upDepends {
			if _, stillInstalled, err := store.GetPackage(ctx, q, d.Pkg); err != nil {
				return errs.New(errs.Fatal, "deletion.Delete", err)
			} else if stillInstalled {
				return errs.New(errs.PrecheckDependMissing, "deletion.Delete",
					fmt.Errorf("%q is required by installed package %q", pkgName, d.Pkg))
			}
		}
	}

	assets, err := store.AssetsForPackageReverse(ctx, q, pkgName)
	if err != nil {
		return errs.New(errs.Fatal, "deletion.Delete", err)
	}

	infraDir := opts.InfraDir
	if infraDir == "" {
		infraDir = config.DefaultInfraDir
	}

	start := cb.Clock.Now()
	exitStatus, hookErr := runDeinstallHook(ctx, infraDir, cb, pkg, "PRE-DEINSTALL")
	cb.Stats.AfterHookRun(pkgName, "PRE-DEINSTALL", exitStatus, cb.Clock.Now().Sub(start))
	if hookErr != nil {
		return errs.New(errs.KindOf(hookErr), "deletion.Delete.predeinstall", hookErr)
	}

	for _, e := range assets {
		if err := removeAsset(e, cb); err != nil {
			return errs.New(errs.Fatal, "deletion.Delete.removeAsset", err)
		}
	}

	// Post-deinstall is best-effort per spec §7: a non-zero exit is logged,
	// not fatal, since the package's rows must still be removed.
	start = cb.Clock.Now()
	exitStatus, hookErr = runDeinstallHook(ctx, infraDir, cb, pkg, "POST-DEINSTALL")
	cb.Stats.AfterHookRun(pkgName, "POST-DEINSTALL", exitStatus, cb.Clock.Now().Sub(start))
	if hookErr != nil {
		cb.Msg.Emit(fmt.Sprintf("warning: post-deinstall hook for %q failed: %v", pkgName, hookErr))
	}

	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.DeleteAssets(ctx, tx, pkgName); err != nil {
			return err
		}
		if err := store.DeleteDependencies(ctx, tx, pkgName); err != nil {
			return err
		}
		if err := store.DeleteConflicts(ctx, tx, pkgName); err != nil {
			return err
		}
		if err := store.DeleteCategories(ctx, tx, pkgName); err != nil {
			return err
		}
		return store.DeletePackageRow(ctx, tx, pkgName)
	}); err != nil {
		return errs.New(errs.Fatal, "deletion.Delete.transaction", err)
	}

	return store.LogEvent(ctx, q, pkgName, pkg.Version, cb.Clock.Now().Unix(), "Deleted")
}

// removeAsset applies one reverse-order plist entry's deletion semantics:
// a File-like entry is removed after a checksum comparison (mismatches are
// reported but do not block removal, matching spec §4.F's "best effort,
// still remove" rule), @dirrm requires the directory be empty, and
// @dirrmtry tolerates ENOTEMPTY silently.
func removeAsset(e asset.Entry, cb Collaborators) error {
	switch {
	case e.IsFileLike():
		if e.Checksum != "" {
			if sum, err := sha256File(e.Data); err == nil && sum != e.Checksum {
				cb.Msg.Emit(fmt.Sprintf("warning: %s has been modified since install", e.Data))
			}
		}
		if err := os.Remove(e.Data); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", e.Data, err)
		}
	case e.Kind == asset.KindDirectoryRm:
		if err := os.Remove(e.Data); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rmdir %s: %w", e.Data, err)
		}
	case e.Kind == asset.KindDirectoryRmTry:
		if err := os.Remove(e.Data); err != nil && !os.IsNotExist(err) && !isNotEmpty(err) {
			return fmt.Errorf("rmdir (try) %s: %w", e.Data, err)
		}
	}
	return nil
}

func isNotEmpty(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ENOTEMPTY
	}
	return false
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

// runDeinstallHook invokes the named pkg-deinstall stage's hook script if
// the installer persisted one for pkg under infraDir (spec §9: pre-install
// and pre/post-deinstall hooks are opaque subprocesses, not an owned
// interpreter). When the original bundle shipped no such hook, nothing is
// run and it returns (0, nil): a legitimate no-op, not an error.
func runDeinstallHook(ctx context.Context, infraDir string, cb Collaborators, pkg store.Package, stage string) (exitStatus int, err error) {
	entryName := bundle.PreDeinstallName
	if stage == "POST-DEINSTALL" {
		entryName = bundle.PostDeinstallName
	}
	if _, ok, err := bundle.ReadInfraFile(infraDir, pkg.Name, pkg.Version, entryName); err != nil {
		return 0, err
	} else if !ok {
		return 0, nil
	}

	scriptPath := filepath.Join(bundle.InfraDir(infraDir, pkg.Name, pkg.Version), entryName)
	env := []string{
		"PKG_PREFIX=" + pkg.Prefix,
		"PKG_NAME=" + pkg.Name,
		"PKG_VERSION=" + pkg.Version,
	}
	exitStatus, err = cb.Cmd.Run(ctx, []string{scriptPath, stage}, env, pkg.Prefix)
	if err != nil {
		return exitStatus, err
	}
	if exitStatus != 0 {
		return exitStatus, errs.New(errs.HookNonZero, "deletion.runDeinstallHook",
			fmt.Errorf("%s hook for %q exited %d", stage, pkg.Name, exitStatus))
	}
	return exitStatus, nil
}
