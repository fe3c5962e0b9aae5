package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/midnightbsd/go-mport/bundle"
	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/installer"
	"github.com/midnightbsd/go-mport/stats"
	"github.com/midnightbsd/go-mport/store"
)

// cmdInstall implements "mport install [-A] <pkg>...": resolve each name
// against the index, download its bundle, and install it (spec §6).
func cmdInstall(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	automaticDeps := fs.Bool("A", false, "mark installed packages as automatic")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "install", err)
	}
	names := fs.Args()
	if err := requirePkgArgs(names, "mport install [-A] <pkg>..."); err != nil {
		return err
	}

	s, release, err := a.openMutating(ctx)
	if err != nil {
		return err
	}
	defer release()

	idx, closeIdx, err := a.openIndex(ctx, s)
	if err != nil {
		return err
	}
	defer closeIdx()

	for _, name := range names {
		rec, ok, err := idx.LookupByName(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return errs.New(errs.Fatal, "install", fmt.Errorf("%q not found in index", name))
		}
		bundlePath, err := a.fetchBundle(ctx, rec.Name, rec.Version)
		if err != nil {
			return err
		}
		if err := a.installFromBundle(ctx, s, bundlePath, rec.Name, *automaticDeps); err != nil {
			return err
		}
		a.msg.Emit(fmt.Sprintf("Installed %s-%s", rec.Name, rec.Version))
	}
	return nil
}

// cmdAdd implements "mport add <file>...": install from a local bundle
// archive directly, skipping index resolution.
func cmdAdd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	automaticDeps := fs.Bool("A", false, "mark installed packages as automatic")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "add", err)
	}
	files := fs.Args()
	if err := requirePkgArgs(files, "mport add <file>..."); err != nil {
		return err
	}

	s, release, err := a.openMutating(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, f := range files {
		pkgName, err := a.installFromBundleFile(ctx, s, f, *automaticDeps)
		if err != nil {
			return err
		}
		a.msg.Emit(fmt.Sprintf("Added %s from %s", pkgName, f))
	}
	return nil
}

// installFromBundle opens bundlePath, attaches its stub database, and runs
// the installer for pkgName.
func (a *app) installFromBundle(ctx context.Context, s *store.Store, bundlePath, pkgName string, automatic bool) error {
	_, err := a.installFromBundleFileNamed(ctx, s, bundlePath, pkgName, automatic)
	return err
}

// installFromBundleFile opens bundlePath, attaches its stub database, reads
// the single package name the stub contains, and runs the installer -
// used by "add" where the caller supplies an archive, not a name.
func (a *app) installFromBundleFile(ctx context.Context, s *store.Store, bundlePath string, automatic bool) (string, error) {
	return a.installFromBundleFileNamed(ctx, s, bundlePath, "", automatic)
}

func (a *app) installFromBundleFileNamed(ctx context.Context, s *store.Store, bundlePath, pkgName string, automatic bool) (string, error) {
	r, err := bundle.Open(bundlePath)
	if err != nil {
		return "", errs.New(errs.Fatal, "mport.installFromBundle", err)
	}
	if err := r.AttachStubDB(ctx, s); err != nil {
		return "", err
	}
	defer r.Finish(ctx, s)

	if pkgName == "" {
		pkgName, err = firstStubPackageName(ctx, s)
		if err != nil {
			return "", err
		}
	}

	err = installer.Install(ctx, s, r, pkgName, installer.Options{
		Prefix:    a.cfg.Prefix,
		Automatic: automatic,
		Force:     a.flags.force,
		InfraDir:  a.infraPath(),
		Collab: installer.Collaborators{
			Msg:   a.msg,
			Clock: collab.OSClock{},
			Stats: stats.NoopCollector{},
		},
	})
	if err != nil {
		return "", err
	}
	return pkgName, nil
}

// firstStubPackageName returns the single package name a just-attached stub
// database describes. Bundles carry exactly one package per spec §6.
func firstStubPackageName(ctx context.Context, s *store.Store) (string, error) {
	row := s.DB().QueryRowContext(ctx, `SELECT pkg FROM stub.packages LIMIT 1`)
	var name string
	if err := row.Scan(&name); err != nil {
		return "", errs.New(errs.BundleOutOfSync, "mport.firstStubPackageName", err)
	}
	return name, nil
}
