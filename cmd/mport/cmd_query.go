package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/purl"
	"github.com/midnightbsd/go-mport/store"
)

// cmdSearch implements "mport search <term>...": substring match against
// installed package names (spec §6, §4.B's Search helper).
func cmdSearch(ctx context.Context, a *app, args []string) error {
	if err := requirePkgArgs(args, "mport search <term>..."); err != nil {
		return err
	}
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, term := range args {
		pkgs, err := store.Search(ctx, s.DB(), store.NamePredicate(term))
		if err != nil {
			return errs.New(errs.Fatal, "search", err)
		}
		for _, p := range pkgs {
			a.msg.Emit(fmt.Sprintf("%s-%s  %s", p.Name, p.Version, p.Comment))
		}
	}
	return nil
}

// cmdInfo implements "mport info <pkg>": print the full package record.
func cmdInfo(ctx context.Context, a *app, args []string) error {
	if err := requirePkgArgs(args, "mport info <pkg>"); err != nil {
		return err
	}
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range args {
		p, ok, err := store.GetPackage(ctx, s.DB(), name)
		if err != nil {
			return errs.New(errs.Fatal, "info", err)
		}
		if !ok {
			return errs.New(errs.Warn, "info", fmt.Errorf("%q is not installed", name))
		}
		a.msg.Emit(fmt.Sprintf("Name       : %s", p.Name))
		a.msg.Emit(fmt.Sprintf("Version    : %s", p.Version))
		a.msg.Emit(fmt.Sprintf("Origin     : %s", p.Origin))
		a.msg.Emit(fmt.Sprintf("Prefix     : %s", p.Prefix))
		a.msg.Emit(fmt.Sprintf("Comment    : %s", p.Comment))
		a.msg.Emit(fmt.Sprintf("Locked     : %v", p.Locked))
		a.msg.Emit(fmt.Sprintf("Automatic  : %v", p.Automatic))
		a.msg.Emit(fmt.Sprintf("Flatsize   : %d", p.Flatsize))
		if p.CPE != "" {
			a.msg.Emit(fmt.Sprintf("CPE        : %s", p.CPE))
		}
	}
	return nil
}

// cmdList implements "mport list [updates|prime]". With no argument it
// lists every installed package; "prime" restricts to explicitly-installed
// (non-automatic) packages, and "updates" defers to the upgrade planner's
// index check (delegated to cmdUpgrade's Plan in dry-run form).
func cmdList(ctx context.Context, a *app, args []string) error {
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	mode := ""
	if len(args) > 0 {
		mode = args[0]
	}

	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "list", err)
	}

	switch mode {
	case "", "all":
		for _, p := range all {
			a.msg.Emit(fmt.Sprintf("%s-%s", p.Name, p.Version))
		}
	case "prime":
		for _, p := range all {
			if !p.Automatic {
				a.msg.Emit(fmt.Sprintf("%s-%s", p.Name, p.Version))
			}
		}
	case "updates":
		return cmdUpgrade(ctx, a, []string{"-n"})
	default:
		return errs.New(errs.Fatal, "list", fmt.Errorf("unknown list mode %q", mode))
	}
	return nil
}

// cmdWhich implements "mport which [-qo] <path>": finds the package that
// installed path by scanning every package's asset list for a File-like
// entry matching path.
func cmdWhich(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("which", flag.ContinueOnError)
	quiet := fs.Bool("q", false, "print only the package name")
	originOnly := fs.Bool("o", false, "print the origin instead of the name")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "which", err)
	}
	if err := requirePkgArgs(fs.Args(), "mport which [-qo] <path>"); err != nil {
		return err
	}
	target, err := filepath.Abs(fs.Args()[0])
	if err != nil {
		return errs.New(errs.Fatal, "which", err)
	}

	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "which", err)
	}
	for _, p := range all {
		assets, err := store.AssetsForPackage(ctx, s.DB(), p.Name)
		if err != nil {
			return errs.New(errs.Fatal, "which", err)
		}
		for _, e := range assets {
			if !e.IsFileLike() {
				continue
			}
			if e.Data != target {
				continue
			}
			switch {
			case *originOnly:
				a.msg.Emit(p.Origin)
			case *quiet:
				a.msg.Emit(p.Name)
			default:
				a.msg.Emit(fmt.Sprintf("%s was installed by package %s-%s", target, p.Name, p.Version))
			}
			return nil
		}
	}
	return errs.New(errs.Warn, "which", fmt.Errorf("%s is not owned by any installed package", target))
}

// cmdStats implements "mport stats": summary counts over the live database.
func cmdStats(ctx context.Context, a *app, args []string) error {
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "stats", err)
	}
	locked, err := store.ListLocked(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "stats", err)
	}
	var automatic int
	var totalFlatsize int64
	for _, p := range all {
		if p.Automatic {
			automatic++
		}
		totalFlatsize += p.Flatsize
	}
	a.msg.Emit(fmt.Sprintf("Installed packages : %d", len(all)))
	a.msg.Emit(fmt.Sprintf("Explicit           : %d", len(all)-automatic))
	a.msg.Emit(fmt.Sprintf("Automatic          : %d", automatic))
	a.msg.Emit(fmt.Sprintf("Locked             : %d", len(locked)))
	a.msg.Emit(fmt.Sprintf("Total flatsize     : %d bytes", totalFlatsize))
	return nil
}

// cmdLocks implements "mport locks": list every locked package.
func cmdLocks(ctx context.Context, a *app, args []string) error {
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	locked, err := store.ListLocked(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "locks", err)
	}
	for _, p := range locked {
		a.msg.Emit(fmt.Sprintf("%s-%s", p.Name, p.Version))
	}
	return nil
}

// cmdCPE implements "mport cpe [pkg]": print the recorded CPE for pkg, or
// every installed package with a non-empty CPE when no argument is given.
func cmdCPE(ctx context.Context, a *app, args []string) error {
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) > 0 {
		p, ok, err := store.GetPackage(ctx, s.DB(), args[0])
		if err != nil {
			return errs.New(errs.Fatal, "cpe", err)
		}
		if !ok {
			return errs.New(errs.Warn, "cpe", fmt.Errorf("%q is not installed", args[0]))
		}
		if p.CPE != "" {
			a.msg.Emit(p.CPE)
		}
		return nil
	}

	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "cpe", err)
	}
	for _, p := range all {
		if p.CPE != "" {
			a.msg.Emit(fmt.Sprintf("%s-%s  %s", p.Name, p.Version, p.CPE))
		}
	}
	return nil
}

// cmdPURL implements "mport purl [pkg]": print the derived Package URL for
// pkg, or every installed package when no argument is given (spec §3's
// [EXPANSION] PURL derivation).
func cmdPURL(ctx context.Context, a *app, args []string) error {
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	emit := func(p store.Package) {
		u := purl.FromPackage(p.Name, p.Version, p.Origin, p.Prefix, p.Flavor)
		a.msg.Emit(u.String())
	}

	if len(args) > 0 {
		p, ok, err := store.GetPackage(ctx, s.DB(), args[0])
		if err != nil {
			return errs.New(errs.Fatal, "purl", err)
		}
		if !ok {
			return errs.New(errs.Warn, "purl", fmt.Errorf("%q is not installed", args[0]))
		}
		emit(p)
		return nil
	}

	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "purl", err)
	}
	for _, p := range all {
		emit(p)
	}
	return nil
}
