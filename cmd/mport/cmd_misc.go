package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/store"
	"github.com/midnightbsd/go-mport/version"
)

// cmdClean implements "mport clean": remove everything under the download
// cache directory, the garbage partial-extraction cleanup spec §4.E's
// failure-semantics note defers to "a future clean".
func cmdClean(ctx context.Context, a *app, args []string) error {
	dir := a.downloadPath("")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.New(errs.Warn, "clean", fmt.Errorf("nothing to do"))
		}
		return errs.New(errs.Fatal, "clean", err)
	}
	if len(entries) == 0 {
		return errs.New(errs.Warn, "clean", fmt.Errorf("nothing to do"))
	}
	for _, e := range entries {
		if err := os.RemoveAll(fmt.Sprintf("%s/%s", dir, e.Name())); err != nil {
			return errs.New(errs.Fatal, "clean", err)
		}
	}
	a.msg.Emit(fmt.Sprintf("Removed %d cached file(s)", len(entries)))
	return nil
}

// cmdConfig implements "mport config list|get|set": list, get.
// "set" is rejected for now - this is a thin wiring layer (spec §4.J) over
// an immutable Settings value, and mport.conf is the source of truth; set
// would require rewriting the INI file, which is out of scope for the
// core engine this binary wires together.
func cmdConfig(ctx context.Context, a *app, args []string) error {
	if err := requirePkgArgs(args, "mport config list|get <key>|set <key> <value>"); err != nil {
		return err
	}
	switch args[0] {
	case "list":
		for _, k := range a.cfg.Keys() {
			v, _ := a.cfg.Get(k)
			a.msg.Emit(fmt.Sprintf("%s = %s", k, v))
		}
		return nil
	case "get":
		if len(args) < 2 {
			return errs.New(errs.Fatal, "config get", fmt.Errorf("usage: mport config get <key>"))
		}
		v, ok := a.cfg.Get(args[1])
		if !ok {
			return errs.New(errs.Fatal, "config get", fmt.Errorf("unknown key %q", args[1]))
		}
		a.msg.Emit(v)
		return nil
	case "set":
		return errs.New(errs.Fatal, "config set", fmt.Errorf("mport.conf is edited out of band; this binary only reads it"))
	default:
		return errs.New(errs.Fatal, "config", fmt.Errorf("unknown config subcommand %q", args[0]))
	}
}

// cmdIndex implements "mport index": force a refresh of the local index
// cache from the configured mirror (spec §4.G's get()).
func cmdIndex(ctx context.Context, a *app, args []string) error {
	if err := a.refreshIndex(ctx); err != nil {
		return err
	}
	a.msg.Emit("index refreshed")
	return nil
}

// cmdMirror implements "mport mirror list|select": list the index's
// configured mirrors, or print the one mport.conf currently selects.
func cmdMirror(ctx context.Context, a *app, args []string) error {
	if err := requirePkgArgs(args, "mport mirror list|select"); err != nil {
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

	switch args[0] {
	case "list":
		mirrors, err := idx.MirrorList(ctx)
		if err != nil {
			return err
		}
		for _, m := range mirrors {
			a.msg.Emit(fmt.Sprintf("%d  %s", m.Priority, m.URL))
		}
		return nil
	case "select":
		a.msg.Emit(fmt.Sprintf("mirror_root = %s (region %s)", a.cfg.MirrorRoot, a.cfg.MirrorRegion))
		return nil
	default:
		return errs.New(errs.Fatal, "mirror", fmt.Errorf("unknown mirror subcommand %q", args[0]))
	}
}

// cmdDownload implements "mport download [-ad] <pkg>...": fetch bundles
// into the download cache without installing them. "-a" downloads every
// installed package's current index version; "-d" also downloads declared
// dependencies.
func cmdDownload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	all := fs.Bool("a", false, "download every installed package")
	withDeps := fs.Bool("d", false, "also download declared dependencies")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "download", err)
	}

	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	idx, closeIdx, err := a.openIndex(ctx, s)
	if err != nil {
		return err
	}
	defer closeIdx()

	var names []string
	if *all {
		installed, err := store.ListAll(ctx, s.DB())
		if err != nil {
			return errs.New(errs.Fatal, "download", err)
		}
		for _, p := range installed {
			names = append(names, p.Name)
		}
	} else {
		names = fs.Args()
	}
	if err := requirePkgArgs(names, "mport download [-ad] <pkg>..."); err != nil {
		return err
	}

	seen := make(map[string]bool)
	var fetch func(name string) error
	fetch = func(name string) error {
		if seen[name] {
			return nil
		}
		seen[name] = true
		rec, ok, err := idx.LookupByName(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return errs.New(errs.Fatal, "download", fmt.Errorf("%q not found in index", name))
		}
		path, err := a.fetchBundle(ctx, rec.Name, rec.Version)
		if err != nil {
			return err
		}
		a.msg.Emit(path)
		if *withDeps {
			deps, err := idx.DependsList(ctx, name)
			if err != nil {
				return err
			}
			for _, d := range deps {
				if err := fetch(d.DependPkgname); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, name := range names {
		if err := fetch(name); err != nil {
			return err
		}
	}
	return nil
}

// cmdVersionCompare implements "mport version -t <v1> <v2>": print "<", "=",
// or ">" according to package version ordering (spec §4.A).
func cmdVersionCompare(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	test := fs.Bool("t", false, "compare two version strings")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "version", err)
	}
	rest := fs.Args()
	if !*test || len(rest) != 2 {
		return errs.New(errs.Fatal, "version", fmt.Errorf("usage: mport version -t <v1> <v2>"))
	}
	switch c := version.Compare(rest[0], rest[1]); {
	case c < 0:
		a.msg.Emit("<")
	case c > 0:
		a.msg.Emit(">")
	default:
		a.msg.Emit("=")
	}
	return nil
}

// cmdExport implements "mport export <file>": write every installed
// package's (name, version, automatic, locked) tuple as tab-separated lines.
func cmdExport(ctx context.Context, a *app, args []string) error {
	if err := requirePkgArgs(args, "mport export <file>"); err != nil {
		return err
	}
	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return errs.New(errs.Fatal, "export", err)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return errs.New(errs.Fatal, "export", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range all {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\n", p.Name, p.Version, p.Automatic, p.Locked)
	}
	if err := w.Flush(); err != nil {
		return errs.New(errs.Fatal, "export", err)
	}
	a.msg.Emit(fmt.Sprintf("Exported %d package(s) to %s", len(all), args[0]))
	return nil
}

// cmdImport implements "mport import <file>": reinstate the automatic and
// locked flags for every package named in the export file, provided it is
// already installed (this core does not fabricate bundles for packages it
// has never seen; reinstalling an absent one is "install"'s job).
func cmdImport(ctx context.Context, a *app, args []string) error {
	if err := requirePkgArgs(args, "mport import <file>"); err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return errs.New(errs.Fatal, "import", err)
	}
	defer f.Close()

	s, release, err := a.openMutating(ctx)
	if err != nil {
		return err
	}
	defer release()

	var imported, skipped int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return errs.New(errs.Fatal, "import", fmt.Errorf("malformed line %q", line))
		}
		name, automatic, locked := fields[0], fields[2] == "true", fields[3] == "true"
		p, ok, err := store.GetPackage(ctx, s.DB(), name)
		if err != nil {
			return errs.New(errs.Fatal, "import", err)
		}
		if !ok {
			skipped++
			continue
		}
		if err := store.UpdatePackageFields(ctx, s.DB(), name, locked, automatic, p.InstallDate, p.Prefix); err != nil {
			return errs.New(errs.Fatal, "import", err)
		}
		imported++
	}
	if err := sc.Err(); err != nil {
		return errs.New(errs.Fatal, "import", err)
	}
	a.msg.Emit(fmt.Sprintf("Imported %d package(s), skipped %d not installed", imported, skipped))
	return nil
}
