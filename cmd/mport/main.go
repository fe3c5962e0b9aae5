// Command mport is the CLI front end for the package manager core: a thin
// wiring layer that parses global and per-subcommand flags, constructs the
// collaborators the core packages expect, and dispatches to store,
// installer, deletion, upgrade, index, verify, and audit. It owns no
// business logic of its own (spec §4.J, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/config"
	"github.com/midnightbsd/go-mport/errs"
	mportlog "github.com/midnightbsd/go-mport/log"
)

// globalFlags holds the flags spec §6 lists ahead of any subcommand.
type globalFlags struct {
	chroot       string
	downloadDir  string
	brief        bool
	quiet        bool
	verbose      bool
	force        bool
	skipRefresh  bool
	printVersion bool
}

// app bundles the parsed settings and collaborators every subcommand needs.
type app struct {
	cfg   config.Settings
	flags globalFlags
	msg   collab.MsgSink
}

// path joins p under the chroot directory, matching -c's semantics: every
// persisted-state path in spec §6 is relative to the chroot when one is set.
func (a *app) path(p string) string {
	if a.flags.chroot == "" {
		return p
	}
	return filepath.Join(a.flags.chroot, p)
}

func (a *app) dbPath() string   { return a.path(a.cfg.DBPath) }
func (a *app) lockPath() string { return a.path(a.cfg.LockPath) }

func (a *app) indexPath() string {
	return a.path(filepath.Join(filepath.Dir(a.cfg.DBPath), "index", "index.db"))
}

func (a *app) downloadPath(name string) string {
	dir := a.flags.downloadDir
	if dir == "" {
		dir = a.path(filepath.Join(filepath.Dir(a.cfg.DBPath), "downloads"))
	}
	return filepath.Join(dir, name)
}

func (a *app) infraPath() string {
	return a.path(filepath.Join(filepath.Dir(a.cfg.DBPath), "infrastructure"))
}

// buildVersion is the value the "-v" flag prints.
// Set at link time via -ldflags, defaulting to "devel" for source builds.
var buildVersion = "devel"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("mport", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var gf globalFlags
	fs.StringVar(&gf.chroot, "c", "", "chroot directory")
	fs.StringVar(&gf.downloadDir, "o", "", "bundle download directory")
	fs.BoolVar(&gf.brief, "b", false, "brief output")
	fs.BoolVar(&gf.quiet, "q", false, "quiet output")
	fs.BoolVar(&gf.verbose, "V", false, "verbose output")
	fs.BoolVar(&gf.force, "f", false, "force the operation")
	fs.BoolVar(&gf.skipRefresh, "U", false, "skip index refresh")
	fs.BoolVar(&gf.printVersion, "v", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return errs.ExitCode(errs.Fatal)
	}

	if gf.printVersion {
		fmt.Println(buildVersion)
		return 0
	}

	msg := collab.DefaultMsgSink{W: os.Stderr}
	if gf.verbose {
		mportlog.SetLogger(&mportlog.DefaultLogger{Verbose: true})
	}

	confPath := config.DefaultPath
	if gf.chroot != "" {
		confPath = filepath.Join(gf.chroot, confPath)
	}
	cfg, err := config.Load(confPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return errs.ExitCode(errs.Fatal)
	}

	a := &app{cfg: cfg, flags: gf, msg: msg}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mport [global flags] <subcommand> [args...]")
		return errs.ExitCode(errs.Warn)
	}

	cmd, cmdArgs := rest[0], rest[1:]
	fn, ok := subcommands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "mport: unknown subcommand %q\n", cmd)
		return errs.ExitCode(errs.Fatal)
	}

	ctx := context.Background()
	err = fn(ctx, a, cmdArgs)
	if err != nil {
		a.msg.Emit(err.Error())
	}
	return errs.ExitCode(errs.KindOf(err))
}

// subcommands maps each name in spec §6's CLI surface to its handler. Each
// handler owns its own flag.FlagSet so subcommand-specific flags (-A, -r,
// -ad, -qo, -t) never collide with the global set.
var subcommands = map[string]func(context.Context, *app, []string) error{
	"install":    cmdInstall,
	"add":        cmdAdd,
	"delete":     cmdDelete,
	"deleteall":  cmdDeleteAll,
	"update":     cmdUpdate,
	"upgrade":    cmdUpgrade,
	"autoremove": cmdAutoremove,
	"clean":      cmdClean,
	"verify":     cmdVerify,
	"search":     cmdSearch,
	"info":       cmdInfo,
	"list":       cmdList,
	"which":      cmdWhich,
	"stats":      cmdStats,
	"index":      cmdIndex,
	"mirror":     cmdMirror,
	"download":   cmdDownload,
	"config":     cmdConfig,
	"audit":      cmdAudit,
	"lock":       cmdLock,
	"unlock":     cmdUnlock,
	"locks":      cmdLocks,
	"cpe":        cmdCPE,
	"purl":       cmdPURL,
	"import":     cmdImport,
	"export":     cmdExport,
	"version":    cmdVersionCompare,
}
