package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/deletion"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/stats"
	"github.com/midnightbsd/go-mport/store"
)

// cmdDelete implements "mport delete <pkg>..." (spec §4.F/§6).
func cmdDelete(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "delete", err)
	}
	names := fs.Args()
	if err := requirePkgArgs(names, "mport delete <pkg>..."); err != nil {
		return err
	}

	s, release, err := a.openMutating(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, name := range names {
		if err := a.deleteOne(ctx, s, name); err != nil {
			return err
		}
		a.msg.Emit(fmt.Sprintf("Deleted %s", name))
	}
	return nil
}

// cmdDeleteAll implements "mport deleteall": remove every installed package,
// leaf-first so up-depends preconditions never block a later entry in the
// same run. -f forces through lock/up-depends checks exactly as "delete" does.
func cmdDeleteAll(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("deleteall", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "deleteall", err)
	}

	s, release, err := a.openMutating(ctx)
	if err != nil {
		return err
	}
	defer release()

	for {
		all, err := store.ListAll(ctx, s.DB())
		if err != nil {
			return errs.New(errs.Fatal, "deleteall", err)
		}
		if len(all) == 0 {
			return nil
		}
		progressed := false
		for _, pkg := range all {
			upDepends, err := store.UpDepends(ctx, s.DB(), pkg.Name)
			if err != nil {
				return errs.New(errs.Fatal, "deleteall", err)
			}
			if len(upDepends) > 0 && !a.flags.force {
				continue
			}
			if err := a.deleteOne(ctx, s, pkg.Name); err != nil {
				return err
			}
			a.msg.Emit(fmt.Sprintf("Deleted %s", pkg.Name))
			progressed = true
		}
		if !progressed {
			return errs.New(errs.Fatal, "deleteall", fmt.Errorf("cycle or lock prevents further removal"))
		}
	}
}

func (a *app) deleteOne(ctx context.Context, s *store.Store, name string) error {
	return deletion.Delete(ctx, s, name, deletion.Options{
		Force:    a.flags.force,
		InfraDir: a.infraPath(),
		Collab: deletion.Collaborators{
			Msg:   a.msg,
			Clock: collab.OSClock{},
			Stats: stats.NoopCollector{},
		},
	})
}
