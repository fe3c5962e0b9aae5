package main

import (
	"context"
	"fmt"

	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/store"
)

// cmdLock implements "mport lock <pkg>": set the locked flag, the in-place
// mutation spec §3's lifecycle note permits.
func cmdLock(ctx context.Context, a *app, args []string) error {
	return setLocked(ctx, a, args, "lock", true)
}

// cmdUnlock implements "mport unlock <pkg>".
func cmdUnlock(ctx context.Context, a *app, args []string) error {
	return setLocked(ctx, a, args, "unlock", false)
}

func setLocked(ctx context.Context, a *app, args []string, op string, locked bool) error {
	if err := requirePkgArgs(args, fmt.Sprintf("mport %s <pkg>...", op)); err != nil {
		return err
	}

	s, release, err := a.openMutating(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, name := range args {
		p, ok, err := store.GetPackage(ctx, s.DB(), name)
		if err != nil {
			return errs.New(errs.Fatal, op, err)
		}
		if !ok {
			return errs.New(errs.Warn, op, fmt.Errorf("%q is not installed", name))
		}
		if err := store.UpdatePackageFields(ctx, s.DB(), name, locked, p.Automatic, p.InstallDate, p.Prefix); err != nil {
			return errs.New(errs.Fatal, op, err)
		}
		if locked {
			a.msg.Emit(fmt.Sprintf("Locked %s", name))
		} else {
			a.msg.Emit(fmt.Sprintf("Unlocked %s", name))
		}
	}
	return nil
}
