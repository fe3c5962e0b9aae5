package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/store"
	"github.com/midnightbsd/go-mport/upgrade"
)

// cmdUpgrade implements "mport upgrade": run the three-pass planner (spec
// §4.H) and execute every resulting action. "-n" performs a dry run (used
// by "list updates" too) that only prints what would happen.
func cmdUpgrade(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("upgrade", flag.ContinueOnError)
	dryRun := fs.Bool("n", false, "print the plan without executing it")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "upgrade", err)
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

	confirm := collab.ConfirmSink(collab.NoopConfirmSink{})
	if a.cfg.AssumeAlwaysYes {
		confirm = alwaysYesConfirm{}
	}
	planner := upgrade.NewPlanner(s, idx, confirm)
	actions, err := planner.Plan(ctx)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		return errs.New(errs.Warn, "upgrade", fmt.Errorf("nothing to do"))
	}

	for _, act := range actions {
		if *dryRun {
			a.msg.Emit(describeAction(act))
			continue
		}
		if err := a.executeAction(ctx, s, act); err != nil {
			return err
		}
	}
	return nil
}

// cmdUpdate implements "mport update <pkg>...": upgrade exactly the named
// packages (and their down-depends) rather than the whole installed set.
func cmdUpdate(ctx context.Context, a *app, args []string) error {
	if err := requirePkgArgs(args, "mport update <pkg>..."); err != nil {
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

	confirm := collab.ConfirmSink(collab.NoopConfirmSink{})
	if a.cfg.AssumeAlwaysYes {
		confirm = alwaysYesConfirm{}
	}
	planner := upgrade.NewPlanner(s, idx, confirm)
	actions, err := planner.Plan(ctx)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(args))
	for _, n := range args {
		want[n] = true
	}
	for _, act := range actions {
		if !want[act.OldName] && !want[act.NewName] {
			continue
		}
		if err := a.executeAction(ctx, s, act); err != nil {
			return err
		}
	}
	return nil
}

// cmdAutoremove implements "mport autoremove" (spec §4.H).
func cmdAutoremove(ctx context.Context, a *app, args []string) error {
	s, release, err := a.openMutating(ctx)
	if err != nil {
		return err
	}
	defer release()

	names, err := upgrade.Autoremove(ctx, s)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errs.New(errs.Warn, "autoremove", fmt.Errorf("nothing to do"))
	}
	for _, name := range names {
		if err := a.deleteOne(ctx, s, name); err != nil {
			return err
		}
		a.msg.Emit(fmt.Sprintf("Autoremoved %s", name))
	}
	return nil
}

// executeAction runs one planner Action against the live store: a rename or
// version upgrade deletes the old row (preserving automatic/locked/prefix
// per spec §4.H) and installs the new bundle; an expiry just deletes.
func (a *app) executeAction(ctx context.Context, s *store.Store, act upgrade.Action) error {
	switch act.Kind {
	case upgrade.ActionDeleteExpired:
		if err := a.deleteOne(ctx, s, act.OldName); err != nil {
			return err
		}
		a.msg.Emit(fmt.Sprintf("Removed expired %s-%s (%s)", act.OldName, act.OldVersion, act.Reason))
		return nil

	case upgrade.ActionRename, upgrade.ActionUpgrade:
		prefix := a.cfg.Prefix
		locked := false
		if old, ok, err := store.GetPackage(ctx, s.DB(), act.OldName); err == nil && ok {
			prefix = old.Prefix
			locked = old.Locked
		}
		if err := a.deleteOne(ctx, s, act.OldName); err != nil {
			return err
		}
		bundlePath, err := a.fetchBundle(ctx, act.NewName, act.NewVersion)
		if err != nil {
			return err
		}
		if err := a.installFromBundle(ctx, s, bundlePath, act.NewName, act.Automatic); err != nil {
			return err
		}
		if locked || prefix != a.cfg.Prefix {
			if installed, ok, err := store.GetPackage(ctx, s.DB(), act.NewName); err == nil && ok {
				if err := store.UpdatePackageFields(ctx, s.DB(), act.NewName, locked, act.Automatic, installed.InstallDate, prefix); err != nil {
					return errs.New(errs.Fatal, "upgrade.executeAction", err)
				}
			}
		}
		a.msg.Emit(fmt.Sprintf("Upgraded %s-%s -> %s-%s", act.OldName, act.OldVersion, act.NewName, act.NewVersion))
		return nil

	default:
		return errs.New(errs.Fatal, "upgrade.executeAction", fmt.Errorf("unknown action kind %d", act.Kind))
	}
}

func describeAction(act upgrade.Action) string {
	switch act.Kind {
	case upgrade.ActionDeleteExpired:
		return fmt.Sprintf("%s-%s would be removed (expired: %s)", act.OldName, act.OldVersion, act.Reason)
	case upgrade.ActionRename:
		return fmt.Sprintf("%s-%s would be replaced by %s", act.OldName, act.OldVersion, act.NewName)
	case upgrade.ActionUpgrade:
		return fmt.Sprintf("%s %s -> %s", act.OldName, act.OldVersion, act.NewVersion)
	default:
		return fmt.Sprintf("%+v", act)
	}
}

// alwaysYesConfirm is the ConfirmSink used when mport.conf sets
// assume_always_yes, matching spec §6's settings key.
type alwaysYesConfirm struct{}

func (alwaysYesConfirm) Ask(prompt string) bool { return true }
