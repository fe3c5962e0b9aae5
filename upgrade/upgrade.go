// Package upgrade implements the three-pass upgrade planner from spec
// §4.H: moved/expired reconciliation, origin-rename reconciliation, and a
// depth-first version-upgrade pass over the dependency graph, plus
// autoremove. The planner only decides; it returns a sequence of Actions
// for the caller to execute through installer/deletion, keeping decision
// logic free of archive-download and filesystem side effects.
package upgrade

import (
	"context"
	"fmt"

	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/index"
	"github.com/midnightbsd/go-mport/store"
)

// ActionKind identifies what an Action asks the caller to do.
type ActionKind int

// Recognized actions a Plan can contain.
const (
	ActionDeleteExpired ActionKind = iota
	ActionRename
	ActionUpgrade
)

// Action is one planner decision: delete an expired port, delete-then-
// install a renamed one, or delete-then-install a newer version of one
// already installed.
type Action struct {
	Kind       ActionKind
	OldName    string
	OldVersion string
	NewName    string
	NewVersion string
	NewOrigin  string
	Automatic  bool
	Reason     string
}

// Planner runs the three-pass algorithm against a live store and an
// attached index client, memoizing index lookups for the duration of one
// run (spec §9: IndexCheckCache / MovedLookupCache are unconditional).
type Planner struct {
	store   *store.Store
	idx     *index.Client
	confirm collab.ConfirmSink

	processed  map[string]bool
	indexCache map[string]index.Status
	movedCache map[string]*index.MovedEntry
	byName     map[string]store.Package
}

// NewPlanner returns a Planner for one upgrade run. confirm defaults to
// collab.NoopConfirmSink (never proceeds) if nil.
func NewPlanner(s *store.Store, idx *index.Client, confirm collab.ConfirmSink) *Planner {
	if confirm == nil {
		confirm = collab.NoopConfirmSink{}
	}
	return &Planner{
		store:      s,
		idx:        idx,
		confirm:    confirm,
		processed:  make(map[string]bool),
		indexCache: make(map[string]index.Status),
		movedCache: make(map[string]*index.MovedEntry),
	}
}

// Plan runs all three passes and returns the resulting action sequence.
func (p *Planner) Plan(ctx context.Context) ([]Action, error) {
	installed, err := store.ListAll(ctx, p.store.DB())
	if err != nil {
		return nil, errs.New(errs.Fatal, "upgrade.Plan", err)
	}
	p.byName = make(map[string]store.Package, len(installed))
	for _, pkg := range installed {
		p.byName[pkg.Name] = pkg
	}

	var actions []Action

	a, err := p.movedExpiredPass(ctx, installed)
	if err != nil {
		return nil, err
	}
	actions = append(actions, a...)

	a, err = p.renameReconciliationPass(ctx, installed)
	if err != nil {
		return nil, err
	}
	actions = append(actions, a...)

	a, err = p.versionUpgradePass(ctx, installed)
	if err != nil {
		return nil, err
	}
	actions = append(actions, a...)

	return actions, nil
}

// movedLookup wraps Client.MovedLookup with the run's MovedLookupCache.
func (p *Planner) movedLookup(ctx context.Context, origin string) (*index.MovedEntry, error) {
	if origin == "" {
		return nil, nil
	}
	if m, ok := p.movedCache[origin]; ok {
		return m, nil
	}
	m, ok, err := p.idx.MovedLookup(ctx, origin)
	if err != nil {
		return nil, err
	}
	var result *index.MovedEntry
	if ok {
		result = &m
	}
	p.movedCache[origin] = result
	return result, nil
}

// indexCheck wraps Client.Check with the run's IndexCheckCache.
func (p *Planner) indexCheck(ctx context.Context, pkg store.Package) (index.Status, error) {
	if s, ok := p.indexCache[pkg.Name]; ok {
		return s, nil
	}
	s, err := p.idx.Check(ctx, pkg)
	if err != nil {
		return index.NoUpdate, err
	}
	p.indexCache[pkg.Name] = s
	return s, nil
}

// movedExpiredPass implements spec §4.H pass 1.
func (p *Planner) movedExpiredPass(ctx context.Context, installed []store.Package) ([]Action, error) {
	var actions []Action
	for _, pkg := range installed {
		if p.processed[pkg.Name] {
			continue
		}
		m, err := p.movedLookup(ctx, pkg.Origin)
		if err != nil {
			return nil, errs.New(errs.Fatal, "upgrade.movedExpiredPass", err)
		}
		if m == nil {
			continue
		}

		if m.Expiration != "" {
			if !p.confirm.Ask(fmt.Sprintf("%s (%s) has expired: %s. Delete?", pkg.Name, pkg.Origin, m.Reason)) {
				continue
			}
			actions = append(actions, Action{
				Kind: ActionDeleteExpired, OldName: pkg.Name, OldVersion: pkg.Version, Reason: m.Reason,
			})
			p.processed[pkg.Name] = true
			continue
		}

		if m.NewPkgname != "" {
			if !p.confirm.Ask(fmt.Sprintf("%s has been renamed to %s. Proceed?", pkg.Name, m.NewPkgname)) {
				continue
			}
			actions = append(actions, Action{
				Kind: ActionRename, OldName: pkg.Name, OldVersion: pkg.Version,
				NewName: m.NewPkgname, NewOrigin: m.NewOrigin, Automatic: pkg.Automatic, Reason: m.Reason,
			})
			p.processed[pkg.Name] = true
			// §9's open-question resolution: mark the new name processed
			// directly rather than through any state carried from the old
			// name's lookup, so a later pass never revisits it under a
			// stale key.
			p.processed[m.NewPkgname] = true
		}
	}
	return actions, nil
}

// renameReconciliationPass implements spec §4.H pass 2: packages whose
// index Check returns OriginMatch are offered for rename.
func (p *Planner) renameReconciliationPass(ctx context.Context, installed []store.Package) ([]Action, error) {
	var actions []Action
	for _, pkg := range installed {
		if p.processed[pkg.Name] {
			continue
		}
		status, err := p.indexCheck(ctx, pkg)
		if err != nil {
			return nil, errs.New(errs.Fatal, "upgrade.renameReconciliationPass", err)
		}
		if status != index.OriginMatch {
			continue
		}
		newPkg, ok, err := p.idx.LookupByOrigin(ctx, pkg.Origin)
		if err != nil {
			return nil, errs.New(errs.Fatal, "upgrade.renameReconciliationPass", err)
		}
		if !ok {
			continue
		}
		// Spec §9's open-question resolution: only an affirmative confirm
		// proceeds with the rename.
		if !p.confirm.Ask(fmt.Sprintf("%s has moved to %s (same origin %s). Proceed?", pkg.Name, newPkg.Name, pkg.Origin)) {
			continue
		}
		actions = append(actions, Action{
			Kind: ActionRename, OldName: pkg.Name, OldVersion: pkg.Version,
			NewName: newPkg.Name, NewVersion: newPkg.Version, NewOrigin: newPkg.Origin, Automatic: pkg.Automatic,
		})
		p.processed[pkg.Name] = true
		p.processed[newPkg.Name] = true
	}
	return actions, nil
}

// versionUpgradePass implements spec §4.H pass 3: a depth-first walk of
// the dependency graph (update_down) that never upgrades a package before
// any of its down-depends in the same run.
func (p *Planner) versionUpgradePass(ctx context.Context, installed []store.Package) ([]Action, error) {
	var actions []Action
	for _, pkg := range installed {
		a, err := p.updateDown(ctx, pkg.Name)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a...)
	}
	return actions, nil
}

func (p *Planner) updateDown(ctx context.Context, name string) ([]Action, error) {
	if p.processed[name] {
		return nil, nil
	}
	pkg, ok := p.byName[name]
	if !ok {
		// Referenced by a depends edge but not installed; nothing for the
		// planner to do here, the installer's precheck surfaces this.
		p.processed[name] = true
		return nil, nil
	}

	var actions []Action
	down, err := store.DownDepends(ctx, p.store.DB(), name)
	if err != nil {
		return nil, errs.New(errs.Fatal, "upgrade.updateDown", err)
	}
	for _, d := range down {
		a, err := p.updateDown(ctx, d.DependPkgname)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a...)
	}

	status, err := p.indexCheck(ctx, pkg)
	if err != nil {
		return nil, errs.New(errs.Fatal, "upgrade.updateDown", err)
	}
	if status == index.UpdateAvailable {
		idxPkg, ok, err := p.idx.LookupByName(ctx, name)
		if err != nil {
			return nil, errs.New(errs.Fatal, "upgrade.updateDown", err)
		}
		if ok {
			actions = append(actions, Action{
				Kind: ActionUpgrade, OldName: pkg.Name, OldVersion: pkg.Version,
				NewName: pkg.Name, NewVersion: idxPkg.Version, NewOrigin: idxPkg.Origin, Automatic: pkg.Automatic,
			})
		}
	}

	p.processed[name] = true
	return actions, nil
}

// Autoremove computes the set of installed packages with automatic=true
// and no up-depends chain reaching an explicitly-installed ancestor (spec
// §4.H). It reads a fresh down-depends vector for each package rather than
// reusing any cached traversal state, matching the fresh-vector
// requirement spec §9 calls out.
func Autoremove(ctx context.Context, s *store.Store) ([]string, error) {
	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return nil, errs.New(errs.Fatal, "upgrade.Autoremove", err)
	}

	byName := make(map[string]store.Package, len(all))
	upDependsOf := make(map[string][]string)
	for _, pkg := range all {
		byName[pkg.Name] = pkg
		down, err := store.DownDepends(ctx, s.DB(), pkg.Name)
		if err != nil {
			return nil, errs.New(errs.Fatal, "upgrade.Autoremove", err)
		}
		for _, d := range down {
			upDependsOf[d.DependPkgname] = append(upDependsOf[d.DependPkgname], pkg.Name)
		}
	}

	var toRemove []string
	for _, pkg := range all {
		if !pkg.Automatic {
			continue
		}
		if !hasExplicitAncestor(pkg.Name, upDependsOf, byName, make(map[string]bool)) {
			toRemove = append(toRemove, pkg.Name)
		}
	}
	return toRemove, nil
}

func hasExplicitAncestor(name string, upDependsOf map[string][]string, byName map[string]store.Package, seen map[string]bool) bool {
	if seen[name] {
		return false
	}
	seen[name] = true
	for _, up := range upDependsOf[name] {
		pkg, ok := byName[up]
		if !ok {
			continue
		}
		if !pkg.Automatic {
			return true
		}
		if hasExplicitAncestor(up, upDependsOf, byName, seen) {
			return true
		}
	}
	return false
}
