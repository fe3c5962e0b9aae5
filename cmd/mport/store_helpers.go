package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/lock"
	"github.com/midnightbsd/go-mport/store"
)

// openReadOnly opens the live database for a query-only subcommand. No
// advisory lock is taken: spec §5 permits concurrent readers.
func (a *app) openReadOnly(ctx context.Context) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(a.dbPath()), 0o755); err != nil {
		return nil, errs.New(errs.Fatal, "mport.openReadOnly", err)
	}
	s, err := store.Open(ctx, a.dbPath())
	if err != nil {
		return nil, errs.New(errs.Fatal, "mport.openReadOnly", err)
	}
	return s, nil
}

// openMutating opens the live database and acquires the advisory lock for a
// subcommand that installs, deletes, or upgrades. The returned release func
// must run on every exit path, including error returns (spec §5).
func (a *app) openMutating(ctx context.Context) (*store.Store, func(), error) {
	if err := os.MkdirAll(filepath.Dir(a.dbPath()), 0o755); err != nil {
		return nil, nil, errs.New(errs.Fatal, "mport.openMutating", err)
	}
	l, err := lock.Acquire(a.lockPath())
	if err != nil {
		return nil, nil, errs.New(errs.Fatal, "mport.openMutating", err)
	}
	s, err := store.Open(ctx, a.dbPath())
	if err != nil {
		l.Release()
		return nil, nil, errs.New(errs.Fatal, "mport.openMutating", err)
	}
	release := func() {
		s.Close()
		l.Release()
	}
	return s, release, nil
}

// requirePkgArgs returns a Warn error ("nothing to do") when args is empty,
// matching spec §7's exit-code-1 treatment of no-op invocations.
func requirePkgArgs(args []string, usage string) error {
	if len(args) == 0 {
		return errs.New(errs.Warn, "mport", fmt.Errorf("usage: %s", usage))
	}
	return nil
}
