package upgrade_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/midnightbsd/go-mport/index"
	"github.com/midnightbsd/go-mport/store"
	"github.com/midnightbsd/go-mport/upgrade"

	_ "modernc.org/sqlite"
)

type alwaysConfirm struct{}

func (alwaysConfirm) Ask(prompt string) bool { return true }

func buildIndexDB(t *testing.T, path string, stmts []string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()
	schema := []string{
		`CREATE TABLE packages (pkg TEXT PRIMARY KEY, version TEXT, origin TEXT, flavor TEXT, automatic INTEGER)`,
		`CREATE TABLE depends (pkg TEXT, depend_pkgname TEXT, depend_pkgversion TEXT, depend_port TEXT)`,
		`CREATE TABLE mirrors (url TEXT, priority INTEGER)`,
		`CREATE TABLE moved (old_pkgname TEXT, new_pkgname TEXT, new_origin TEXT, reason TEXT, expiration_date TEXT)`,
	}
	for _, s := range append(schema, stmts...) {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func TestVersionUpgradePassOrdersDependenciesFirst(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.Open(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	store.InsertPackage(ctx, s.DB(), store.Package{Name: "bar", Version: "1.0", Origin: "devel/bar"})
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "foo", Version: "1.0", Origin: "devel/foo"})
	store.InsertDependency(ctx, s.DB(), store.Dependency{Pkg: "foo", DependPkgname: "bar"})

	idxPath := filepath.Join(dir, "index.db")
	buildIndexDB(t, idxPath, []string{
		`INSERT INTO packages VALUES ('bar', '1.1', 'devel/bar', '', 0)`,
		`INSERT INTO packages VALUES ('foo', '1.1', 'devel/foo', '', 0)`,
	})
	idxClient, err := index.Load(ctx, s.DB(), idxPath)
	if err != nil {
		t.Fatalf("index.Load() error = %v", err)
	}
	defer idxClient.Close(ctx)

	planner := upgrade.NewPlanner(s, idxClient, alwaysConfirm{})
	actions, err := planner.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	var upgrades []string
	for _, a := range actions {
		if a.Kind == upgrade.ActionUpgrade {
			upgrades = append(upgrades, a.OldName)
		}
	}
	if len(upgrades) != 2 || upgrades[0] != "bar" || upgrades[1] != "foo" {
		t.Fatalf("upgrade order = %v, want [bar foo]", upgrades)
	}
}

func TestMovedPassDeletesExpiredPort(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.Open(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "oldname", Version: "1.0", Origin: "cat/oldname"})

	idxPath := filepath.Join(dir, "index.db")
	buildIndexDB(t, idxPath, []string{
		`INSERT INTO moved VALUES ('cat/oldname', '', '', 'EOL', '2020-01-01')`,
	})
	idxClient, err := index.Load(ctx, s.DB(), idxPath)
	if err != nil {
		t.Fatalf("index.Load() error = %v", err)
	}
	defer idxClient.Close(ctx)

	planner := upgrade.NewPlanner(s, idxClient, alwaysConfirm{})
	actions, err := planner.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != upgrade.ActionDeleteExpired || actions[0].OldName != "oldname" {
		t.Fatalf("actions = %+v, want one ActionDeleteExpired for oldname", actions)
	}
}

func TestMovedPassRenamesAndMarksBothProcessed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.Open(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "oldname", Version: "1.0", Origin: "cat/oldname", Automatic: true})

	idxPath := filepath.Join(dir, "index.db")
	buildIndexDB(t, idxPath, []string{
		`INSERT INTO moved VALUES ('cat/oldname', 'newname', 'cat/newname', 'renamed', '')`,
	})
	idxClient, err := index.Load(ctx, s.DB(), idxPath)
	if err != nil {
		t.Fatalf("index.Load() error = %v", err)
	}
	defer idxClient.Close(ctx)

	planner := upgrade.NewPlanner(s, idxClient, alwaysConfirm{})
	actions, err := planner.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != upgrade.ActionRename ||
		actions[0].OldName != "oldname" || actions[0].NewName != "newname" || !actions[0].Automatic {
		t.Fatalf("actions = %+v, want one ActionRename oldname->newname inheriting automatic", actions)
	}
}

func TestAutoremoveKeepsExplicitAncestors(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	store.InsertPackage(ctx, s.DB(), store.Package{Name: "app", Version: "1.0", Automatic: false})
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "libused", Version: "1.0", Automatic: true})
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "liborphan", Version: "1.0", Automatic: true})
	store.InsertDependency(ctx, s.DB(), store.Dependency{Pkg: "app", DependPkgname: "libused"})

	toRemove, err := upgrade.Autoremove(ctx, s)
	if err != nil {
		t.Fatalf("Autoremove() error = %v", err)
	}
	if len(toRemove) != 1 || toRemove[0] != "liborphan" {
		t.Fatalf("Autoremove() = %v, want [liborphan]", toRemove)
	}
}
