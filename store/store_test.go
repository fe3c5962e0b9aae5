package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/midnightbsd/go-mport/asset"
	"github.com/midnightbsd/go-mport/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetPackage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := store.Package{Name: "foo", Version: "1.0", Prefix: "/usr/local", Automatic: false}
	if err := store.InsertPackage(ctx, s.DB(), p); err != nil {
		t.Fatalf("InsertPackage() error = %v", err)
	}

	got, ok, err := store.GetPackage(ctx, s.DB(), "foo")
	if err != nil || !ok {
		t.Fatalf("GetPackage() = %+v, %v, %v", got, ok, err)
	}
	if got.Version != "1.0" || got.Status != "dirty" {
		t.Errorf("GetPackage() = %+v, want version=1.0 status=dirty", got)
	}
}

func TestDownUpDepends(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, name := range []string{"foo", "bar"} {
		if err := store.InsertPackage(ctx, s.DB(), store.Package{Name: name, Version: "1.0"}); err != nil {
			t.Fatalf("InsertPackage(%q) error = %v", name, err)
		}
	}
	if err := store.InsertDependency(ctx, s.DB(), store.Dependency{Pkg: "foo", DependPkgname: "bar", DependPkgversion: ">=1.0"}); err != nil {
		t.Fatalf("InsertDependency() error = %v", err)
	}

	down, err := store.DownDepends(ctx, s.DB(), "foo")
	if err != nil || len(down) != 1 || down[0].DependPkgname != "bar" {
		t.Fatalf("DownDepends(foo) = %+v, %v", down, err)
	}
	up, err := store.UpDepends(ctx, s.DB(), "bar")
	if err != nil || len(up) != 1 || up[0].Pkg != "foo" {
		t.Fatalf("UpDepends(bar) = %+v, %v", up, err)
	}
}

func TestAssetsOrderingAndReverse(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "foo", Version: "1.0"})

	entries := []asset.Entry{
		{Kind: asset.KindFile, Data: "/usr/local/bin/a"},
		{Kind: asset.KindFile, Data: "/usr/local/bin/b"},
		{Kind: asset.KindDirectory, Data: "/usr/local/share/foo"},
	}
	for i, e := range entries {
		if err := store.InsertAsset(ctx, s.DB(), "foo", i, e); err != nil {
			t.Fatalf("InsertAsset(%d) error = %v", i, err)
		}
	}

	got, err := store.AssetsForPackage(ctx, s.DB(), "foo")
	if err != nil || len(got) != 3 || got[0].Data != "/usr/local/bin/a" {
		t.Fatalf("AssetsForPackage() = %+v, %v", got, err)
	}
	rev, err := store.AssetsForPackageReverse(ctx, s.DB(), "foo")
	if err != nil || len(rev) != 3 || rev[0].Data != "/usr/local/share/foo" {
		t.Fatalf("AssetsForPackageReverse() = %+v, %v", rev, err)
	}
}

func TestSearchByName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "libfoo", Version: "1.0"})
	store.InsertPackage(ctx, s.DB(), store.Package{Name: "bar", Version: "1.0"})

	got, err := store.Search(ctx, s.DB(), store.NamePredicate("foo"))
	if err != nil || len(got) != 1 || got[0].Name != "libfoo" {
		t.Fatalf("Search() = %+v, %v", got, err)
	}
}

func TestLogEvent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := store.LogEvent(ctx, s.DB(), "foo", "1.0", 1000, "Installed"); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	events, err := store.EventsForPackage(ctx, s.DB(), "foo")
	if err != nil || len(events) != 1 || events[0].Msg != "Installed" {
		t.Fatalf("EventsForPackage() = %+v, %v", events, err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	wantErr := errTest{}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.InsertPackage(ctx, tx, store.Package{Name: "willrollback", Version: "1.0"}); err != nil {
			t.Fatalf("InsertPackage() in tx error = %v", err)
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("WithTx() error = %v, want %v", err, wantErr)
	}

	if _, ok, err := store.GetPackage(ctx, s.DB(), "willrollback"); err != nil || ok {
		t.Errorf("GetPackage() after rollback = ok=%v, err=%v, want not found", ok, err)
	}
}

type errTest struct{}

func (errTest) Error() string { return "test error" }
