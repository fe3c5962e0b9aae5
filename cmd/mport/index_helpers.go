package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/index"
	"github.com/midnightbsd/go-mport/store"
)

// openIndex attaches the locally cached index database to s, refreshing it
// first unless -U was passed or the cache is missing (spec §4.G).
func (a *app) openIndex(ctx context.Context, s *store.Store) (*index.Client, func(), error) {
	path := a.indexPath()
	_, statErr := os.Stat(path)
	if !a.flags.skipRefresh || statErr != nil {
		if err := a.refreshIndex(ctx); err != nil {
			return nil, nil, err
		}
	}
	idx, err := index.Load(ctx, s.DB(), path)
	if err != nil {
		return nil, nil, err
	}
	return idx, func() { idx.Close(ctx) }, nil
}

// refreshIndex fetches a fresh index archive from the configured mirror and
// atomically replaces the local cache (spec §4.G get()).
func (a *app) refreshIndex(ctx context.Context) error {
	path := a.indexPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.New(errs.Fatal, "mport.refreshIndex", err)
	}
	if a.cfg.MirrorRoot == "" || a.cfg.OSRelease == "" || a.cfg.Arch == "" {
		// Settings aren't complete enough to refresh (spec §6's mirror layout
		// needs os-release and arch); leave whatever cache exists untouched.
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		return errs.New(errs.IndexNotLoaded, "mport.refreshIndex",
			fmt.Errorf("no index cache and mirror/os_release/arch not configured"))
	}
	base := fmt.Sprintf("%s/%s/%s/index.db.zst", a.cfg.MirrorRoot, a.cfg.OSRelease, a.cfg.Arch)
	fetcher := collab.NewHTTPFetcher()
	return index.Get(ctx, fetcher, base, base+".sha256", path, nil)
}

// fetchBundle downloads name-version's bundle from the configured mirror
// into the download directory, returning the local path.
func (a *app) fetchBundle(ctx context.Context, name, version string) (string, error) {
	archiveName := fmt.Sprintf("%s-%s.mport", name, version)
	dest := a.downloadPath(archiveName)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errs.New(errs.Fatal, "mport.fetchBundle", err)
	}
	if a.cfg.MirrorRoot == "" || a.cfg.OSRelease == "" || a.cfg.Arch == "" {
		return "", errs.New(errs.Fatal, "mport.fetchBundle",
			fmt.Errorf("mirror/os_release/arch not configured, cannot fetch %s", archiveName))
	}
	url := fmt.Sprintf("%s/%s/%s/%s", a.cfg.MirrorRoot, a.cfg.OSRelease, a.cfg.Arch, archiveName)
	fetcher := collab.NewHTTPFetcher()
	data, err := fetcher.Get(ctx, url)
	if err != nil {
		return "", err
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errs.New(errs.Fatal, "mport.fetchBundle", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", errs.New(errs.Fatal, "mport.fetchBundle", err)
	}
	return dest, nil
}
