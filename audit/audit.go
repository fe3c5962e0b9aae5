// Package audit implements the CPE-keyed vulnerability lookup from spec
// §4.I: fetch the vulnerability feed for an installed package's CPE,
// optionally expanding the search across packages that depend on it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/errs"
	"github.com/midnightbsd/go-mport/store"
)

// Vulnerability is one entry of a feed response.
type Vulnerability struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

type feedResponse struct {
	CPE             string          `json:"cpe"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Finding pairs one installed package with the vulnerabilities its CPE
// matched.
type Finding struct {
	Package         string
	CPE             string
	Vulnerabilities []Vulnerability
}

// Options configures an audit run.
type Options struct {
	// FeedURL is queried as FeedURL + "?cpe=" + url.QueryEscape(cpe).
	FeedURL string
	// DependsOn expands the audit to every package that (transitively)
	// depends on the named package, in addition to auditing it directly.
	DependsOn bool
}

// Package looks up vulnerabilities for one installed package's CPE. A
// package with no recorded CPE is skipped (ok=false), matching spec's
// silence on CPE synthesis: there is nothing to look up.
func Package(ctx context.Context, fetcher collab.HttpFetcher, feedURL string, pkg store.Package) (Finding, bool, error) {
	if pkg.CPE == "" {
		return Finding{}, false, nil
	}
	u := feedURL + "?cpe=" + url.QueryEscape(pkg.CPE)
	data, err := fetcher.Get(ctx, u)
	if err != nil {
		return Finding{}, false, err
	}
	var resp feedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Finding{}, false, errs.New(errs.Fatal, "audit.Package", fmt.Errorf("parse feed response for %s: %w", pkg.CPE, err))
	}
	return Finding{Package: pkg.Name, CPE: pkg.CPE, Vulnerabilities: resp.Vulnerabilities}, true, nil
}

// All audits every installed package, and when opts.DependsOn is set, also
// audits every package reachable by walking up-depends from each audited
// package (a vulnerable library's consumers are worth flagging too).
func All(ctx context.Context, s *store.Store, fetcher collab.HttpFetcher, opts Options) ([]Finding, error) {
	installed, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return nil, errs.New(errs.Fatal, "audit.All", err)
	}

	var findings []Finding
	seen := make(map[string]bool)
	var auditOne func(pkg store.Package) error
	auditOne = func(pkg store.Package) error {
		if seen[pkg.Name] {
			return nil
		}
		seen[pkg.Name] = true

		f, ok, err := Package(ctx, fetcher, opts.FeedURL, pkg)
		if err != nil {
			return err
		}
		if ok && len(f.Vulnerabilities) > 0 {
			findings = append(findings, f)
		}
		if !ok || !opts.DependsOn || len(f.Vulnerabilities) == 0 {
			return nil
		}

		up, err := store.UpDepends(ctx, s.DB(), pkg.Name)
		if err != nil {
			return err
		}
		for _, d := range up {
			depPkg, installed, err := store.GetPackage(ctx, s.DB(), d.Pkg)
			if err != nil {
				return err
			}
			if installed {
				if err := auditOne(depPkg); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, pkg := range installed {
		if err := auditOne(pkg); err != nil {
			return nil, err
		}
	}
	return findings, nil
}
