package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/midnightbsd/go-mport/audit"
	"github.com/midnightbsd/go-mport/collab"
	"github.com/midnightbsd/go-mport/errs"
	mportfs "github.com/midnightbsd/go-mport/fs"
	"github.com/midnightbsd/go-mport/store"
	"github.com/midnightbsd/go-mport/verify"
)

// cmdVerify implements "mport verify [-r] [pkg]...": recompute checksums
// and report mismatches (spec §4.I). "-r" rewrites the stored checksum to
// match the current on-disk contents instead of just reporting.
func cmdVerify(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	recompute := fs.Bool("r", false, "rewrite stored checksums to match disk")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "verify", err)
	}
	names := fs.Args()

	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	root := mportfs.RealPrefixRoot(a.path("/"))

	if *recompute {
		if len(names) == 0 {
			return errs.New(errs.Warn, "verify", fmt.Errorf("-r requires at least one package name"))
		}
		for _, name := range names {
			if err := verify.RecomputeChecksums(ctx, s, root, name); err != nil {
				return err
			}
			a.msg.Emit(fmt.Sprintf("Recomputed checksums for %s", name))
		}
		return nil
	}

	var bad map[string][]verify.Finding
	if len(names) == 0 {
		bad, err = verify.All(ctx, s, root)
		if err != nil {
			return err
		}
	} else {
		bad = make(map[string][]verify.Finding)
		for _, name := range names {
			findings, err := verify.Package(ctx, s, root, name)
			if err != nil {
				return err
			}
			var mismatches []verify.Finding
			for _, f := range findings {
				if f.Status != verify.StatusOK {
					mismatches = append(mismatches, f)
				}
			}
			if len(mismatches) > 0 {
				bad[name] = mismatches
			}
		}
	}

	if len(bad) == 0 {
		a.msg.Emit("all checksums verified")
		return nil
	}
	for pkg, findings := range bad {
		for _, f := range findings {
			a.msg.Emit(fmt.Sprintf("%s: %s %s (expected %s, got %s)", pkg, f.Path, verifyStatusName(f.Status), f.Expected, f.Actual))
		}
	}
	return errs.New(errs.Warn, "verify", fmt.Errorf("%d package(s) failed verification", len(bad)))
}

func verifyStatusName(st verify.Status) string {
	switch st {
	case verify.StatusMismatch:
		return "checksum mismatch"
	case verify.StatusMissing:
		return "missing"
	default:
		return "ok"
	}
}

// cmdAudit implements "mport audit [-r] [pkg]": CPE-keyed vulnerability
// lookup against the configured feed (spec §4.I). "-r" expands the audit to
// every package that (transitively) depends on a vulnerable one; it applies
// only when no package names are given. Only per-package findings are
// printed; the dependency chains linking packages are not.
func cmdAudit(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	dependsOn := fs.Bool("r", false, "also audit packages that depend on a vulnerable package (chains are not printed)")
	if err := fs.Parse(args); err != nil {
		return errs.New(errs.Fatal, "audit", err)
	}

	if a.cfg.AuditFeedURL == "" {
		return errs.New(errs.Fatal, "audit", fmt.Errorf("no audit feed configured (audit_feed_url in mport.conf)"))
	}

	s, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	fetcher := collab.NewHTTPFetcher()

	var findings []audit.Finding
	if len(fs.Args()) > 0 {
		for _, name := range fs.Args() {
			pkg, ok, err := store.GetPackage(ctx, s.DB(), name)
			if err != nil {
				return err
			}
			if !ok {
				return errs.New(errs.Warn, "audit", fmt.Errorf("%q is not installed", name))
			}
			f, found, err := audit.Package(ctx, fetcher, a.cfg.AuditFeedURL, pkg)
			if err != nil {
				return err
			}
			if found {
				findings = append(findings, f)
			}
		}
	} else {
		findings, err = audit.All(ctx, s, fetcher, audit.Options{FeedURL: a.cfg.AuditFeedURL, DependsOn: *dependsOn})
		if err != nil {
			return err
		}
	}

	if len(findings) == 0 {
		a.msg.Emit("no known vulnerabilities")
		return nil
	}
	for _, f := range findings {
		for _, v := range f.Vulnerabilities {
			a.msg.Emit(fmt.Sprintf("%s (%s): %s - %s", f.Package, f.CPE, v.ID, v.Summary))
		}
	}
	return errs.New(errs.Warn, "audit", fmt.Errorf("%d package(s) have known vulnerabilities", len(findings)))
}
