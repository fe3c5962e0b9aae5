// Package errs defines the closed error-kind taxonomy every mport component
// returns through, so a CLI front end can map any failure to an exit code
// without string-matching error text (spec §7).
package errs

import "errors"

// Kind is one of the fixed set of error classifications mport operations can
// fail with. It is never extended at runtime.
type Kind int

// Recognized kinds, in the order spec §7 lists them.
const (
	Ok Kind = iota
	Warn
	Fatal
	FetchTimeout
	BundleOutOfSync
	PrecheckConflict
	PrecheckDependMissing
	PrecheckNotUpgradeable
	PrecheckLocked
	MalformedRequirement
	IndexNotLoaded
	DbCorruption
	HookNonZero
	ChecksumMismatch
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Warn:
		return "warn"
	case Fatal:
		return "fatal"
	case FetchTimeout:
		return "fetch_timeout"
	case BundleOutOfSync:
		return "bundle_out_of_sync"
	case PrecheckConflict:
		return "precheck_conflict"
	case PrecheckDependMissing:
		return "precheck_depend_missing"
	case PrecheckNotUpgradeable:
		return "precheck_not_upgradeable"
	case PrecheckLocked:
		return "precheck_locked"
	case MalformedRequirement:
		return "malformed_requirement"
	case IndexNotLoaded:
		return "index_not_loaded"
	case DbCorruption:
		return "db_corruption"
	case HookNonZero:
		return "hook_non_zero"
	case ChecksumMismatch:
		return "checksum_mismatch"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind, so callers can recover the
// classification with errors.As instead of parsing text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a *Error of the given kind, wrapping err for context.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind carried by err, or Fatal if err does not wrap an
// *Error. Used by the CLI's exit-code mapping.
func KindOf(err error) Kind {
	if err == nil {
		return Ok
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// ExitCode maps a Kind to the process exit code spec §7 assigns it: 0
// success, 1 warning, 2+ fatal.
func ExitCode(k Kind) int {
	switch k {
	case Ok:
		return 0
	case Warn:
		return 1
	default:
		return 2
	}
}
