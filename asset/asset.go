// Package asset implements the ordered plist directive list described in
// spec §3/§4.C: the parsed representation of a bundle's asset list, plus the
// streaming parser that builds it.
package asset

// Kind identifies one plist directive type. Order within this block carries
// no meaning; order within an Entry slice does (spec §3).
type Kind int

// Directive kinds, matching the tagged variant in spec §3.
const (
	KindUnknown Kind = iota
	KindFile
	KindSampleFile
	KindShellFile
	KindInfoFile
	KindDirectory
	KindDirectoryRm
	KindDirectoryRmTry
	KindCwd
	KindChmod
	KindChown
	KindChgrp
	KindExec
	KindPreExec
	KindPostExec
	KindUnExec
	KindPreUnExec
	KindPostUnExec
	KindLdconfig
	KindLdconfigLinux
	KindGlibSchemas
	KindDesktopFileUtils
	KindKld
	KindInfo
	KindTouch
	KindFileOwnerMode
	KindDirOwnerMode
	KindSampleOwnerMode
	KindComment
	KindIgnore
	KindOption
	KindOrigin
	KindDepOrigin
	KindDisplay
)

var kindNames = map[Kind]string{
	KindFile:             "file",
	KindSampleFile:        "sample",
	KindShellFile:         "shell",
	KindInfoFile:          "infofile",
	KindDirectory:         "dir",
	KindDirectoryRm:       "dirrm",
	KindDirectoryRmTry:    "dirrmtry",
	KindCwd:               "cwd",
	KindChmod:             "mode",
	KindChown:             "owner",
	KindChgrp:             "group",
	KindExec:              "exec",
	KindPreExec:           "preexec",
	KindPostExec:          "postexec",
	KindUnExec:            "unexec",
	KindPreUnExec:         "preunexec",
	KindPostUnExec:        "postunexec",
	KindLdconfig:          "ldconfig",
	KindLdconfigLinux:     "ldconfig-linux",
	KindGlibSchemas:       "glib-schemas",
	KindDesktopFileUtils:  "desktop-file-utils",
	KindKld:               "kld",
	KindInfo:              "info",
	KindTouch:             "touch",
	KindFileOwnerMode:     "fileownermode",
	KindDirOwnerMode:      "dirownermode",
	KindSampleOwnerMode:   "sampleownermode",
	KindComment:           "comment",
	KindIgnore:            "ignore",
	KindOption:            "option",
	KindOrigin:            "origin",
	KindDepOrigin:         "deporigin",
	KindDisplay:           "display",
}

// String returns the plist directive name for k, or "unknown".
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Entry is one plist directive: a tagged variant over the Kind constants.
// Data carries the path, command, or argument payload; Checksum, Owner,
// Group, and Mode are populated for File-like entries either explicitly (a
// per-entry override) or by inheriting the most recent @owner/@group/@mode
// directive (spec §4.C).
type Entry struct {
	Kind     Kind
	Data     string
	Checksum string
	Owner    string
	Group    string
	Mode     string
	// Dst is the second argument to a directive that names an alternate
	// target, currently only @sample's optional destination override.
	Dst string
}

// IsFileLike reports whether the entry denotes a materializable file payload
// that corresponds one-to-one with an archive entry during phase 2 (spec §4.E).
func (e Entry) IsFileLike() bool {
	switch e.Kind {
	case KindFile, KindSampleFile, KindShellFile, KindInfoFile:
		return true
	}
	return false
}

// IsDirectory reports whether the entry is a directory-creation directive.
func (e Entry) IsDirectory() bool { return e.Kind == KindDirectory }

// IsDirectoryRemoval reports whether the entry is one of the deletion-only
// directory directives (@dirrm / @dirrmtry).
func (e Entry) IsDirectoryRemoval() bool {
	return e.Kind == KindDirectoryRm || e.Kind == KindDirectoryRmTry
}
