package asset

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"
)

// state tracks the @cwd/@mode/@owner/@group directives that modify the
// interpretation of subsequent File-like entries (spec §3).
type state struct {
	cwd, prefix    string
	mode           string
	owner          string
	group          string
}

// Parser streams plist directives from r one line at a time, in file order,
// without buffering the whole list — matching the iteration contract in
// spec §4.C. Its line-oriented, single-pass shape mirrors the status-file
// reader in the teacher's dpkg extractor (bufio.Scanner + per-line dispatch)
// adapted from RFC822 headers to "@directive arg" lines.
type Parser struct {
	sc    *bufio.Scanner
	st    state
	lastFile string
	err   error
	done  bool
}

// NewParser returns a Parser over r. prefix is the package's install root,
// used to restore the current directory when a bare "@cwd" directive (no
// argument) is seen.
func NewParser(r io.Reader, prefix string) *Parser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Parser{
		sc: sc,
		st: state{cwd: prefix, prefix: prefix},
	}
}

// Next returns the next directive, or ok=false once the stream is exhausted.
// A non-nil error means parsing failed; callers must stop iterating.
func (p *Parser) Next() (Entry, bool, error) {
	if p.done || p.err != nil {
		return Entry{}, false, p.err
	}
	for p.sc.Scan() {
		line := strings.TrimRight(p.sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "@") {
			// A bare line is a file path relative to the current @cwd.
			e := p.fileEntry(KindFile, line)
			return e, true, nil
		}
		entry, consumed, err := p.directive(line)
		if err != nil {
			p.err = err
			return Entry{}, false, err
		}
		if !consumed {
			continue
		}
		return entry, true, nil
	}
	p.done = true
	if err := p.sc.Err(); err != nil {
		p.err = fmt.Errorf("asset: scan: %w", err)
		return Entry{}, false, p.err
	}
	return Entry{}, false, nil
}

// List drains the parser into a slice, for callers (e.g. the upgrade
// planner's inspection of a downloaded bundle) that need random access
// rather than streaming.
func List(r io.Reader, prefix string) ([]Entry, error) {
	p := NewParser(r, prefix)
	var out []Entry
	for {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}

func (p *Parser) fileEntry(kind Kind, rel string) Entry {
	data := rel
	if p.st.cwd != "" && !path.IsAbs(rel) {
		data = path.Join(p.st.cwd, rel)
	}
	e := Entry{
		Kind:  kind,
		Data:  data,
		Owner: p.st.owner,
		Group: p.st.group,
		Mode:  p.st.mode,
	}
	p.lastFile = data
	return e
}

// directive parses one "@name arg..." line. consumed is false for directives
// that only mutate parser state and produce no Entry (cwd/mode/owner/group).
func (p *Parser) directive(line string) (e Entry, consumed bool, err error) {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "@")
	args := fields[1:]
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	switch name {
	case "cwd":
		if arg == "" {
			p.st.cwd = p.st.prefix
		} else if path.IsAbs(arg) {
			p.st.cwd = arg
		} else {
			p.st.cwd = path.Join(p.st.prefix, arg)
		}
		return Entry{}, false, nil
	case "mode":
		p.st.mode = arg
		return Entry{}, false, nil
	case "owner":
		p.st.owner = arg
		return Entry{}, false, nil
	case "group":
		p.st.group = arg
		return Entry{}, false, nil

	case "dirrm":
		return Entry{Kind: KindDirectoryRm, Data: p.resolve(arg)}, true, nil
	case "dirrmtry":
		return Entry{Kind: KindDirectoryRmTry, Data: p.resolve(arg)}, true, nil
	case "dir":
		return p.fileLikeEntry(KindDirectory, arg), true, nil

	case "sample":
		src := arg
		if src == "" {
			src = p.lastFile
		} else {
			src = p.resolve(src)
		}
		dst := ""
		if len(args) > 1 {
			dst = p.resolve(args[1])
		} else {
			dst = strings.TrimSuffix(src, ".sample")
		}
		return Entry{Kind: KindSampleFile, Data: src, Dst: dst,
			Owner: p.st.owner, Group: p.st.group, Mode: p.st.mode}, true, nil

	case "shell":
		return p.fileLikeEntry(KindShellFile, arg), true, nil
	case "infofile":
		return p.fileLikeEntry(KindInfoFile, arg), true, nil

	case "exec":
		return Entry{Kind: KindExec, Data: strings.Join(args, " ")}, true, nil
	case "preexec":
		return Entry{Kind: KindPreExec, Data: strings.Join(args, " ")}, true, nil
	case "postexec":
		return Entry{Kind: KindPostExec, Data: strings.Join(args, " ")}, true, nil
	case "unexec":
		return Entry{Kind: KindUnExec, Data: strings.Join(args, " ")}, true, nil
	case "preunexec":
		return Entry{Kind: KindPreUnExec, Data: strings.Join(args, " ")}, true, nil
	case "postunexec":
		return Entry{Kind: KindPostUnExec, Data: strings.Join(args, " ")}, true, nil

	case "ldconfig":
		return Entry{Kind: KindLdconfig, Data: arg}, true, nil
	case "ldconfig-linux", "ldconfiglinux":
		return Entry{Kind: KindLdconfigLinux, Data: arg}, true, nil
	case "glib-schemas":
		return Entry{Kind: KindGlibSchemas, Data: arg}, true, nil
	case "desktop-file-utils":
		return Entry{Kind: KindDesktopFileUtils, Data: arg}, true, nil
	case "kld":
		return Entry{Kind: KindKld, Data: arg}, true, nil
	case "info":
		return Entry{Kind: KindInfo, Data: arg}, true, nil
	case "touch":
		return Entry{Kind: KindTouch, Data: arg}, true, nil

	case "fileownermode":
		return Entry{Kind: KindFileOwnerMode, Data: arg}, true, nil
	case "dirownermode":
		return Entry{Kind: KindDirOwnerMode, Data: arg}, true, nil
	case "sampleownermode":
		return Entry{Kind: KindSampleOwnerMode, Data: arg}, true, nil

	case "comment":
		return Entry{Kind: KindComment, Data: strings.Join(args, " ")}, true, nil
	case "ignore":
		return Entry{Kind: KindIgnore}, true, nil
	case "option":
		return Entry{Kind: KindOption, Data: arg}, true, nil
	case "origin":
		return Entry{Kind: KindOrigin, Data: arg}, true, nil
	case "deporigin":
		return Entry{Kind: KindDepOrigin, Data: arg}, true, nil
	case "display":
		return Entry{Kind: KindDisplay, Data: arg}, true, nil
	}

	return Entry{}, false, fmt.Errorf("asset: unrecognized directive %q", line)
}

func (p *Parser) fileLikeEntry(kind Kind, arg string) Entry {
	e := p.fileEntry(kind, arg)
	e.Kind = kind
	return e
}

func (p *Parser) resolve(rel string) string {
	if rel == "" || path.IsAbs(rel) {
		return rel
	}
	return path.Join(p.st.cwd, rel)
}

// SubstituteTokens expands the %F (absolute file path), %D (current
// directory), and %B (basename) tokens an @preexec/@postexec command may
// contain, per spec §4.C.
func SubstituteTokens(cmd, file, cwd string) string {
	r := strings.NewReplacer(
		"%F", file,
		"%D", cwd,
		"%B", path.Base(file),
	)
	return r.Replace(cmd)
}
