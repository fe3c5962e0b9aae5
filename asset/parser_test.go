package asset_test

import (
	"strings"
	"testing"

	"github.com/midnightbsd/go-mport/asset"
)

func TestParserOrderAndCwd(t *testing.T) {
	plist := strings.Join([]string{
		"@cwd /usr/local",
		"bin/foo",
		"@cwd etc",
		"@sample foo.conf.sample",
		"@dirrmtry etc",
	}, "\n")

	entries, err := asset.List(strings.NewReader(plist), "/usr/local")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3: %+v", len(entries), entries)
	}
	if entries[0].Kind != asset.KindFile || entries[0].Data != "/usr/local/bin/foo" {
		t.Errorf("entries[0] = %+v, want File /usr/local/bin/foo", entries[0])
	}
	if entries[1].Kind != asset.KindSampleFile {
		t.Errorf("entries[1].Kind = %v, want SampleFile", entries[1].Kind)
	}
	if entries[1].Dst != "/usr/local/etc/foo.conf" {
		t.Errorf("entries[1].Dst = %q, want /usr/local/etc/foo.conf", entries[1].Dst)
	}
	if entries[2].Kind != asset.KindDirectoryRmTry {
		t.Errorf("entries[2].Kind = %v, want DirectoryRmTry", entries[2].Kind)
	}
}

func TestParserInheritsOwnerGroupMode(t *testing.T) {
	plist := strings.Join([]string{
		"@owner www",
		"@group www",
		"@mode 0640",
		"etc/foo.conf",
	}, "\n")
	entries, err := asset.List(strings.NewReader(plist), "/usr/local")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Owner != "www" || e.Group != "www" || e.Mode != "0640" {
		t.Errorf("entries[0] = %+v, want owner/group/mode www/www/0640", e)
	}
}

func TestSubstituteTokens(t *testing.T) {
	got := asset.SubstituteTokens("install -m 755 %F %D/%B", "/usr/local/bin/foo", "/usr/local/bin")
	want := "install -m 755 /usr/local/bin/foo /usr/local/bin/foo"
	if got != want {
		t.Errorf("SubstituteTokens() = %q, want %q", got, want)
	}
}

func TestParserUnrecognizedDirective(t *testing.T) {
	_, err := asset.List(strings.NewReader("@bogus xyz"), "/usr/local")
	if err == nil {
		t.Fatal("List() with unrecognized directive: want error, got nil")
	}
}
