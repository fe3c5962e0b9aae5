package version_test

import (
	"testing"

	"github.com/midnightbsd/go-mport/version"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"1.1", "1.0", 1},
		{"1.0", "1.0.1", -1},
		{"2.0", "1.9", 1},
		{"1.0_1", "1.0_2", -1},
		{"1.0,2", "1.0,1", 1},
		{"1.0a", "1.0b", -1},
		{"1.0", "1.0+1", -1},
	}
	for _, tc := range tests {
		if got := version.Compare(tc.a, tc.b); got != tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	pairs := [][2]string{
		{"1.0", "2.0"}, {"1.4.5", "1.4"}, {"1.0_1", "1.0_2"}, {"abc", "abd"},
	}
	for _, p := range pairs {
		a, b := version.Compare(p[0], p[1]), version.Compare(p[1], p[0])
		if a != -b {
			t.Errorf("Compare(%q,%q)=%d, Compare(%q,%q)=%d, want negation", p[0], p[1], a, p[1], p[0], b)
		}
	}
}

func TestCompareTransitive(t *testing.T) {
	a, b, c := "1.0", "1.5", "2.0"
	if !(version.Compare(a, b) <= 0 && version.Compare(b, c) <= 0 && version.Compare(a, c) <= 0) {
		t.Errorf("transitivity violated for %q <= %q <= %q", a, b, c)
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		candidate, requirement string
		want                   version.Tristate
	}{
		{"1.0", ">=1.0", version.Satisfied},
		{"1.0", ">1.0", version.Unsatisfied},
		{"1.4.5", ">=1.4.0<1.5", version.Satisfied},
		{"1.5.0", ">=1.4.0<1.5", version.Unsatisfied},
		{"x", "|", version.Malformed},
		{"x", "", version.Malformed},
		{"2.0", "=2.0", version.Satisfied},
	}
	for _, tc := range tests {
		if got := version.Satisfies(tc.candidate, tc.requirement); got != tc.want {
			t.Errorf("Satisfies(%q, %q) = %v, want %v", tc.candidate, tc.requirement, got, tc.want)
		}
	}
}

func TestParseEpochRevision(t *testing.T) {
	v := version.Parse("1.2.3_4,5")
	if v.Epoch != 5 || v.Revision != 4 || v.Base != "1.2.3" {
		t.Errorf("Parse() = %+v, want Epoch=5 Revision=4 Base=1.2.3", v)
	}
}

func TestParseTruncatesEmbeddedRange(t *testing.T) {
	v := version.Parse("1.0<2.0")
	if v.Base != "1.0" {
		t.Errorf("Parse(%q).Base = %q, want 1.0", "1.0<2.0", v.Base)
	}
}
