// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package purl_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/package-url/packageurl-go"

	"github.com/midnightbsd/go-mport/purl"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		name string
		purl string
		want purl.PackageURL
	}{
		{
			name: "mport",
			purl: "pkg:mport/foo@1.2.3?origin=cat/foo",
			want: purl.PackageURL{
				Type:       purl.TypeMport,
				Name:       "foo",
				Version:    "1.2.3",
				Qualifiers: purl.QualifiersFromMap(map[string]string{"origin": "cat/foo"}),
			},
		}, {
			name: "deb",
			purl: "pkg:deb/debian/curl@7.50.3-1?arch=i386&distro=jessie",
			want: purl.PackageURL{
				Type:       purl.TypeDebian,
				Namespace:  "debian",
				Name:       "curl",
				Version:    "7.50.3-1",
				Qualifiers: purl.QualifiersFromMap(map[string]string{"arch": "i386", "distro": "jessie"}),
			},
		}, {
			name: "rpm",
			purl: "pkg:rpm/fedora/curl@7.50.3-1.fc25?arch=i386&distro=fedora-25",
			want: purl.PackageURL{
				Type:       purl.TypeRPM,
				Namespace:  "fedora",
				Name:       "curl",
				Version:    "7.50.3-1.fc25",
				Qualifiers: purl.QualifiersFromMap(map[string]string{"arch": "i386", "distro": "fedora-25"}),
			},
		}, {
			name: "generic",
			purl: "pkg:generic/some-archive@2024.01.01",
			want: purl.PackageURL{
				Type:    purl.TypeGeneric,
				Name:    "some-archive",
				Version: "2024.01.01",
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := purl.FromString(test.purl)
			if err != nil {
				t.Fatalf("FromString(%+v) error: %v", test.purl, err)
			}
			if diff := cmp.Diff(test.want.String(), got.String()); diff != "" {
				t.Fatalf("FromString(%+v) returned unexpected result; diff (-want +got):\n%s", test.purl, diff)
			}
		})
	}
}

func TestFromStringInvalidPURL(t *testing.T) {
	tests := []struct {
		name string
		purl string
	}{
		{
			name: "missing type",
			purl: "pkg:/package-name@1.2.3",
		}, {
			name: "unsupported type",
			// npm isn't one of mport's recognized ecosystem types; mport only
			// ever encounters its own packages and the OS-native package
			// types a moved/renamed index entry might reference.
			purl: "pkg:npm/package-name@1.2.3",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := purl.FromString(test.purl); err == nil {
				t.Fatalf("FromString(%+v) got no error, expected one", test.purl)
			}
		})
	}
}

func TestQualifiersFromMap(t *testing.T) {
	tests := []struct {
		name           string
		qualifierMap   map[string]string
		wantQualifiers purl.Qualifiers
	}{
		{
			name: "normal transcription",
			qualifierMap: map[string]string{
				"qual":  "ifier",
				"other": "qualifier",
			},
			wantQualifiers: []packageurl.Qualifier{
				{Key: "other", Value: "qualifier"},
				{Key: "qual", Value: "ifier"},
			},
		}, {
			name: "filters only empty value",
			qualifierMap: map[string]string{
				"empty": "",
				"other": "qualifier",
			},
			wantQualifiers: []packageurl.Qualifier{
				{Key: "other", Value: "qualifier"},
			},
		}, {
			name: "empty qualifiers if all empty",
			qualifierMap: map[string]string{
				"empty": "",
			},
			wantQualifiers: []packageurl.Qualifier{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := purl.QualifiersFromMap(test.qualifierMap)

			if diff := cmp.Diff(test.wantQualifiers, got); diff != "" {
				t.Fatalf("QualifiersFromMap(%+v) returned unexpected result; diff (-want +got):\n%s", test.qualifierMap, diff)
			}
		})
	}
}

func TestFromPackage(t *testing.T) {
	got := purl.FromPackage("foo", "1.2.3", "cat/foo", "", "")
	if got.Type != purl.TypeMport || got.Name != "foo" || got.Version != "1.2.3" {
		t.Fatalf("FromPackage(...) = %+v, want type/name/version mport/foo/1.2.3", got)
	}
	want := purl.QualifiersFromMap(map[string]string{purl.Origin: "cat/foo"})
	if diff := cmp.Diff(want, got.Qualifiers); diff != "" {
		t.Fatalf("FromPackage(...).Qualifiers mismatch; diff (-want +got):\n%s", diff)
	}

	// The rendered string must round-trip back through FromString.
	parsed, err := purl.FromString(got.String())
	if err != nil {
		t.Fatalf("FromString(%q) error: %v", got.String(), err)
	}
	if diff := cmp.Diff(got.String(), parsed.String()); diff != "" {
		t.Fatalf("round-trip mismatch; diff (-want +got):\n%s", diff)
	}
}
