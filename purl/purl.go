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

// Package purl provides functions to code and decode package URLs according to
// the spec: https://github.com/package-url/purl-spec
// This package is a convenience wrapper and abstraction layer around an existing
// open source implementation.
package purl

import (
	"fmt"
	"strings"

	"github.com/package-url/packageurl-go"
)

// Known purl types. mport only ever produces TypeMport itself, but accepts
// the handful of OS-package types a moved/renamed entry might carry through
// from an index built on another ecosystem's tooling.
const (
	// TypeMport is a pkg:mport purl, mport's own package identity.
	TypeMport = "mport"
	// TypeDebian is a pkg:deb purl.
	TypeDebian = "deb"
	// TypeRPM is a pkg:rpm purl.
	TypeRPM = "rpm"
	// TypeGeneric is a pkg:generic purl.
	TypeGeneric = "generic"
)

// PackageURL is the struct representation of the parts that make a package URL.
type PackageURL struct {
	Type       string
	Namespace  string
	Name       string
	Version    string
	Qualifiers Qualifiers
	Subpath    string
}

// Qualifier represents a single key=value qualifier in the package URL.
type Qualifier packageurl.Qualifier

// Qualifiers is a slice of key=value pairs, with order preserved as it appears
// in the package URL.
type Qualifiers packageurl.Qualifiers

// QualifiersFromMap constructs a Qualifiers slice from a string map. To get a
// deterministic qualifier order (despite maps not providing any iteration order
// guarantees) the returned Qualifiers are sorted in increasing order of key.
func QualifiersFromMap(mm map[string]string) Qualifiers {
	return Qualifiers(packageurl.QualifiersFromMap(mm))
}

func (p PackageURL) String() string {
	u := packageurl.PackageURL{
		Type:       p.Type,
		Namespace:  p.Namespace,
		Name:       p.Name,
		Version:    p.Version,
		Qualifiers: packageurl.Qualifiers(p.Qualifiers),
		Subpath:    p.Subpath,
	}
	return (&u).String()
}

// FromString parses a valid package URL string into a PackageURL structure.
func FromString(purl string) (PackageURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return PackageURL{}, fmt.Errorf("failed to decode PURL string %q: %w", purl, err)
	}
	if !validType(p.Type) {
		return PackageURL{}, fmt.Errorf("invalid PURL type %q", p.Type)
	}
	return PackageURL{
		Type:       p.Type,
		Namespace:  p.Namespace,
		Name:       p.Name,
		Version:    p.Version,
		Qualifiers: Qualifiers(p.Qualifiers),
		Subpath:    p.Subpath,
	}, nil
}

func validType(t string) bool {
	types := map[string]bool{
		TypeMport:   true,
		TypeDebian:  true,
		TypeRPM:     true,
		TypeGeneric: true,
	}
	// purl type is case-insensitive, canonical form is lower-case.
	t = strings.ToLower(t)
	_, ok := types[t]
	return ok
}

// Qualifier names used when building an mport PackageURL.
const (
	Origin = "origin"
	Prefix = "prefix"
	Flavor = "flavor"
)

// FromPackage builds the canonical PackageURL for an installed or stub
// package record: pkg:mport/<name>@<version>, with origin/prefix/flavor
// carried as qualifiers whenever they are non-empty.
func FromPackage(name, version, origin, prefix, flavor string) PackageURL {
	qm := map[string]string{}
	if origin != "" {
		qm[Origin] = origin
	}
	if prefix != "" {
		qm[Prefix] = prefix
	}
	if flavor != "" {
		qm[Flavor] = flavor
	}
	return PackageURL{
		Type:       TypeMport,
		Name:       name,
		Version:    version,
		Qualifiers: QualifiersFromMap(qm),
	}
}
