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

// Package fs provides a read-only virtual filesystem interface used by the
// verifier to walk an install prefix without depending on the real OS
// filesystem directly.
package fs

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FS is a filesystem interface that allows opening files, reading directories,
// and stat-ing paths under an install prefix.
//
// FS implementations MUST implement io.ReaderAt for opened files so checksum
// verification can seek within large files without buffering them whole.
type FS interface {
	fs.FS
	fs.ReadDirFS
	fs.StatFS
}

// PrefixRoot is a filesystem rooted at one package's install prefix
// (typically /usr/local).
type PrefixRoot struct {
	// FS provides read access rooted at Path.
	FS FS
	// Path is the absolute prefix path on disk.
	Path string
}

// WithAbsolutePath returns a copy of the PrefixRoot with Path made absolute.
func (r *PrefixRoot) WithAbsolutePath() (*PrefixRoot, error) {
	absPath, err := filepath.Abs(r.Path)
	if err != nil {
		return nil, err
	}
	return &PrefixRoot{FS: r.FS, Path: absPath}, nil
}

// DirFS returns an FS implementation that accesses the real filesystem at the given root.
func DirFS(root string) FS {
	return os.DirFS(root).(FS)
}

// RealPrefixRoot returns a PrefixRoot for the given prefix on the real
// filesystem mport is running on.
func RealPrefixRoot(path string) *PrefixRoot {
	return &PrefixRoot{FS: DirFS(path), Path: path}
}

// NewReaderAt converts an io.Reader into an io.ReaderAt.
func NewReaderAt(ioReader io.Reader) (io.ReaderAt, error) {
	if r, ok := ioReader.(io.ReaderAt); ok {
		return r, nil
	}

	// Fallback: buffer into memory when the reader doesn't support ReadAt
	// (e.g. a streaming archive entry being checksum-verified on the fly).
	buff := bytes.NewBuffer(nil)
	if _, err := io.Copy(buff, ioReader); err != nil {
		return nil, fmt.Errorf("io.Copy(): %w", err)
	}
	return bytes.NewReader(buff.Bytes()), nil
}
