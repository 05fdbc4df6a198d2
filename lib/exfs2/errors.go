// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exfs2

import (
	"errors"

	"github.com/nazmavali/exfs2/lib/directory"
)

// Sentinel errors recognised by the core. Callers should compare with
// errors.Is; the CLI layer maps these to short diagnostics on stderr
// and an operational exit code, as opposed to the initialization
// failures that abort the process outright.
var (
	// ErrNotExist means a path component (or the final target) does not
	// resolve to any entry.
	ErrNotExist = errors.New("path does not exist")

	// ErrExists means the final component of an add target already
	// exists.
	ErrExists = errors.New("path already exists")

	// ErrNotDirectory means a path component that traversal requires to
	// be a directory resolves to a file.
	ErrNotDirectory = errors.New("path component is not a directory")

	// ErrDirFull means a directory has exhausted its direct-block
	// fan-out (inode.DirectCount slots). It is directory.ErrFull under
	// this package's name, since package directory is where the fan-out
	// is actually exhausted and returns the wrapped error.
	ErrDirFull = directory.ErrFull

	// ErrInvalidPath means the path is empty, exceeds the maximum
	// component count, or a component exceeds the maximum length.
	ErrInvalidPath = errors.New("invalid path")
)
