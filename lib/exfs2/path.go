// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exfs2

import (
	"fmt"
	"strings"
)

// MaxComponents is the maximum number of path components accepted by
// Split.
const MaxComponents = 32

// MaxComponentLength is the maximum length, in bytes, of one path
// component.
const MaxComponentLength = 255

// Split breaks path on "/" into its non-empty components. A leading
// slash is stripped; repeated and trailing slashes collapse away, since
// empty tokens between separators are simply dropped. An empty path or
// "/" yields zero components, matching "//a///b/" and "/a/b" producing
// the identical sequence ["a", "b"].
func Split(path string) ([]string, error) {
	var components []string
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if len(part) > MaxComponentLength {
			return nil, fmt.Errorf("%w: component %q exceeds %d bytes", ErrInvalidPath, part, MaxComponentLength)
		}
		components = append(components, part)
		if len(components) > MaxComponents {
			return nil, fmt.Errorf("%w: more than %d components", ErrInvalidPath, MaxComponents)
		}
	}
	return components, nil
}
