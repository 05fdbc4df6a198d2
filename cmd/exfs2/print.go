// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/nazmavali/exfs2/lib/exfs2"
	"github.com/nazmavali/exfs2/lib/filemap"
)

// printTree renders a Node depth-first, indenting children by two
// spaces per depth level and appending "/" after directory names.
func printTree(w io.Writer, node exfs2.Node) {
	printNode(w, node, 0)
}

func printNode(w io.Writer, node exfs2.Node, depth int) {
	name := node.Name
	if node.IsDir && depth > 0 {
		name += "/"
	}
	fmt.Fprintln(w, strings.Repeat("  ", depth)+name)
	for _, child := range node.Children {
		printNode(w, child, depth+1)
	}
}

// printDebug renders a DebugReport in the format described for the -D
// mode: the live entries of each directory prefix, then (for a file
// target) its size and per-level block map summary.
func printDebug(w io.Writer, report exfs2.DebugReport) {
	for _, level := range report.Levels {
		fmt.Fprintf(w, "%s:\n", level.Name)
		for _, e := range level.Entries {
			fmt.Fprintf(w, "  %s -> inode %d\n", e.Name, e.InodeNum)
		}
	}

	if report.File == nil {
		return
	}
	s := report.File
	fmt.Fprintf(w, "size: %d\n", s.Size)
	printLevel(w, "direct", s.Direct)
	printLevel(w, "indirect", s.Indirect)
	printLevel(w, "double-indirect", s.Double)
	printLevel(w, "triple-indirect", s.Triple)
}

func printLevel(w io.Writer, name string, level filemap.LevelStat) {
	fmt.Fprintf(w, "%s: count=%d first=%d last=%d\n", name, level.Count, level.First, level.Last)
}
