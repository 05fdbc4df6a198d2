// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exfs2

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func mustOpen(t *testing.T) *FS {
	t.Helper()
	fs, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return fs
}

func TestAddExtractRoundTrip(t *testing.T) {
	fs := mustOpen(t)
	content := "Content of the test file"

	if err := fs.Add("/a/b/c/t.txt", strings.NewReader(content)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var out bytes.Buffer
	if err := fs.Extract("/a/b/c/t.txt", &out); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.String() != content {
		t.Fatalf("Extract = %q, want %q", out.String(), content)
	}
}

func TestAddCreatesIntermediateDirectories(t *testing.T) {
	fs := mustOpen(t)
	if err := fs.Add("/a/b/c/t.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	tree, err := fs.Tree()
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 1 || tree.Children[0].Name != "a" || !tree.Children[0].IsDir {
		t.Fatalf("Tree = %+v", tree)
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	fs := mustOpen(t)
	if err := fs.Add("/a", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	err := fs.Add("/a", strings.NewReader("y"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Add duplicate = %v, want ErrExists", err)
	}

	// The filesystem must be unchanged after the rejected second add.
	var out bytes.Buffer
	if err := fs.Extract("/a", &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "x" {
		t.Fatalf("content after rejected duplicate add = %q, want unchanged %q", out.String(), "x")
	}
}

func TestRemoveMissingReportsNotExist(t *testing.T) {
	fs := mustOpen(t)
	err := fs.Remove("/does/not/exist")
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("Remove missing = %v, want ErrNotExist", err)
	}
}

func TestRemoveFileThenTreeOmitsIt(t *testing.T) {
	fs := mustOpen(t)
	if err := fs.Add("/a/b/c/t.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove("/a/b/c/t.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	tree, err := fs.Tree()
	if err != nil {
		t.Fatal(err)
	}
	c := tree.Children[0].Children[0].Children[0]
	if len(c.Children) != 0 {
		t.Fatalf("directory c still has children after removing its only file: %+v", c)
	}

	if _, _, err := fs.resolve("/a/b/c/t.txt"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("resolve after remove = %v, want ErrNotExist", err)
	}
}

func TestRemoveDirectoryRecursesIntoChildren(t *testing.T) {
	fs := mustOpen(t)
	if err := fs.Add("/a/b/t1.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Add("/a/b/t2.txt", strings.NewReader("y")); err != nil {
		t.Fatal(err)
	}

	if err := fs.Remove("/a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	tree, err := fs.Tree()
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 0 {
		t.Fatalf("Tree after removing /a = %+v, want empty root", tree)
	}
}

func TestZeroByteFile(t *testing.T) {
	fs := mustOpen(t)
	if err := fs.Add("/empty", strings.NewReader("")); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := fs.Extract("/empty", &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("Extract of empty file produced %d bytes", out.Len())
	}
}

func TestDebugReportsRootAndPrefixes(t *testing.T) {
	fs := mustOpen(t)
	if err := fs.Add("/a/b/t.txt", strings.NewReader("hello")); err != nil {
		t.Fatal(err)
	}

	report, err := fs.Debug("/a/b/t.txt")
	if err != nil {
		t.Fatalf("Debug: %v", err)
	}
	if len(report.Levels) != 3 {
		t.Fatalf("Levels = %d, want 3 (root, a, b)", len(report.Levels))
	}
	if report.File == nil || report.File.Size != 5 {
		t.Fatalf("File stat = %+v, want size 5", report.File)
	}
}
