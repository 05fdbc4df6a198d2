// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exfs2

import (
	"testing"

	"github.com/nazmavali/exfs2/lib/inode"
	"github.com/nazmavali/exfs2/lib/segment"
)

func TestOpenBootstrapsRootDirectory(t *testing.T) {
	dir := t.TempDir()

	fs, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !segment.Exists(dir, segment.KindInode, 0) || !segment.Exists(dir, segment.KindData, 0) {
		t.Fatal("Open did not create segment 0 of both kinds")
	}

	root, err := fs.inodes.Read(RootInode)
	if err != nil {
		t.Fatalf("reading root inode: %v", err)
	}
	if root.Type != inode.Directory || root.NumDirect != 0 {
		t.Fatalf("root inode = %+v, want empty directory", root)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(dir, Options{}); err != nil {
		t.Fatal(err)
	}
	fs, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}

	num, err := fs.inodes.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if num == RootInode {
		t.Fatal("reopening the filesystem re-allocated the root inode")
	}
}
