// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package allochint

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGarbage(dir string) error {
	return os.WriteFile(filepath.Join(dir, fileName), []byte("not cbor"), 0o644)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c := Load(t.TempDir(), nil)
	if c.IsFull(Inode, 0) || c.IsFull(Data, 0) {
		t.Fatal("fresh cache reports a segment as full")
	}
}

func TestMarkAndReload(t *testing.T) {
	dir := t.TempDir()

	c := Load(dir, nil)
	c.MarkFull(Inode, 3)
	c.MarkFull(Data, 7)

	reloaded := Load(dir, nil)
	if !reloaded.IsFull(Inode, 3) {
		t.Error("Inode segment 3 not marked full after reload")
	}
	if !reloaded.IsFull(Data, 7) {
		t.Error("Data segment 7 not marked full after reload")
	}
	if reloaded.IsFull(Inode, 4) {
		t.Error("unrelated segment reported full")
	}
}

func TestClearFull(t *testing.T) {
	dir := t.TempDir()

	c := Load(dir, nil)
	c.MarkFull(Data, 1)
	c.ClearFull(Data, 1)

	reloaded := Load(dir, nil)
	if reloaded.IsFull(Data, 1) {
		t.Error("segment still reported full after ClearFull")
	}
}

func TestMalformedFileIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := writeGarbage(dir); err != nil {
		t.Fatal(err)
	}

	c := Load(dir, nil)
	if c.IsFull(Inode, 0) {
		t.Fatal("malformed cache should be treated as empty, not full")
	}
}
