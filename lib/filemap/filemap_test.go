// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filemap

import (
	"bytes"
	"testing"

	"github.com/nazmavali/exfs2/lib/block"
	"github.com/nazmavali/exfs2/lib/inode"
)

func TestRoundTripSmallFile(t *testing.T) {
	blocks := block.NewStore(t.TempDir(), nil, nil)
	rec := inode.NewFile()

	content := bytes.Repeat([]byte("x"), 10)
	b := NewBuilder(blocks, &rec)
	n, err := b.WriteStream(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if n != uint64(len(content)) {
		t.Fatalf("WriteStream returned %d, want %d", n, len(content))
	}
	if rec.Size != uint64(len(content)) {
		t.Fatalf("rec.Size = %d, want %d", rec.Size, len(content))
	}
	if rec.NumDirect != 1 {
		t.Fatalf("rec.NumDirect = %d, want 1", rec.NumDirect)
	}

	var out bytes.Buffer
	if err := WriteTo(blocks, rec, &out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatalf("round trip mismatch: got %q, want %q", out.Bytes(), content)
	}
}

func TestZeroByteFile(t *testing.T) {
	blocks := block.NewStore(t.TempDir(), nil, nil)
	rec := inode.NewFile()

	b := NewBuilder(blocks, &rec)
	if _, err := b.WriteStream(bytes.NewReader(nil)); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if rec.Size != 0 || rec.NumDirect != 0 {
		t.Fatalf("expected an empty record, got Size=%d NumDirect=%d", rec.Size, rec.NumDirect)
	}

	var out bytes.Buffer
	if err := WriteTo(blocks, rec, &out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %d bytes", out.Len())
	}
}

func TestCrossesIntoSingleIndirect(t *testing.T) {
	blocks := block.NewStore(t.TempDir(), nil, nil)
	rec := inode.NewFile()

	// D direct blocks fill the inline slots; two more spill into the
	// single-indirect block.
	blockCount := int(D) + 2
	content := make([]byte, blockCount*block.Size)
	for i := range content {
		content[i] = byte(i)
	}

	b := NewBuilder(blocks, &rec)
	if _, err := b.WriteStream(bytes.NewReader(content)); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if int64(rec.NumDirect) != D {
		t.Fatalf("rec.NumDirect = %d, want %d", rec.NumDirect, D)
	}
	if rec.Indirect == inode.NoBlock {
		t.Fatal("expected a single-indirect block to have been allocated")
	}

	var out bytes.Buffer
	if err := WriteTo(blocks, rec, &out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatal("round trip across the direct/indirect boundary did not match")
	}

	stat, err := StatOf(blocks, rec)
	if err != nil {
		t.Fatalf("StatOf: %v", err)
	}
	if stat.Direct.Count != int(D) {
		t.Fatalf("stat.Direct.Count = %d, want %d", stat.Direct.Count, D)
	}
	if stat.Indirect.Count != 2 {
		t.Fatalf("stat.Indirect.Count = %d, want 2", stat.Indirect.Count)
	}
}

func TestCrossesIntoDoubleIndirect(t *testing.T) {
	blocks := block.NewStore(t.TempDir(), nil, nil)
	rec := inode.NewFile()

	// D direct blocks and P single-indirect blocks fill singleEnd; five
	// more spill into the double-indirect level-1 block.
	blockCount := int(D + P + 5)
	content := make([]byte, blockCount*block.Size)
	for i := range content {
		content[i] = byte(i)
	}

	b := NewBuilder(blocks, &rec)
	if _, err := b.WriteStream(bytes.NewReader(content)); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if int64(rec.NumDirect) != D {
		t.Fatalf("rec.NumDirect = %d, want %d", rec.NumDirect, D)
	}
	if rec.Indirect == inode.NoBlock {
		t.Fatal("expected a single-indirect block to have been allocated")
	}
	if rec.DoubleIndirect == inode.NoBlock {
		t.Fatal("expected a double-indirect block to have been allocated")
	}

	var out bytes.Buffer
	if err := WriteTo(blocks, rec, &out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatal("round trip across the single/double-indirect boundary did not match")
	}

	stat, err := StatOf(blocks, rec)
	if err != nil {
		t.Fatalf("StatOf: %v", err)
	}
	if stat.Direct.Count != int(D) {
		t.Fatalf("stat.Direct.Count = %d, want %d", stat.Direct.Count, D)
	}
	if int64(stat.Indirect.Count) != P {
		t.Fatalf("stat.Indirect.Count = %d, want %d", stat.Indirect.Count, P)
	}
	if stat.Double.Count != 5 {
		t.Fatalf("stat.Double.Count = %d, want 5", stat.Double.Count)
	}
}

func TestFreeReclaimsDoubleIndirectBlocks(t *testing.T) {
	blocks := block.NewStore(t.TempDir(), nil, nil)
	rec := inode.NewFile()

	blockCount := int(D + P + 5)
	content := make([]byte, blockCount*block.Size)

	b := NewBuilder(blocks, &rec)
	if _, err := b.WriteStream(bytes.NewReader(content)); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	indirectBlock := rec.Indirect
	doubleTopBlock := rec.DoubleIndirect

	if err := Free(blocks, rec); err != nil {
		t.Fatalf("Free: %v", err)
	}

	// Every structural and data block reachable from rec — direct,
	// single-indirect, and both levels of double-indirect — must be
	// reclaimed. The first allocation after Free lands at or below the
	// lowest freed structural block, and first-fit allocation keeps
	// handing back freed ids until every one of them is in use again.
	lowest := indirectBlock
	if doubleTopBlock < lowest {
		lowest = doubleTopBlock
	}
	reused, err := blocks.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	if reused > lowest {
		t.Fatalf("expected reclaimed low block id to be reused, got %d (lowest freed structural block was %d)", reused, lowest)
	}

	// The file used blockCount data blocks plus three structural blocks
	// (single-indirect, double-indirect top, one level-1 block), ids
	// 0..used-1 of a fresh store. An unreclaimed block would force a
	// fresh id >= used before all of them are handed out again.
	used := int32(blockCount + 3)
	for i := int32(1); i < used; i++ {
		id, err := blocks.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d after Free: %v", i, err)
		}
		if id >= used {
			t.Fatalf("Allocate #%d after Free = %d, want a reclaimed id below %d (double-indirect top was %d)", i, id, used, doubleTopBlock)
		}
	}
}

func TestFreeReclaimsIndirectBlocks(t *testing.T) {
	blocks := block.NewStore(t.TempDir(), nil, nil)
	rec := inode.NewFile()

	blockCount := int(D) + 2
	content := make([]byte, blockCount*block.Size)

	b := NewBuilder(blocks, &rec)
	if _, err := b.WriteStream(bytes.NewReader(content)); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	indirectBlock := rec.Indirect

	if err := Free(blocks, rec); err != nil {
		t.Fatalf("Free: %v", err)
	}

	// A freed block id is available for reuse; allocating again hands
	// back a reclaimed id at or below the freed indirect block (the
	// lowest free slot is the first direct block).
	reused, err := blocks.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	if reused > indirectBlock {
		t.Fatalf("expected reclaimed low block id to be reused, got %d (freed indirect was %d)", reused, indirectBlock)
	}

	// The file used blockCount data blocks plus the single-indirect
	// block, ids 0..used-1 of a fresh store. If the indirect block were
	// not reclaimed, a fresh id >= used would be needed before all of
	// them are handed out again.
	used := int32(blockCount + 1)
	for i := int32(1); i < used; i++ {
		id, err := blocks.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d after Free: %v", i, err)
		}
		if id >= used {
			t.Fatalf("Allocate #%d after Free = %d, want a reclaimed id below %d (freed indirect was %d)", i, id, used, indirectBlock)
		}
	}
}
