// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inode

import (
	"testing"

	"github.com/nazmavali/exfs2/lib/segment"
)

func TestRecordSizeIsOneBlock(t *testing.T) {
	if RecordSize != 4096 {
		t.Fatalf("RecordSize = %d, want 4096", RecordSize)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := NewFile()
	rec.Size = 12345
	rec.NumDirect = 3
	rec.Direct[0] = 10
	rec.Direct[1] = 11
	rec.Direct[2] = 12
	rec.Indirect = 99

	raw, err := rec.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != RecordSize {
		t.Fatalf("encoded length = %d, want %d", len(raw), RecordSize)
	}

	got, err := decodeRecord(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, rec)
	}
}

func TestNewDirectorySentinels(t *testing.T) {
	rec := NewDirectory()
	if rec.Type != Directory {
		t.Errorf("Type = %v, want Directory", rec.Type)
	}
	if rec.Indirect != NoBlock || rec.DoubleIndirect != NoBlock || rec.TripleIndirect != NoBlock {
		t.Errorf("new directory has non-sentinel indirect pointers: %+v", rec)
	}
	if rec.NumDirect != 0 {
		t.Errorf("NumDirect = %d, want 0", rec.NumDirect)
	}
}

func TestTableAllocateReadWriteFree(t *testing.T) {
	dir := t.TempDir()
	table := NewTable(dir, nil, nil)

	num, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	rec := NewFile()
	rec.Size = 42
	if err := table.Write(num, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := table.Read(num)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Size != 42 {
		t.Fatalf("Size = %d, want 42", got.Size)
	}

	if err := table.Free(num); err != nil {
		t.Fatalf("Free: %v", err)
	}

	// A freed inode number should be reused by the next allocation
	// (lowest-indexed free bit first).
	again, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate after free: %v", err)
	}
	if again != num {
		t.Fatalf("Allocate after free = %d, want reused %d", again, num)
	}
}

func TestTableAllocateSpansSegments(t *testing.T) {
	dir := t.TempDir()
	table := NewTable(dir, nil, nil)

	var last int32
	for i := 0; i < RecordsPerSegment+5; i++ {
		num, err := table.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		last = num
	}

	if last < int32(RecordsPerSegment) {
		t.Fatalf("expected allocation to spill into segment 1, last = %d", last)
	}
}

func TestForceAllocateRoot(t *testing.T) {
	dir := t.TempDir()

	seg, err := segment.Create(dir, segment.KindInode, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	seg.Close()

	table := NewTable(dir, nil, nil)
	if err := table.ForceAllocate(0); err != nil {
		t.Fatalf("ForceAllocate: %v", err)
	}

	root := NewDirectory()
	if err := table.Write(0, root); err != nil {
		t.Fatalf("Write root: %v", err)
	}

	// The next ordinary allocation must skip inode 0.
	num, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if num == 0 {
		t.Fatal("Allocate reused the force-allocated root inode")
	}
}
