// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package inode implements the fixed-size inode record and the inode
// table built on top of the segment substrate: allocation, read, write,
// and free of inode records across an open-ended sequence of inode
// segments.
package inode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/nazmavali/exfs2/lib/allochint"
	"github.com/nazmavali/exfs2/lib/bitmap"
	"github.com/nazmavali/exfs2/lib/segment"
)

// Type identifies what an inode record describes.
type Type uint32

const (
	// Free marks an inode record that carries no live data. The
	// bitmap, not this field, is the source of truth for liveness —
	// Free only appears on records nobody has written since the
	// segment was zero-filled.
	Free Type = 0
	// File marks a regular file inode.
	File Type = 1
	// Directory marks a directory inode.
	Directory Type = 2
)

// DirectCount is the number of direct block slots carried inline in
// every inode record. Chosen so that sizeof(Record) is exactly one 4 KiB
// block (RecordSize below) — the same block size used for data and
// indirect blocks.
const DirectCount = 1017

// RecordSize is the fixed, on-disk size of one inode record in bytes.
// It must stay in sync with the Record layout below: 4 (type) + 8
// (size) + 4 (numDirect) + 1017*4 (direct ids) + 4*3 (indirect ids).
const RecordSize = 4 + 8 + 4 + DirectCount*4 + 4*3

// RecordsPerSegment is the number of inode records that fit after a
// segment's leading bitmap block.
const RecordsPerSegment = int((segment.Size - segment.BitmapSize) / RecordSize)

// NoBlock is the sentinel stored in an inode's indirect pointer fields
// when that indirection level is unused.
const NoBlock int32 = -1

// Record is the fixed-layout, in-memory form of one inode. Direct []
// entries at index >= NumDirect are unspecified and must never be
// dereferenced (per the block-map invariants); this package always
// leaves them zeroed for readability but nothing relies on that.
type Record struct {
	Type           Type
	Size           uint64
	NumDirect      uint32
	Direct         [DirectCount]int32
	Indirect       int32
	DoubleIndirect int32
	TripleIndirect int32
}

// NewFile returns a zeroed file record with no blocks allocated yet.
func NewFile() Record {
	return Record{Type: File, Indirect: NoBlock, DoubleIndirect: NoBlock, TripleIndirect: NoBlock}
}

// NewDirectory returns a zeroed, empty directory record.
func NewDirectory() Record {
	return Record{Type: Directory, Indirect: NoBlock, DoubleIndirect: NoBlock, TripleIndirect: NoBlock}
}

func (r *Record) encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(RecordSize)
	fields := []any{r.Type, r.Size, r.NumDirect, r.Direct, r.Indirect, r.DoubleIndirect, r.TripleIndirect}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("encoding inode record: %w", err)
		}
	}
	if buf.Len() != RecordSize {
		return nil, fmt.Errorf("encoded inode record is %d bytes, want %d", buf.Len(), RecordSize)
	}
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte) (Record, error) {
	if len(raw) != RecordSize {
		return Record{}, fmt.Errorf("inode record buffer is %d bytes, want %d", len(raw), RecordSize)
	}
	r := new(Record)
	reader := bytes.NewReader(raw)
	fields := []any{&r.Type, &r.Size, &r.NumDirect, &r.Direct, &r.Indirect, &r.DoubleIndirect, &r.TripleIndirect}
	for _, f := range fields {
		if err := binary.Read(reader, binary.LittleEndian, f); err != nil {
			return Record{}, fmt.Errorf("decoding inode record: %w", err)
		}
	}
	return *r, nil
}

// Table manages inode allocation and access across an unbounded sequence
// of inode segments, creating new segments on demand.
type Table struct {
	dir    string
	logger *slog.Logger
	hints  *allochint.Cache
}

// NewTable returns a Table rooted at dir. hints may be nil, in which
// case every allocation scans segment bitmaps from index 0.
func NewTable(dir string, logger *slog.Logger, hints *allochint.Cache) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{dir: dir, logger: logger, hints: hints}
}

func (t *Table) openOrCreate(index int) (*segment.Segment, error) {
	if !segment.Exists(t.dir, segment.KindInode, index) {
		seg, err := segment.Create(t.dir, segment.KindInode, index, t.logger)
		if err != nil {
			return nil, err
		}
		return seg, nil
	}
	return segment.Open(t.dir, segment.KindInode, index)
}

func offsetOf(slot int) int64 {
	return segment.BitmapSize + int64(slot)*RecordSize
}

// Allocate finds the lowest-numbered free inode, marks it allocated, and
// returns its global inode number. It never fails to find a slot: when
// every existing inode segment is full, a new one is created and the
// scan continues there.
func (t *Table) Allocate() (int32, error) {
	for segIndex := 0; ; segIndex++ {
		if t.hints != nil && t.hints.IsFull(allochint.Inode, segIndex) {
			continue
		}

		seg, err := t.openOrCreate(segIndex)
		if err != nil {
			return 0, fmt.Errorf("opening inode segment %d: %w", segIndex, err)
		}

		bm, err := seg.ReadBitmap()
		if err != nil {
			seg.Close()
			return 0, fmt.Errorf("reading bitmap for inode segment %d: %w", segIndex, err)
		}

		free := bitmap.FindFree(bm, RecordsPerSegment)
		if free < 0 {
			seg.Close()
			if t.hints != nil {
				t.hints.MarkFull(allochint.Inode, segIndex)
			}
			continue
		}

		bitmap.Set(bm, free)
		writeErr := seg.WriteBitmap(bm)
		closeErr := seg.Close()
		if writeErr != nil {
			return 0, fmt.Errorf("persisting bitmap for inode segment %d: %w", segIndex, writeErr)
		}
		if closeErr != nil {
			return 0, fmt.Errorf("closing inode segment %d: %w", segIndex, closeErr)
		}

		num := int32(segIndex*RecordsPerSegment + free)
		t.logger.Debug("inode allocated", "inode", num, "segment", segIndex, "slot", free)
		return num, nil
	}
}

// ForceAllocate marks inode number num as allocated without consulting
// find-free. It exists solely to bootstrap inode 0 (the root directory)
// at filesystem initialization time, mirroring the fixed-slot root
// setup that happens when inode segment 0 is first created.
func (t *Table) ForceAllocate(num int32) error {
	segIndex, slot := t.locate(num)

	seg, err := segment.Open(t.dir, segment.KindInode, segIndex)
	if err != nil {
		return fmt.Errorf("opening inode segment %d: %w", segIndex, err)
	}
	defer seg.Close()

	bm, err := seg.ReadBitmap()
	if err != nil {
		return fmt.Errorf("reading bitmap for inode segment %d: %w", segIndex, err)
	}
	bitmap.Set(bm, slot)
	if err := seg.WriteBitmap(bm); err != nil {
		return fmt.Errorf("persisting bitmap for inode segment %d: %w", segIndex, err)
	}
	return nil
}

func (t *Table) locate(num int32) (segIndex, slot int) {
	return int(num) / RecordsPerSegment, int(num) % RecordsPerSegment
}

// Read decodes the inode record for the given global inode number.
func (t *Table) Read(num int32) (Record, error) {
	segIndex, slot := t.locate(num)

	seg, err := segment.Open(t.dir, segment.KindInode, segIndex)
	if err != nil {
		return Record{}, fmt.Errorf("opening inode segment %d: %w", segIndex, err)
	}
	defer seg.Close()

	buf := make([]byte, RecordSize)
	if err := seg.ReadAt(buf, offsetOf(slot)); err != nil {
		return Record{}, fmt.Errorf("reading inode %d: %w", num, err)
	}
	return decodeRecord(buf)
}

// Write persists rec as the record for global inode number num.
func (t *Table) Write(num int32, rec Record) error {
	segIndex, slot := t.locate(num)

	seg, err := segment.Open(t.dir, segment.KindInode, segIndex)
	if err != nil {
		return fmt.Errorf("opening inode segment %d: %w", segIndex, err)
	}
	defer seg.Close()

	buf, err := rec.encode()
	if err != nil {
		return err
	}
	if err := seg.WriteAt(buf, offsetOf(slot)); err != nil {
		return fmt.Errorf("writing inode %d: %w", num, err)
	}
	return nil
}

// Free clears the bitmap bit for inode number num. The record's bytes
// are left untouched; the bitmap alone determines liveness.
func (t *Table) Free(num int32) error {
	segIndex, slot := t.locate(num)

	seg, err := segment.Open(t.dir, segment.KindInode, segIndex)
	if err != nil {
		return fmt.Errorf("opening inode segment %d: %w", segIndex, err)
	}
	defer seg.Close()

	bm, err := seg.ReadBitmap()
	if err != nil {
		return fmt.Errorf("reading bitmap for inode segment %d: %w", segIndex, err)
	}
	bitmap.Clear(bm, slot)
	if err := seg.WriteBitmap(bm); err != nil {
		return fmt.Errorf("persisting bitmap for inode segment %d: %w", segIndex, err)
	}

	if t.hints != nil {
		t.hints.ClearFull(allochint.Inode, segIndex)
	}

	t.logger.Debug("inode freed", "inode", num)
	return nil
}
