// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package block implements the data block store: allocation, read,
// write, and free of fixed 4 KiB blocks across an open-ended sequence of
// data segments. It is the data-space mirror of package inode.
package block

import (
	"fmt"
	"log/slog"

	"github.com/nazmavali/exfs2/lib/allochint"
	"github.com/nazmavali/exfs2/lib/bitmap"
	"github.com/nazmavali/exfs2/lib/segment"
)

// Size is the fixed size of one data block in bytes.
const Size = 4096

// PerSegment is the number of data blocks that fit after a segment's
// leading bitmap block.
const PerSegment = int((segment.Size - segment.BitmapSize) / Size)

// Store manages data block allocation and access across an unbounded
// sequence of data segments, creating new segments on demand.
type Store struct {
	dir    string
	logger *slog.Logger
	hints  *allochint.Cache
}

// NewStore returns a Store rooted at dir. hints may be nil.
func NewStore(dir string, logger *slog.Logger, hints *allochint.Cache) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger, hints: hints}
}

func (s *Store) openOrCreate(index int) (*segment.Segment, error) {
	if !segment.Exists(s.dir, segment.KindData, index) {
		return segment.Create(s.dir, segment.KindData, index, s.logger)
	}
	return segment.Open(s.dir, segment.KindData, index)
}

func (s *Store) locate(id int32) (segIndex, slot int) {
	return int(id) / PerSegment, int(id) % PerSegment
}

func offsetOf(slot int) int64 {
	return segment.BitmapSize + int64(slot)*Size
}

// Allocate finds the lowest-numbered free block, marks it allocated, and
// returns its global block id. Like inode.Table.Allocate, it never fails
// to find a slot — new data segments are created on demand.
func (s *Store) Allocate() (int32, error) {
	for segIndex := 0; ; segIndex++ {
		if s.hints != nil && s.hints.IsFull(allochint.Data, segIndex) {
			continue
		}

		seg, err := s.openOrCreate(segIndex)
		if err != nil {
			return 0, fmt.Errorf("opening data segment %d: %w", segIndex, err)
		}

		bm, err := seg.ReadBitmap()
		if err != nil {
			seg.Close()
			return 0, fmt.Errorf("reading bitmap for data segment %d: %w", segIndex, err)
		}

		free := bitmap.FindFree(bm, PerSegment)
		if free < 0 {
			seg.Close()
			if s.hints != nil {
				s.hints.MarkFull(allochint.Data, segIndex)
			}
			continue
		}

		bitmap.Set(bm, free)
		writeErr := seg.WriteBitmap(bm)
		closeErr := seg.Close()
		if writeErr != nil {
			return 0, fmt.Errorf("persisting bitmap for data segment %d: %w", segIndex, writeErr)
		}
		if closeErr != nil {
			return 0, fmt.Errorf("closing data segment %d: %w", segIndex, closeErr)
		}

		id := int32(segIndex*PerSegment + free)
		s.logger.Debug("data block allocated", "block", id, "segment", segIndex, "slot", free)
		return id, nil
	}
}

// Read copies the full contents of block id into a fresh Size-byte
// slice.
func (s *Store) Read(id int32) ([]byte, error) {
	segIndex, slot := s.locate(id)

	seg, err := segment.Open(s.dir, segment.KindData, segIndex)
	if err != nil {
		return nil, fmt.Errorf("opening data segment %d: %w", segIndex, err)
	}
	defer seg.Close()

	buf := make([]byte, Size)
	if err := seg.ReadAt(buf, offsetOf(slot)); err != nil {
		return nil, fmt.Errorf("reading block %d: %w", id, err)
	}
	return buf, nil
}

// Write persists data as the full contents of block id. data must be
// exactly Size bytes; callers are responsible for zero-padding a short
// final block before calling Write.
func (s *Store) Write(id int32, data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("block %d: data is %d bytes, want %d", id, len(data), Size)
	}

	segIndex, slot := s.locate(id)

	seg, err := segment.Open(s.dir, segment.KindData, segIndex)
	if err != nil {
		return fmt.Errorf("opening data segment %d: %w", segIndex, err)
	}
	defer seg.Close()

	if err := seg.WriteAt(data, offsetOf(slot)); err != nil {
		return fmt.Errorf("writing block %d: %w", id, err)
	}
	return nil
}

// Free clears the bitmap bit for block id. Block contents are left
// untouched; the bitmap alone determines liveness.
func (s *Store) Free(id int32) error {
	segIndex, slot := s.locate(id)

	seg, err := segment.Open(s.dir, segment.KindData, segIndex)
	if err != nil {
		return fmt.Errorf("opening data segment %d: %w", segIndex, err)
	}
	defer seg.Close()

	bm, err := seg.ReadBitmap()
	if err != nil {
		return fmt.Errorf("reading bitmap for data segment %d: %w", segIndex, err)
	}
	bitmap.Clear(bm, slot)
	if err := seg.WriteBitmap(bm); err != nil {
		return fmt.Errorf("persisting bitmap for data segment %d: %w", segIndex, err)
	}

	if s.hints != nil {
		s.hints.ClearFull(allochint.Data, segIndex)
	}

	s.logger.Debug("data block freed", "block", id)
	return nil
}
