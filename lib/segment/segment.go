// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

// Package segment implements the fixed-size container files ("segments")
// that back the whole filesystem. Every inode and every data block lives
// inside one of these files; nothing else touches the host filesystem
// once a segment has been created.
//
// A segment is exactly 1 MiB. Its first 4 KiB is a bitmap block; the
// remainder holds fixed-stride records, addressed purely by arithmetic
// (segment index, slot index) -> byte offset. Segments are created once,
// zero-filled, and never deleted or shrunk.
//
// Reads go through a read-only memory map for zero-syscall access; writes
// use pwrite so they land in the shared mapping without remapping. This
// mirrors the read/write split used by the cache device that backs the
// artifact store this module's segment substrate is adapted from.
package segment

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// Size is the fixed size of every segment file, in bytes (1 MiB).
const Size int64 = 1 << 20

// BitmapSize is the size of the leading bitmap block, in bytes.
const BitmapSize = 4096

// Kind distinguishes inode segments from data segments. The two spaces
// never share a segment or an address: inode number N and block id N
// name unrelated locations.
type Kind int

const (
	// KindInode holds fixed-size inode records.
	KindInode Kind = iota
	// KindData holds fixed-size 4 KiB data blocks.
	KindData
)

func (k Kind) prefix() string {
	switch k {
	case KindInode:
		return "inode_seg_"
	case KindData:
		return "data_seg_"
	default:
		panic(fmt.Sprintf("segment: unknown kind %d", int(k)))
	}
}

// String returns the human-readable kind name, used in log fields and
// error messages.
func (k Kind) String() string {
	switch k {
	case KindInode:
		return "inode"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FileName returns the on-disk file name for the given kind and index,
// e.g. "inode_seg_0" or "data_seg_3".
func FileName(kind Kind, index int) string {
	return fmt.Sprintf("%s%d", kind.prefix(), index)
}

// Segment is an open handle onto one 1 MiB container file. It is not
// safe for concurrent use — the filesystem this package backs is
// explicitly single-threaded.
type Segment struct {
	file  *os.File
	data  []byte // mmap'd MAP_SHARED, PROT_READ
	Kind  Kind
	Index int
}

// Exists reports whether the segment file for (kind, index) is already
// present in dir, without opening it.
func Exists(dir string, kind Kind, index int) bool {
	_, err := os.Stat(path(dir, kind, index))
	return err == nil
}

func path(dir string, kind Kind, index int) string {
	if dir == "" {
		dir = "."
	}
	return dir + string(os.PathSeparator) + FileName(kind, index)
}

// Create creates a new segment file, zero-fills it to exactly Size
// bytes, flushes it, and opens a handle onto it. It fails if the file
// already exists — callers that want open-or-create semantics should
// check Exists first (the inode table and data block store do exactly
// that). Create itself writes nothing but zeros; the root directory in
// inode segment 0 is set up by package exfs2 when it opens a fresh
// filesystem.
func Create(dir string, kind Kind, index int, logger *slog.Logger) (*Segment, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := path(dir, kind, index)

	file, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating segment %s: %w", p, err)
	}

	if err := zeroFill(file); err != nil {
		file.Close()
		os.Remove(p)
		return nil, fmt.Errorf("zero-filling segment %s: %w", p, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(p)
		return nil, fmt.Errorf("flushing new segment %s: %w", p, err)
	}

	seg, err := mapOpenFile(file, kind, index)
	if err != nil {
		os.Remove(p)
		return nil, err
	}

	logger.Debug("segment created", "kind", kind, "index", index, "path", p)
	return seg, nil
}

// zeroFill writes Size zero bytes to file in fixed-size chunks, the way
// the reference implementation's segment initializer writes in 8 KiB
// chunks rather than allocating a 1 MiB buffer up front.
func zeroFill(file *os.File) error {
	const chunkSize = 8192
	var chunk [chunkSize]byte

	var written int64
	for written < Size {
		remaining := Size - written
		toWrite := chunk[:]
		if remaining < chunkSize {
			toWrite = chunk[:remaining]
		}
		n, err := file.Write(toWrite)
		if err != nil {
			return err
		}
		written += int64(n)
	}
	return nil
}

// Open opens an existing segment file. It fails if the file does not
// exist or is not exactly Size bytes (a foreign or truncated file).
func Open(dir string, kind Kind, index int) (*Segment, error) {
	p := path(dir, kind, index)

	file, err := os.OpenFile(p, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening segment %s: %w", p, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stating segment %s: %w", p, err)
	}
	if info.Size() != Size {
		file.Close()
		return nil, fmt.Errorf("segment %s is %d bytes, expected %d", p, info.Size(), Size)
	}

	return mapOpenFile(file, kind, index)
}

func mapOpenFile(file *os.File, kind Kind, index int) (*Segment, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, int(Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("memory-mapping segment: %w", err)
	}

	return &Segment{
		file:  file,
		data:  data,
		Kind:  kind,
		Index: index,
	}, nil
}

// ReadAt copies len(p) bytes from the segment starting at byte offset
// off into p. It fails unless the full transfer succeeds — segment
// contents are always read as whole records or whole blocks.
func (s *Segment) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > Size {
		return fmt.Errorf("read at offset %d length %d exceeds segment size %d", off, len(p), Size)
	}

	// Guard against SIGBUS from a truncated or I/O-failing backing
	// file surfacing as a page fault instead of a Go error.
	old := debug.SetPanicOnFault(true)
	var faultErr error
	func() {
		defer func() {
			debug.SetPanicOnFault(old)
			if r := recover(); r != nil {
				faultErr = fmt.Errorf("page fault reading segment at offset %d: %v", off, r)
			}
		}()
		copy(p, s.data[off:off+int64(len(p))])
	}()
	return faultErr
}

// WriteAt writes all of p to the segment at byte offset off, using
// pwrite so the change is visible through the shared read mapping
// without remapping.
func (s *Segment) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > Size {
		return fmt.Errorf("write at offset %d length %d exceeds segment size %d", off, len(p), Size)
	}

	remaining := p
	woff := off
	for len(remaining) > 0 {
		n, err := unix.Pwrite(int(s.file.Fd()), remaining, woff)
		if err != nil {
			return fmt.Errorf("pwrite at offset %d: %w", woff, err)
		}
		remaining = remaining[n:]
		woff += int64(n)
	}
	return nil
}

// ReadBitmap reads the segment's leading bitmap block.
func (s *Segment) ReadBitmap() ([]byte, error) {
	buf := make([]byte, BitmapSize)
	if err := s.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("reading bitmap: %w", err)
	}
	return buf, nil
}

// WriteBitmap writes buf (which must be exactly BitmapSize bytes) as the
// segment's leading bitmap block.
func (s *Segment) WriteBitmap(buf []byte) error {
	if len(buf) != BitmapSize {
		return fmt.Errorf("bitmap must be %d bytes, got %d", BitmapSize, len(buf))
	}
	if err := s.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("writing bitmap: %w", err)
	}
	return nil
}

// Close unmaps the segment and closes its file descriptor.
func (s *Segment) Close() error {
	var firstErr error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			firstErr = fmt.Errorf("unmapping segment: %w", err)
		}
		s.data = nil
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing segment file: %w", err)
	}
	return firstErr
}
