// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory treats selected data blocks as arrays of directory
// entries and implements lookup, insertion, and per-entry clearing on
// top of the data block store and inode records.
package directory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nazmavali/exfs2/lib/block"
	"github.com/nazmavali/exfs2/lib/inode"
)

// NameSize is the fixed width, in bytes, of a directory entry's name
// field. Names are null-padded and always null-terminated.
const NameSize = 256

// entrySize is the on-disk size of one directory entry: the name field
// plus a 32-bit inode number.
const entrySize = NameSize + 4

// EntriesPerBlock is the number of directory entries that fit in one
// 4 KiB data block.
const EntriesPerBlock = block.Size / entrySize

// FreeEntry is the sentinel inode number stored in an unused directory
// slot.
const FreeEntry int32 = -1

// ErrFull means a directory has exhausted its direct-block fan-out
// (inode.DirectCount slots) and cannot accept another entry.
var ErrFull = errors.New("directory has no room for another entry")

// Entry is one (name, inode number) pair.
type Entry struct {
	Name     string
	InodeNum int32
}

func encodeEntries(entries [EntriesPerBlock]Entry) []byte {
	buf := make([]byte, block.Size)
	for i, e := range entries {
		off := i * entrySize
		nameBytes := []byte(e.Name)
		if len(nameBytes) > NameSize-1 {
			nameBytes = nameBytes[:NameSize-1]
		}
		copy(buf[off:off+NameSize], nameBytes)
		// The rest of the name field is already zero from make(), which
		// is exactly "null-padded, always null-terminated".
		binary.LittleEndian.PutUint32(buf[off+NameSize:off+entrySize], uint32(e.InodeNum))
	}
	return buf
}

func decodeEntries(buf []byte) ([EntriesPerBlock]Entry, error) {
	var entries [EntriesPerBlock]Entry
	if len(buf) != block.Size {
		return entries, fmt.Errorf("directory block buffer is %d bytes, want %d", len(buf), block.Size)
	}
	for i := range entries {
		off := i * entrySize
		nameField := buf[off : off+NameSize]
		nul := bytes.IndexByte(nameField, 0)
		if nul < 0 {
			nul = len(nameField)
		}
		entries[i] = Entry{
			Name:     string(nameField[:nul]),
			InodeNum: int32(binary.LittleEndian.Uint32(buf[off+NameSize : off+entrySize])),
		}
	}
	return entries, nil
}

// Load reads the full directory entry array stored in blockID.
func Load(blocks *block.Store, blockID int32) ([EntriesPerBlock]Entry, error) {
	raw, err := blocks.Read(blockID)
	if err != nil {
		var zero [EntriesPerBlock]Entry
		return zero, fmt.Errorf("loading directory block %d: %w", blockID, err)
	}
	return decodeEntries(raw)
}

// Save writes the full directory entry array back to blockID.
func Save(blocks *block.Store, blockID int32, entries [EntriesPerBlock]Entry) error {
	if err := blocks.Write(blockID, encodeEntries(entries)); err != nil {
		return fmt.Errorf("saving directory block %d: %w", blockID, err)
	}
	return nil
}

func newEmptyEntries() [EntriesPerBlock]Entry {
	var entries [EntriesPerBlock]Entry
	for i := range entries {
		entries[i].InodeNum = FreeEntry
	}
	return entries
}

// Find returns the inode number of the live entry named name inside dir,
// or (0, false) if no such entry exists or dir is not a directory.
func Find(blocks *block.Store, dir inode.Record, name string) (int32, bool, error) {
	if dir.Type != inode.Directory {
		return 0, false, nil
	}

	for i := uint32(0); i < dir.NumDirect; i++ {
		entries, err := Load(blocks, dir.Direct[i])
		if err != nil {
			return 0, false, err
		}
		for _, e := range entries {
			if e.InodeNum != FreeEntry && e.Name == name {
				return e.InodeNum, true, nil
			}
		}
	}
	return 0, false, nil
}

// List returns every live entry across all of dir's direct blocks, in
// on-disk order. Used by the tree walker, the debug report, and the
// read-only FUSE bridge.
func List(blocks *block.Store, dir inode.Record) ([]Entry, error) {
	if dir.Type != inode.Directory {
		return nil, fmt.Errorf("inode is not a directory")
	}

	var out []Entry
	for i := uint32(0); i < dir.NumDirect; i++ {
		entries, err := Load(blocks, dir.Direct[i])
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.InodeNum != FreeEntry {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// Add inserts (name -> childNum) into dir, growing it with a new data
// block if every existing block is full. dirNum is dir's own inode
// number, needed to persist the (possibly grown) directory record.
// table.Write is called only when a new block is appended (NumDirect
// changes); an insertion into an existing block's free slot does not
// need to touch the inode record.
//
// Add returns an error if name already exists, dir is not a directory,
// or the direct-block fan-out (inode.DirectCount) is exhausted.
func Add(blocks *block.Store, table *inode.Table, dirNum int32, dir *inode.Record, name string, childNum int32) error {
	if dir.Type != inode.Directory {
		return fmt.Errorf("inode %d is not a directory", dirNum)
	}

	if _, found, err := Find(blocks, *dir, name); err != nil {
		return err
	} else if found {
		return fmt.Errorf("entry %q already exists", name)
	}

	for i := uint32(0); i < dir.NumDirect; i++ {
		blockID := dir.Direct[i]
		entries, err := Load(blocks, blockID)
		if err != nil {
			return err
		}
		for j := range entries {
			if entries[j].InodeNum == FreeEntry {
				entries[j] = Entry{Name: name, InodeNum: childNum}
				return Save(blocks, blockID, entries)
			}
		}
	}

	if dir.NumDirect >= inode.DirectCount {
		return fmt.Errorf("%w: directory %d (direct block fan-out exhausted)", ErrFull, dirNum)
	}

	newBlockID, err := blocks.Allocate()
	if err != nil {
		return fmt.Errorf("allocating directory block: %w", err)
	}

	entries := newEmptyEntries()
	entries[0] = Entry{Name: name, InodeNum: childNum}
	if err := Save(blocks, newBlockID, entries); err != nil {
		blocks.Free(newBlockID)
		return err
	}

	dir.Direct[dir.NumDirect] = newBlockID
	dir.NumDirect++
	dir.Size += block.Size

	if err := table.Write(dirNum, *dir); err != nil {
		return fmt.Errorf("persisting directory %d: %w", dirNum, err)
	}
	return nil
}

// ClearEntry scans dir's direct blocks for the first live entry whose
// inode number equals targetNum, clears it (name zeroed, inode number
// set to FreeEntry), and persists that one block. It reports whether an
// entry was found and cleared.
func ClearEntry(blocks *block.Store, dir inode.Record, targetNum int32) (bool, error) {
	for i := uint32(0); i < dir.NumDirect; i++ {
		blockID := dir.Direct[i]
		entries, err := Load(blocks, blockID)
		if err != nil {
			return false, err
		}
		for j := range entries {
			if entries[j].InodeNum == targetNum {
				entries[j] = Entry{InodeNum: FreeEntry}
				if err := Save(blocks, blockID, entries); err != nil {
					return false, err
				}
				return true, nil
			}
		}
	}
	return false, nil
}
