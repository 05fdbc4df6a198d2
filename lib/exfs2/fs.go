// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package exfs2 is the top-level facade: it owns the inode table, the
// data block store, and the allocation hint cache, and implements the
// path-resolution and tree-mutation operations (add, remove, extract,
// list, debug) on top of packages inode, block, directory, and filemap.
//
// Opening an FS is also where root-directory bootstrap happens, mirroring
// the reference implementation's separate init_fs step: rather than
// folding root initialization into segment creation or inode allocation
// (which would require package segment or package inode to know about
// directory records, an import cycle neither should carry), this package
// creates inode segment 0 and data segment 0 up front if they do not yet
// exist, then writes the empty root directory at inode 0.
package exfs2

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/nazmavali/exfs2/lib/allochint"
	"github.com/nazmavali/exfs2/lib/block"
	"github.com/nazmavali/exfs2/lib/directory"
	"github.com/nazmavali/exfs2/lib/filemap"
	"github.com/nazmavali/exfs2/lib/inode"
	"github.com/nazmavali/exfs2/lib/segment"
)

// RootInode is the fixed inode number of the root directory.
const RootInode int32 = 0

// FS is a handle to a filesystem rooted in a host directory containing
// (or about to contain) exfs2 segment files.
type FS struct {
	dir    string
	logger *slog.Logger
	inodes *inode.Table
	blocks *block.Store
	hints  *allochint.Cache
}

// Options configures Open.
type Options struct {
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// AllocationHints enables the advisory full-segment cache. Disabled,
	// every allocation scans bitmaps from segment 0.
	AllocationHints bool
}

// Open returns an FS rooted at dir, creating inode segment 0 and data
// segment 0 (and the empty root directory) if this is a fresh directory.
func Open(dir string, opts Options) (*FS, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var hints *allochint.Cache
	if opts.AllocationHints {
		hints = allochint.Load(dir, logger)
	}

	inodes := inode.NewTable(dir, logger, hints)
	blocks := block.NewStore(dir, logger, hints)

	fresh := !segment.Exists(dir, segment.KindInode, 0)
	if fresh {
		if err := bootstrap(dir, inodes, logger); err != nil {
			return nil, fmt.Errorf("initializing filesystem in %s: %w", dir, err)
		}
		logger.Info("initialized new filesystem", "directory", dir)
	}

	return &FS{dir: dir, logger: logger, inodes: inodes, blocks: blocks, hints: hints}, nil
}

func bootstrap(dir string, inodes *inode.Table, logger *slog.Logger) error {
	inodeSeg, err := segment.Create(dir, segment.KindInode, 0, logger)
	if err != nil {
		return fmt.Errorf("creating inode segment 0: %w", err)
	}
	if err := inodeSeg.Close(); err != nil {
		return err
	}

	dataSeg, err := segment.Create(dir, segment.KindData, 0, logger)
	if err != nil {
		return fmt.Errorf("creating data segment 0: %w", err)
	}
	if err := dataSeg.Close(); err != nil {
		return err
	}

	if err := inodes.ForceAllocate(RootInode); err != nil {
		return fmt.Errorf("reserving root inode: %w", err)
	}
	if err := inodes.Write(RootInode, inode.NewDirectory()); err != nil {
		return fmt.Errorf("writing root directory: %w", err)
	}
	return nil
}

// Close releases fs. Every mutation already persists as it happens (the
// allocation hint cache included), so there is nothing left to flush.
func (fs *FS) Close() error {
	return nil
}

// ReadInode, FindChild, ListDir, ReadFile, and IsDirectory form the
// narrow read-only surface the FUSE bridge drives, so package fuse never
// needs to import package inode or package directory directly.

// ReadInode decodes the inode record for the given global inode number.
func (fs *FS) ReadInode(num int32) (inode.Record, error) {
	return fs.inodes.Read(num)
}

// FindChild looks up name inside a directory record already in hand.
func (fs *FS) FindChild(dir inode.Record, name string) (int32, bool, error) {
	return directory.Find(fs.blocks, dir, name)
}

// ListDir returns every live entry of a directory record already in
// hand.
func (fs *FS) ListDir(dir inode.Record) ([]directory.Entry, error) {
	return directory.List(fs.blocks, dir)
}

// ReadFile writes the full content of a file record already in hand to
// w.
func (fs *FS) ReadFile(file inode.Record, w io.Writer) error {
	return filemap.WriteTo(fs.blocks, file, w)
}

// IsDirectory reports whether rec describes a directory.
func IsDirectory(rec inode.Record) bool {
	return rec.Type == inode.Directory
}

// resolveDir walks every element of components as a directory from the
// root (callers pass a path's parent prefix), returning the inode number
// and record the last element names (or root itself if components is
// empty).
func (fs *FS) resolveDir(components []string) (int32, inode.Record, error) {
	num := RootInode
	rec, err := fs.inodes.Read(num)
	if err != nil {
		return 0, inode.Record{}, err
	}

	for _, name := range components {
		if rec.Type != inode.Directory {
			return 0, inode.Record{}, fmt.Errorf("%w: %q", ErrNotDirectory, name)
		}
		child, found, err := directory.Find(fs.blocks, rec, name)
		if err != nil {
			return 0, inode.Record{}, err
		}
		if !found {
			return 0, inode.Record{}, fmt.Errorf("%w: %q", ErrNotExist, name)
		}
		num = child
		rec, err = fs.inodes.Read(num)
		if err != nil {
			return 0, inode.Record{}, err
		}
	}
	return num, rec, nil
}

// resolve walks the full path and returns the inode number and record of
// the final component.
func (fs *FS) resolve(path string) (int32, inode.Record, error) {
	components, err := Split(path)
	if err != nil {
		return 0, inode.Record{}, err
	}
	if len(components) == 0 {
		rec, err := fs.inodes.Read(RootInode)
		return RootInode, rec, err
	}

	parentComponents := components[:len(components)-1]
	_, parent, err := fs.resolveDir(parentComponents)
	if err != nil {
		return 0, inode.Record{}, err
	}
	if parent.Type != inode.Directory {
		parentName := "/"
		if len(parentComponents) > 0 {
			parentName = parentComponents[len(parentComponents)-1]
		}
		return 0, inode.Record{}, fmt.Errorf("%w: %q", ErrNotDirectory, parentName)
	}

	last := components[len(components)-1]
	childNum, found, err := directory.Find(fs.blocks, parent, last)
	if err != nil {
		return 0, inode.Record{}, err
	}
	if !found {
		return 0, inode.Record{}, fmt.Errorf("%w: %q", ErrNotExist, last)
	}
	rec, err := fs.inodes.Read(childNum)
	if err != nil {
		return 0, inode.Record{}, err
	}
	return childNum, rec, nil
}
