// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package allochint implements a strictly advisory allocation hint
// cache: a small on-disk record of which segments the process has
// already observed to be completely full, so the inode and data block
// allocators can skip re-scanning their bitmaps on every call.
//
// The cache is never a source of truth. It only ever causes a segment to
// be skipped after that segment's own bitmap has been scanned and found
// to have no free bit; a missing or corrupt cache file only costs extra
// bitmap scans. A stale "full" entry (a segment freed while the cache was
// not in use) makes the allocators skip that segment without scanning
// it, so its free slots are not reused; no slot whose bit is set is ever
// handed out.
package allochint

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Space distinguishes the inode address space from the data block
// address space; each has its own set of known-full segments.
type Space int

const (
	// Inode identifies the inode segment space.
	Inode Space = iota
	// Data identifies the data segment space.
	Data
)

// fileName is the sidecar file name, hidden by convention alongside the
// segment files it describes.
const fileName = ".exfs2-allochints.cbor"

// formatVersion guards against loading a document from an incompatible
// future revision of this cache's own format. It has nothing to do with
// the segment format itself.
const formatVersion = 1

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2), the
// same configuration lib/codec's reference CBOR wrapper builds, so two
// runs that observe the same full segments always write byte-identical
// sidecar files.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("allochint: CBOR encoder initialization failed: " + err.Error())
	}
}

type document struct {
	Version   int   `cbor:"version"`
	FullInode []int `cbor:"full_inode_segments"`
	FullData  []int `cbor:"full_data_segments"`
}

// Cache holds the in-memory hint sets for one filesystem directory. It
// is not safe for concurrent use, matching the single-threaded model of
// the filesystem it accelerates.
type Cache struct {
	dir    string
	logger *slog.Logger
	full   [2]map[int]bool
	dirty  bool
}

// Load reads the hint cache for dir, if present. A missing or malformed
// file yields an empty (not full) cache rather than an error — see the
// package doc comment.
func Load(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		dir:    dir,
		logger: logger,
		full:   [2]map[int]bool{{}, {}},
	}

	raw, err := os.ReadFile(c.path())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("allocation hint cache unreadable, ignoring", "error", err)
		}
		return c
	}

	var doc document
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		logger.Warn("allocation hint cache malformed, ignoring", "error", err)
		return c
	}
	if doc.Version != formatVersion {
		logger.Warn("allocation hint cache is a different version, ignoring",
			"got", doc.Version, "want", formatVersion)
		return c
	}

	for _, i := range doc.FullInode {
		c.full[Inode][i] = true
	}
	for _, i := range doc.FullData {
		c.full[Data][i] = true
	}
	return c
}

func (c *Cache) path() string {
	dir := c.dir
	if dir == "" {
		dir = "."
	}
	return dir + string(os.PathSeparator) + fileName
}

// IsFull reports whether segment index within space was already
// observed to be full.
func (c *Cache) IsFull(space Space, index int) bool {
	return c.full[space][index]
}

// MarkFull records that segment index within space has no free bit, and
// persists the cache. Persistence failures are logged, not returned:
// the hint cache is an optimization, not a correctness dependency.
func (c *Cache) MarkFull(space Space, index int) {
	if c.full[space][index] {
		return
	}
	c.full[space][index] = true
	c.dirty = true
	if err := c.save(); err != nil {
		c.logger.Warn("failed to persist allocation hint cache", "error", err)
	}
}

// ClearFull forgets that segment index within space was full, e.g.
// because an inode or block inside it was just freed. Persistence
// failures are logged, not returned, for the same reason as MarkFull.
func (c *Cache) ClearFull(space Space, index int) {
	if !c.full[space][index] {
		return
	}
	delete(c.full[space], index)
	c.dirty = true
	if err := c.save(); err != nil {
		c.logger.Warn("failed to persist allocation hint cache", "error", err)
	}
}

func (c *Cache) save() error {
	if !c.dirty {
		return nil
	}

	doc := document{Version: formatVersion}
	for i := range c.full[Inode] {
		doc.FullInode = append(doc.FullInode, i)
	}
	for i := range c.full[Data] {
		doc.FullData = append(doc.FullData, i)
	}
	sort.Ints(doc.FullInode)
	sort.Ints(doc.FullData)

	raw, err := encMode.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding allocation hint cache: %w", err)
	}
	if err := os.WriteFile(c.path(), raw, 0o644); err != nil {
		return fmt.Errorf("writing allocation hint cache: %w", err)
	}
	c.dirty = false
	return nil
}
