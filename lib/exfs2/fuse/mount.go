// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes an exfs2 filesystem read-only through a FUSE
// mount, so its tree can be browsed and its files read with ordinary
// host tools without going through the CLI's -l/-e modes. It never
// exercises Add or Remove; a stray write is rejected with EROFS rather
// than reaching the block map.
package fuse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/nazmavali/exfs2/lib/exfs2"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted. It
	// is created if it does not exist.
	Mountpoint string

	// FS is the already-open exfs2 filesystem to expose.
	FS *exfs2.FS

	// AllowOther permits other users, including root, to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// Mount mounts a read-only view of options.FS at options.Mountpoint.
// The caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("fs is required")
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &dirNode{fsys: options.FS, num: exfs2.RootInode}

	entryTimeout := time.Second
	attrTimeout := time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "exfs2",
			Name:       "exfs2",
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("exfs2 mounted read-only", "mountpoint", options.Mountpoint)
	return server, nil
}

// dirNode represents one exfs2 directory inode.
type dirNode struct {
	gofuse.Inode
	fsys *exfs2.FS
	num  int32
}

var (
	_ gofuse.InodeEmbedder = (*dirNode)(nil)
	_ gofuse.NodeLookuper  = (*dirNode)(nil)
	_ gofuse.NodeReaddirer = (*dirNode)(nil)
)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	rec, err := d.fsys.ReadInode(d.num)
	if err != nil {
		return nil, syscall.EIO
	}
	childNum, found, err := d.fsys.FindChild(rec, name)
	if err != nil {
		return nil, syscall.EIO
	}
	if !found {
		return nil, syscall.ENOENT
	}

	childRec, err := d.fsys.ReadInode(childNum)
	if err != nil {
		return nil, syscall.EIO
	}

	if exfs2.IsDirectory(childRec) {
		child := d.NewPersistentInode(ctx, &dirNode{fsys: d.fsys, num: childNum}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
		out.Mode = syscall.S_IFDIR | 0o555
		return child, 0
	}

	child := d.NewPersistentInode(ctx, &fileNode{fsys: d.fsys, num: childNum, size: childRec.Size}, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = childRec.Size
	return child, 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	rec, err := d.fsys.ReadInode(d.num)
	if err != nil {
		return nil, syscall.EIO
	}
	entries, err := d.fsys.ListDir(rec)
	if err != nil {
		return nil, syscall.EIO
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		childRec, err := d.fsys.ReadInode(e.InodeNum)
		if err != nil {
			return nil, syscall.EIO
		}
		mode := uint32(syscall.S_IFREG)
		if exfs2.IsDirectory(childRec) {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return &sliceDirStream{entries: out}, 0
}

// fileNode represents one exfs2 file inode. Content is read in full on
// first Open — the block map only supports whole-file traversal — and
// served from memory afterward.
type fileNode struct {
	gofuse.Inode
	fsys *exfs2.FS
	num  int32
	size uint64

	mu   sync.Mutex
	data []byte
}

var (
	_ gofuse.InodeEmbedder = (*fileNode)(nil)
	_ gofuse.NodeGetattrer = (*fileNode)(nil)
	_ gofuse.NodeOpener    = (*fileNode)(nil)
	_ gofuse.NodeReader    = (*fileNode)(nil)
)

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = f.size
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = 4096
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	if err := f.ensureLoaded(); err != nil {
		return nil, 0, syscall.EIO
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *fileNode) Read(ctx context.Context, fh gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if err := f.ensureLoaded(); err != nil {
		return nil, syscall.EIO
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if off >= int64(len(f.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	return fuse.ReadResultData(f.data[off:end]), 0
}

func (f *fileNode) ensureLoaded() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data != nil {
		return nil
	}

	rec, err := f.fsys.ReadInode(f.num)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := f.fsys.ReadFile(rec, &buf); err != nil {
		return err
	}
	f.data = buf.Bytes()
	return nil
}

// sliceDirStream implements gofuse.DirStream over a fixed slice.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
