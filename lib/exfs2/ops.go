// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exfs2

import (
	"fmt"
	"io"

	"github.com/nazmavali/exfs2/lib/directory"
	"github.com/nazmavali/exfs2/lib/filemap"
	"github.com/nazmavali/exfs2/lib/inode"
)

// resolveOrCreateDir walks components from the root, creating any
// missing intermediate directory along the way, and returns the inode
// number and record of the final directory in the chain.
func (fs *FS) resolveOrCreateDir(components []string) (int32, inode.Record, error) {
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
		if found {
			num = child
			rec, err = fs.inodes.Read(num)
			if err != nil {
				return 0, inode.Record{}, err
			}
			continue
		}

		newNum, err := fs.inodes.Allocate()
		if err != nil {
			return 0, inode.Record{}, fmt.Errorf("allocating directory %q: %w", name, err)
		}
		newRec := inode.NewDirectory()
		if err := fs.inodes.Write(newNum, newRec); err != nil {
			return 0, inode.Record{}, fmt.Errorf("writing directory %q: %w", name, err)
		}
		if err := directory.Add(fs.blocks, fs.inodes, num, &rec, name, newNum); err != nil {
			return 0, inode.Record{}, fmt.Errorf("linking directory %q: %w", name, err)
		}
		fs.logger.Debug("created intermediate directory", "name", name, "inode", newNum)

		num, rec = newNum, newRec
	}
	return num, rec, nil
}

// Add streams content into a new file at path, creating any missing
// intermediate directories. It fails with ErrExists if path already
// names a live entry, and with ErrNotDirectory if any intermediate
// component names a file.
func (fs *FS) Add(path string, content io.Reader) error {
	components, err := Split(path)
	if err != nil {
		return err
	}
	if len(components) == 0 {
		return fmt.Errorf("%w: cannot add the root itself", ErrInvalidPath)
	}

	parentNum, parent, err := fs.resolveOrCreateDir(components[:len(components)-1])
	if err != nil {
		return err
	}
	if parent.Type != inode.Directory {
		return fmt.Errorf("%w: parent of %q", ErrNotDirectory, path)
	}

	name := components[len(components)-1]
	if _, found, err := directory.Find(fs.blocks, parent, name); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%w: %q", ErrExists, path)
	}

	fileNum, err := fs.inodes.Allocate()
	if err != nil {
		return fmt.Errorf("allocating file inode: %w", err)
	}

	rec := inode.NewFile()
	hashing := newHashingReader(content)
	builder := filemap.NewBuilder(fs.blocks, &rec)
	written, err := builder.WriteStream(hashing)
	if err != nil {
		return fmt.Errorf("writing content for %q: %w", path, err)
	}

	if err := fs.inodes.Write(fileNum, rec); err != nil {
		return fmt.Errorf("writing inode for %q: %w", path, err)
	}
	if err := directory.Add(fs.blocks, fs.inodes, parentNum, &parent, name, fileNum); err != nil {
		return fmt.Errorf("linking %q: %w", path, err)
	}

	fs.logger.Info("added file", "path", path, "inode", fileNum, "bytes", written, "hash", hashing.sumHex())
	return nil
}

// Remove deletes the file or subtree at path. Removing a directory
// recursively removes its children first.
func (fs *FS) Remove(path string) error {
	components, err := Split(path)
	if err != nil {
		return err
	}
	if len(components) == 0 {
		return fmt.Errorf("%w: cannot remove the root itself", ErrInvalidPath)
	}

	_, parent, err := fs.resolveDir(components[:len(components)-1])
	if err != nil {
		return err
	}
	if parent.Type != inode.Directory {
		return fmt.Errorf("%w: parent of %q", ErrNotDirectory, path)
	}

	name := components[len(components)-1]
	targetNum, found, err := directory.Find(fs.blocks, parent, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrNotExist, path)
	}

	if err := fs.removeRecursive(targetNum); err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}
	if _, err := directory.ClearEntry(fs.blocks, parent, targetNum); err != nil {
		return fmt.Errorf("unlinking %q: %w", path, err)
	}

	fs.logger.Info("removed", "path", path, "inode", targetNum)
	return nil
}

// removeRecursive frees everything reachable from inode num, then num
// itself. For a directory this walks every live child first; for a file
// it reclaims the full block map, including double- and triple-indirect
// structures.
func (fs *FS) removeRecursive(num int32) error {
	rec, err := fs.inodes.Read(num)
	if err != nil {
		return err
	}

	switch rec.Type {
	case inode.File:
		if err := filemap.Free(fs.blocks, rec); err != nil {
			return err
		}

	case inode.Directory:
		entries, err := directory.List(fs.blocks, rec)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := fs.removeRecursive(e.InodeNum); err != nil {
				return err
			}
		}
		for i := uint32(0); i < rec.NumDirect; i++ {
			if err := fs.blocks.Free(rec.Direct[i]); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("inode %d has an unrecognized type %v", num, rec.Type)
	}

	return fs.inodes.Free(num)
}

// Extract writes the full content of the file at path to w.
func (fs *FS) Extract(path string, w io.Writer) error {
	_, rec, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if rec.Type != inode.File {
		return fmt.Errorf("%q is a directory, not a file", path)
	}
	return filemap.WriteTo(fs.blocks, rec, w)
}

// Node is one entry in the tree returned by Tree, ready for a caller to
// render with whatever indentation and decoration it likes.
type Node struct {
	Name     string
	IsDir    bool
	Children []Node
}

// Tree returns the full directory tree rooted at "/", in on-disk order.
func (fs *FS) Tree() (Node, error) {
	return fs.buildNode("/", RootInode)
}

func (fs *FS) buildNode(name string, num int32) (Node, error) {
	rec, err := fs.inodes.Read(num)
	if err != nil {
		return Node{}, err
	}

	node := Node{Name: name, IsDir: rec.Type == inode.Directory}
	if !node.IsDir {
		return node, nil
	}

	entries, err := directory.List(fs.blocks, rec)
	if err != nil {
		return Node{}, err
	}
	for _, e := range entries {
		child, err := fs.buildNode(e.Name, e.InodeNum)
		if err != nil {
			return Node{}, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// DirLevel is the live entries of one directory encountered while
// resolving a debug path, from the root down.
type DirLevel struct {
	Name    string
	Entries []directory.Entry
}

// DebugReport is everything Debug reports for a path: the chain of
// directories walked to reach it, and — if the path names a file — its
// block map summary.
type DebugReport struct {
	Levels []DirLevel
	File   *filemap.Stat
}

// Debug walks path from the root, collecting the live entries of every
// directory prefix, and (if the final component is a file) its block
// map summary.
func (fs *FS) Debug(path string) (DebugReport, error) {
	components, err := Split(path)
	if err != nil {
		return DebugReport{}, err
	}

	var report DebugReport

	rootRec, err := fs.inodes.Read(RootInode)
	if err != nil {
		return DebugReport{}, err
	}
	rootEntries, err := directory.List(fs.blocks, rootRec)
	if err != nil {
		return DebugReport{}, err
	}
	report.Levels = append(report.Levels, DirLevel{Name: "/", Entries: rootEntries})

	rec := rootRec
	for i, name := range components {
		if rec.Type != inode.Directory {
			return report, fmt.Errorf("%w: %q", ErrNotDirectory, name)
		}
		childNum, found, err := directory.Find(fs.blocks, rec, name)
		if err != nil {
			return report, err
		}
		if !found {
			return report, fmt.Errorf("%w: %q", ErrNotExist, name)
		}
		rec, err = fs.inodes.Read(childNum)
		if err != nil {
			return report, err
		}

		if rec.Type == inode.Directory {
			entries, err := directory.List(fs.blocks, rec)
			if err != nil {
				return report, err
			}
			report.Levels = append(report.Levels, DirLevel{Name: name, Entries: entries})
			continue
		}

		if i != len(components)-1 {
			return report, fmt.Errorf("%w: %q", ErrNotDirectory, name)
		}
		stat, err := filemap.StatOf(fs.blocks, rec)
		if err != nil {
			return report, err
		}
		report.File = &stat
	}

	return report, nil
}
