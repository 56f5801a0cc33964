/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package ext4

import (
	"context"

	"github.com/hk-project/hkgo/pkg/vfs"
)

// vfsInode adapts (*FileSystem, *Inode) to the vfs.Inode/InodeOps/FileOps
// contracts. Every mutating operation fails EROFS; this driver never
// implements write support.
type vfsInode struct {
	fs *FileSystem
	in *Inode
}

var (
	_ vfs.Inode    = (*vfsInode)(nil)
	_ vfs.InodeOps = (*vfsInode)(nil)
	_ vfs.FileOps  = (*vfsInode)(nil)
	_ vfs.SuperOps = (*vfsSuper)(nil)
)

func (v *vfsInode) Ino() uint64        { return v.in.Ino }
func (v *vfsInode) Type() vfs.FileType { return v.in.FileType() }
func (v *vfsInode) Size() uint64       { return v.in.Size }

// Lookup resolves name within a directory inode by iterating its
// entries; ext4 does not index directories, so this is a linear scan.
func (v *vfsInode) Lookup(ctx context.Context, name string) (vfs.Inode, error) {
	var found *DirEntry
	err := v.fs.Readdir(ctx, v.in, func(e DirEntry) bool {
		if e.Name == name {
			cp := e
			found = &cp
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, vfs.EIO
	}
	child, err := v.fs.ReadInode(ctx, uint64(found.Ino))
	if err != nil {
		return nil, err
	}
	return &vfsInode{fs: v.fs, in: child}, nil
}

// Readdir invokes fn for every directory entry.
func (v *vfsInode) Readdir(ctx context.Context, fn func(name string, ino uint64, ft vfs.FileType) bool) error {
	return v.fs.Readdir(ctx, v.in, func(e DirEntry) bool {
		return fn(e.Name, uint64(e.Ino), e.FileType)
	})
}

// Read copies up to len(buf) bytes starting at the file's first page;
// callers wanting offsetted reads page the file themselves via ReadPage.
func (v *vfsInode) Read(ctx context.Context, buf []byte) (int, error) {
	pageSize := int(v.fs.sb.BlockSize)
	page, err := v.fs.ReadPage(ctx, v.in, 0, pageSize)
	if err != nil {
		return 0, err
	}
	return copy(buf, page), nil
}

// Write always fails: this driver is read-only.
func (v *vfsInode) Write(ctx context.Context, buf []byte) (int, error) {
	return 0, vfs.EROFS
}

// Poll reports a regular file as always readable, never blocking.
func (v *vfsInode) Poll() vfs.PollMask { return vfs.PollIn | vfs.PollRdNorm }

// Release is a no-op: ext4 inodes carry no open-file state to release.
func (v *vfsInode) Release() error { return nil }

// vfsSuper adapts *FileSystem to vfs.SuperOps.
type vfsSuper struct {
	fs *FileSystem
}

// NewSuperOps wraps a mounted FileSystem as a vfs.SuperOps.
func NewSuperOps(fs *FileSystem) vfs.SuperOps { return &vfsSuper{fs: fs} }

func (s *vfsSuper) Root() (vfs.Inode, error) {
	in, err := s.fs.Root(context.Background())
	if err != nil {
		return nil, err
	}
	return &vfsInode{fs: s.fs, in: in}, nil
}

func (s *vfsSuper) Statfs() (blocks, free uint64, err error) {
	return s.fs.sb.BlocksCount, uint64(s.fs.sb.FreeBlocksLo), nil
}
