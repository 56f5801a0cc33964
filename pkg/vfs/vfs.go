/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package vfs defines the contracts the core implements (SuperOps,
// InodeOps, FileOps) and the contracts it consumes from external
// collaborators (BlockDevice, NetDevice, PageCache, WaitQueue, a task
// identifier) that sit outside this module's scope.
package vfs

import "context"

// FileType enumerates the VFS-visible inode kinds an ext4 directory entry
// can map to.
type FileType int

const (
	Regular FileType = iota
	Directory
	Symlink
	CharDevice
	BlockDevice
	FIFO
	Socket
)

// TaskID is the opaque process/thread identifier the scheduler hands the
// core; it is never interpreted here, only compared and stored.
type TaskID uint64

// WaitQueue is the suspension primitive blocking socket reads/writes and
// connect() rely on. The core never implements scheduling itself.
type WaitQueue interface {
	Wait(ctx context.Context) error
	WakeAll()
}

// BlockDevice is the raw storage collaborator: the core never touches
// DMA or device registers directly, only this readpage contract.
type BlockDevice interface {
	ReadPage(ctx context.Context, device string, buffer []byte, pageIndex uint64) error
}

// NetDevice is the NIC driver collaborator: outbound frames are handed to
// it, and it is expected to call back into the core's Ethernet demux for
// inbound frames (the callback registration is driver policy, not part
// of this contract).
type NetDevice interface {
	Name() string
	Transmit(frame []byte) error
}

// PageCache is the page-cache collaborator the ext4 driver reads blocks
// through; needsFill tells the caller whether the page
// must still be populated via BlockDevice.ReadPage.
type PageCache interface {
	FindOrCreatePage(fileID uint64, pageIndex uint64) (frame []byte, needsFill bool, err error)
}

// SuperOps is implemented by a mounted filesystem.
type SuperOps interface {
	Root() (Inode, error)
	Statfs() (blocks, free uint64, err error)
}

// Inode is a VFS-visible inode, filesystem-agnostic to callers.
type Inode interface {
	Ino() uint64
	Type() FileType
	Size() uint64
}

// InodeOps is implemented per-inode by a filesystem driver.
type InodeOps interface {
	Lookup(ctx context.Context, name string) (Inode, error)
	Readdir(ctx context.Context, fn func(name string, ino uint64, ft FileType) bool) error
}

// FileOps is implemented by an open-file abstraction; in this module the
// ext4 inode adapter satisfies it (pkg/socket exposes plain functions
// instead).
type FileOps interface {
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, buf []byte) (int, error)
	Poll() PollMask
	Release() error
}

// PollMask bits. Independent, not mutually exclusive: IN/OUT describe
// buffer readiness, ERR/HUP describe error/hangup conditions, and a
// caller may observe more than one bit set at once.
type PollMask uint32

const (
	PollIn     PollMask = 0x0001
	PollOut    PollMask = 0x0004
	PollErr    PollMask = 0x0008
	PollHup    PollMask = 0x0010
	PollRdNorm PollMask = 0x0040
	PollWrNorm PollMask = 0x0100
)
