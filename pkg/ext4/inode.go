/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package ext4

import (
	"encoding/binary"
	"fmt"

	"github.com/hk-project/hkgo/pkg/vfs"
)

const (
	offIMode    = 0x00
	offISizeLo  = 0x04
	offIFlags   = 0x20
	offIBlock   = 0x28
	iBlockLen   = 60
	offISizeHi  = 0x6C

	flagExtents uint32 = 0x00080000
)

// Inode is the parsed subset of an on-disk ext4 inode this driver needs.
type Inode struct {
	Ino   uint64
	Mode  uint16
	Size  uint64
	Flags uint32
	// IBlock is the raw 60-byte i_block region, used as the extent-tree
	// root when flagExtents is set.
	IBlock [iBlockLen]byte
}

// HasExtents reports whether this inode uses the extent-tree layout;
// the indirect-block layout is not implemented.
func (in *Inode) HasExtents() bool { return in.Flags&flagExtents != 0 }

// ParseInode unaligned-copies an on-disk inode out of a raw block buffer
// at the given byte offset.
func ParseInode(block []byte, offset uint32, ino uint64) (*Inode, error) {
	if uint64(offset)+offISizeHi+4 > uint64(len(block)) {
		return nil, fmt.Errorf("ext4: inode %d offset %d out of range", ino, offset)
	}
	raw := block[offset:]

	in := &Inode{
		Ino:   ino,
		Mode:  binary.LittleEndian.Uint16(raw[offIMode : offIMode+2]),
		Flags: binary.LittleEndian.Uint32(raw[offIFlags : offIFlags+4]),
	}
	sizeLo := binary.LittleEndian.Uint32(raw[offISizeLo : offISizeLo+4])
	sizeHi := binary.LittleEndian.Uint32(raw[offISizeHi : offISizeHi+4])
	in.Size = uint64(sizeHi)<<32 | uint64(sizeLo)
	copy(in.IBlock[:], raw[offIBlock:offIBlock+iBlockLen])
	return in, nil
}

// FileType maps the inode mode's file-type bits to a VFS FileType.
func (in *Inode) FileType() vfs.FileType {
	switch in.Mode & 0xF000 {
	case 0x4000:
		return vfs.Directory
	case 0xA000:
		return vfs.Symlink
	case 0x2000:
		return vfs.CharDevice
	case 0x6000:
		return vfs.BlockDevice
	case 0x1000:
		return vfs.FIFO
	case 0xC000:
		return vfs.Socket
	default:
		return vfs.Regular
	}
}
