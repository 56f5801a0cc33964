/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package ext4 implements a read-only ext4 driver: superblock and group
// descriptor parsing, inode lookup with extent-tree mapping, directory
// iteration, and a readpage path feeding the page cache, all against the
// byte-offset layouts in the on-disk format (never relying on host
// struct alignment).
package ext4

import (
	"encoding/binary"
	"fmt"
)

const (
	superblockOffset = 1024
	superblockMagic  = 0xEF53

	offInodesCount    = 0x00
	offBlocksCountLo  = 0x04
	offFreeBlocksLo   = 0x0C
	offFirstDataBlock = 0x14
	offLogBlockSize   = 0x18
	offBlocksPerGroup = 0x20
	offInodesPerGroup = 0x28
	offMagic          = 0x38
	offRevLevel       = 0x4C
	offInodeSize      = 0x58
	offFeatureIncompat = 0x60
	offDescSize       = 0xFE
	offBlocksCountHi  = 0x150

	superblockSize = 0x160
)

// Incompatible-feature bits this read-only driver refuses to mount.
const (
	featCompression uint32 = 0x0001
	featJournalDev  uint32 = 0x0008
	featInlineData  uint32 = 0x8000
	featEncrypt     uint32 = 0x10000
)

var rejectedIncompatFeatures = featCompression | featJournalDev | featInlineData | featEncrypt

// Superblock holds the parsed, derived fields needed for mount and
// subsequent reads. It is immutable after mount except for the caches.
type Superblock struct {
	InodesCount     uint32
	BlocksCount     uint64
	FreeBlocksLo    uint32
	FirstDataBlock  uint32
	BlockSize       uint32
	InodesPerGroup  uint32
	BlocksPerGroup  uint32
	InodeSize       uint16
	DescSize        uint16
	FeatureIncompat uint32
	GroupCount      uint32
}

// ParseSuperblock validates and parses the 1024-byte-offset superblock
// from a raw disk image (or the first block(s) containing it).
func ParseSuperblock(raw []byte) (*Superblock, error) {
	if len(raw) < superblockOffset+superblockSize {
		return nil, fmt.Errorf("ext4: image too small for superblock")
	}
	sb := raw[superblockOffset : superblockOffset+superblockSize]

	magic := binary.LittleEndian.Uint16(sb[offMagic : offMagic+2])
	if magic != superblockMagic {
		return nil, fmt.Errorf("ext4: bad superblock magic 0x%04x", magic)
	}

	featureIncompat := binary.LittleEndian.Uint32(sb[offFeatureIncompat : offFeatureIncompat+4])
	if featureIncompat&rejectedIncompatFeatures != 0 {
		return nil, fmt.Errorf("ext4: not supported: incompatible feature bits 0x%x", featureIncompat&rejectedIncompatFeatures)
	}

	revLevel := binary.LittleEndian.Uint32(sb[offRevLevel : offRevLevel+4])
	inodeSize := uint16(128)
	if revLevel != 0 {
		inodeSize = binary.LittleEndian.Uint16(sb[offInodeSize : offInodeSize+2])
	}

	descSize := binary.LittleEndian.Uint16(sb[offDescSize : offDescSize+2])
	if descSize == 0 {
		descSize = 32
	}

	logBlockSize := binary.LittleEndian.Uint32(sb[offLogBlockSize : offLogBlockSize+4])
	blockSize := uint32(1024) << logBlockSize

	blocksLo := binary.LittleEndian.Uint32(sb[offBlocksCountLo : offBlocksCountLo+4])
	blocksHi := binary.LittleEndian.Uint32(sb[offBlocksCountHi : offBlocksCountHi+4])
	blocksCount := uint64(blocksHi)<<32 | uint64(blocksLo)

	blocksPerGroup := binary.LittleEndian.Uint32(sb[offBlocksPerGroup : offBlocksPerGroup+4])
	if blocksPerGroup == 0 {
		return nil, fmt.Errorf("ext4: blocks_per_group is zero")
	}
	groupCount := uint32((blocksCount + uint64(blocksPerGroup) - 1) / uint64(blocksPerGroup))

	return &Superblock{
		InodesCount:     binary.LittleEndian.Uint32(sb[offInodesCount : offInodesCount+4]),
		BlocksCount:     blocksCount,
		FreeBlocksLo:    binary.LittleEndian.Uint32(sb[offFreeBlocksLo : offFreeBlocksLo+4]),
		FirstDataBlock:  binary.LittleEndian.Uint32(sb[offFirstDataBlock : offFirstDataBlock+4]),
		BlockSize:       blockSize,
		InodesPerGroup:  binary.LittleEndian.Uint32(sb[offInodesPerGroup : offInodesPerGroup+4]),
		BlocksPerGroup:  blocksPerGroup,
		InodeSize:       inodeSize,
		DescSize:        descSize,
		FeatureIncompat: featureIncompat,
		GroupCount:      groupCount,
	}, nil
}

// GroupDescriptor is the parsed subset of a block group descriptor this
// driver needs: the inode table's starting block.
type GroupDescriptor struct {
	InodeTableBlock uint64
}

// ParseGroupDescriptors reads the group descriptor table starting at
// block (first_data_block + 1), sized by sb.DescSize per entry.
func ParseGroupDescriptors(raw []byte, sb *Superblock) ([]GroupDescriptor, error) {
	startBlock := uint64(sb.FirstDataBlock) + 1
	start := startBlock * uint64(sb.BlockSize)
	tableLen := uint64(sb.GroupCount) * uint64(sb.DescSize)
	if uint64(len(raw)) < start+tableLen {
		return nil, fmt.Errorf("ext4: image too small for group descriptor table")
	}

	descs := make([]GroupDescriptor, sb.GroupCount)
	for i := uint32(0); i < sb.GroupCount; i++ {
		off := start + uint64(i)*uint64(sb.DescSize)
		entry := raw[off : off+uint64(sb.DescSize)]

		lo := binary.LittleEndian.Uint32(entry[0x08:0x0C])
		var hi uint32
		if sb.DescSize > 32 {
			hi = binary.LittleEndian.Uint32(entry[0x28:0x2C])
		}
		descs[i] = GroupDescriptor{InodeTableBlock: uint64(hi)<<32 | uint64(lo)}
	}
	return descs, nil
}

// LocateInode computes which block and byte offset within that block
// holds ino's on-disk inode, given its owning group's descriptor.
func LocateInode(sb *Superblock, gd GroupDescriptor, ino uint64) (block uint64, offset uint32) {
	index := (ino - 1) % uint64(sb.InodesPerGroup)
	byteOffset := index * uint64(sb.InodeSize)
	block = gd.InodeTableBlock + byteOffset/uint64(sb.BlockSize)
	offset = uint32(byteOffset % uint64(sb.BlockSize))
	return block, offset
}

// GroupOf returns the zero-based group index owning ino.
func GroupOf(sb *Superblock, ino uint64) uint64 {
	return (ino - 1) / uint64(sb.InodesPerGroup)
}
