/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package ext4

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hk-project/hkgo/pkg/vfs"
)

const (
	extentMagic = 0xF30A

	extHdrLen   = 12
	extEntryLen = 12

	offEHMagic   = 0x00
	offEHEntries = 0x02
	offEHDepth   = 0x06

	// Leaf entry layout.
	offEEBlock   = 0x00
	offEELen     = 0x04
	offEEStartHi = 0x06
	offEEStartLo = 0x08

	// Index entry layout.
	offEIBlock = 0x00
	offEILeaf  = 0x04 // ei_leaf_lo (u32), ei_leaf_hi (u16) follows at +8
)

// ErrNotFound indicates a sparse hole: the logical block has no mapping.
var ErrNotFound = fmt.Errorf("ext4: logical block not found (sparse hole)")

// MapLogicalBlock resolves logical block L to a physical block number by
// walking the extent tree rooted at root (an inode's 60-byte i_block, or
// a child index block's own contents). blockReader loads an arbitrary
// physical block's raw bytes, used to descend into index nodes.
func MapLogicalBlock(root []byte, logical uint32, blockReader func(physical uint64) ([]byte, error)) (uint64, error) {
	if len(root) < extHdrLen {
		return 0, fmt.Errorf("ext4: extent header truncated")
	}
	magic := binary.LittleEndian.Uint16(root[offEHMagic : offEHMagic+2])
	if magic != extentMagic {
		return 0, fmt.Errorf("ext4: bad extent header magic 0x%04x", magic)
	}
	entries := binary.LittleEndian.Uint16(root[offEHEntries : offEHEntries+2])
	depth := binary.LittleEndian.Uint16(root[offEHDepth : offEHDepth+2])

	if depth == 0 {
		return mapLeaf(root, int(entries), logical)
	}
	return mapIndex(root, int(entries), logical, blockReader)
}

func mapLeaf(root []byte, entries int, logical uint32) (uint64, error) {
	for i := 0; i < entries; i++ {
		off := extHdrLen + i*extEntryLen
		if off+extEntryLen > len(root) {
			break
		}
		entry := root[off : off+extEntryLen]

		eeBlock := binary.LittleEndian.Uint32(entry[offEEBlock : offEEBlock+4])
		eeLenRaw := binary.LittleEndian.Uint16(entry[offEELen : offEELen+2])
		eeLen := uint32(eeLenRaw & 0x7FFF)
		startHi := binary.LittleEndian.Uint16(entry[offEEStartHi : offEEStartHi+2])
		startLo := binary.LittleEndian.Uint32(entry[offEEStartLo : offEEStartLo+4])
		physStart := uint64(startHi)<<32 | uint64(startLo)

		if logical >= eeBlock && logical-eeBlock < eeLen {
			return physStart + uint64(logical-eeBlock), nil
		}
	}
	return 0, ErrNotFound
}

func mapIndex(root []byte, entries int, logical uint32, blockReader func(uint64) ([]byte, error)) (uint64, error) {
	type idxEntry struct {
		block uint32
		leaf  uint64
	}
	idx := make([]idxEntry, 0, entries)
	for i := 0; i < entries; i++ {
		off := extHdrLen + i*extEntryLen
		if off+extEntryLen > len(root) {
			break
		}
		entry := root[off : off+extEntryLen]
		eiBlock := binary.LittleEndian.Uint32(entry[offEIBlock : offEIBlock+4])
		leafLo := binary.LittleEndian.Uint32(entry[offEILeaf : offEILeaf+4])
		leafHi := binary.LittleEndian.Uint16(entry[0x08:0x0A])
		idx = append(idx, idxEntry{block: eiBlock, leaf: uint64(leafHi)<<32 | uint64(leafLo)})
	}

	for i, e := range idx {
		inRange := logical >= e.block
		if inRange && i+1 < len(idx) {
			inRange = logical < idx[i+1].block
		}
		if !inRange {
			continue
		}
		child, err := blockReader(e.leaf)
		if err != nil {
			return 0, fmt.Errorf("ext4: reading extent index child block %d: %w", e.leaf, err)
		}
		return MapLogicalBlock(child, logical, blockReader)
	}
	return 0, ErrNotFound
}

// ReadPage computes the logical block for pageIndex, maps it through the
// extent tree, and reads that physical block via blockReader, which
// routes through the block-device page cache (FileSystem.readBlock), so
// a block already resident in cache is never re-fetched from the
// device. A not-found surfaces as vfs.EIO, matching the spec's
// "propagate up to VFS" policy; callers higher up may treat it as a
// zero-filled hole.
func ReadPage(ctx context.Context, in *Inode, pageIndex uint64, pageSize int, sb *Superblock, blockReader func(physical uint64) ([]byte, error)) ([]byte, error) {
	if !in.HasExtents() {
		return nil, fmt.Errorf("ext4: not supported: indirect-block inode %d", in.Ino)
	}

	logicalBlock := uint32(pageIndex * uint64(pageSize) / uint64(sb.BlockSize))
	physical, err := MapLogicalBlock(in.IBlock[:], logicalBlock, blockReader)
	if err != nil {
		return nil, vfs.EIO
	}

	buf, err := blockReader(physical)
	if err != nil {
		return nil, fmt.Errorf("ext4: readpage block %d: %w", physical, err)
	}
	return buf, nil
}
