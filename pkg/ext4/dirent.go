/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package ext4

import (
	"encoding/binary"

	"github.com/hk-project/hkgo/pkg/vfs"
)

const dirEntryHdrLen = 8

// DirEntry is one parsed directory record.
type DirEntry struct {
	Ino      uint32
	Name     string
	FileType vfs.FileType
}

var fileTypeTable = map[uint8]vfs.FileType{
	1: vfs.Regular,
	2: vfs.Directory,
	7: vfs.Symlink,
	3: vfs.CharDevice,
	4: vfs.BlockDevice,
	5: vfs.FIFO,
	6: vfs.Socket,
}

func mapDirFileType(raw uint8) vfs.FileType {
	if ft, ok := fileTypeTable[raw]; ok {
		return ft
	}
	return vfs.Regular
}

// IterateDir walks a directory data block's variable-length records,
// invoking fn for each until fn returns false, a zero inode/rec_len is
// seen, or the block is exhausted.
func IterateDir(block []byte, fn func(DirEntry) bool) {
	pos := 0
	for pos+dirEntryHdrLen <= len(block) {
		ino := binary.LittleEndian.Uint32(block[pos : pos+4])
		recLen := binary.LittleEndian.Uint16(block[pos+4 : pos+6])
		nameLen := block[pos+6]
		fileType := block[pos+7]

		if ino == 0 || recLen == 0 {
			return
		}
		nameStart := pos + dirEntryHdrLen
		nameEnd := nameStart + int(nameLen)
		if nameEnd > len(block) {
			return
		}
		entry := DirEntry{
			Ino:      ino,
			Name:     string(block[nameStart:nameEnd]),
			FileType: mapDirFileType(fileType),
		}
		if !fn(entry) {
			return
		}
		pos += int(recLen)
	}
}
