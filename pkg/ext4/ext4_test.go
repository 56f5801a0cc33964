package ext4_test

import (
	"context"
	"encoding/binary"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/ext4"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// buildSuperblock writes a minimal valid ext4 superblock (block size
// 1024, one block group) into a fresh 8KB image buffer.
func buildSuperblock(t *testing.T) []byte {
	t.Helper()
	raw := make([]byte, 8192)
	sb := raw[1024:]

	binary.LittleEndian.PutUint32(sb[0x00:], 16)    // inodes_count
	binary.LittleEndian.PutUint32(sb[0x04:], 64)     // blocks_count_lo
	binary.LittleEndian.PutUint32(sb[0x0C:], 10)     // free_blocks_lo
	binary.LittleEndian.PutUint32(sb[0x14:], 1)      // first_data_block
	binary.LittleEndian.PutUint32(sb[0x18:], 0)      // log_block_size -> 1024
	binary.LittleEndian.PutUint32(sb[0x20:], 64)     // blocks_per_group
	binary.LittleEndian.PutUint32(sb[0x28:], 16)     // inodes_per_group
	binary.LittleEndian.PutUint16(sb[0x38:], 0xEF53) // magic
	binary.LittleEndian.PutUint32(sb[0x4C:], 1)      // rev_level
	binary.LittleEndian.PutUint16(sb[0x58:], 128)    // inode_size
	binary.LittleEndian.PutUint32(sb[0x60:], 0)      // feature_incompat
	binary.LittleEndian.PutUint16(sb[0xFE:], 32)     // desc_size
	binary.LittleEndian.PutUint32(sb[0x150:], 0)     // blocks_count_hi

	// Group descriptor table at block (first_data_block+1) = block 2,
	// offset 2048, one 32-byte entry with inode-table-lo at +0x08.
	gdOff := 2048
	binary.LittleEndian.PutUint32(raw[gdOff+0x08:], 3) // inode table starts at block 3

	return raw
}

func TestParseSuperblockRejectsBadMagic(t *testing.T) {
	raw := buildSuperblock(t)
	binary.LittleEndian.PutUint16(raw[1024+0x38:], 0xDEAD)
	_, err := ext4.ParseSuperblock(raw)
	assert.ErrorContains(t, err, "bad superblock magic")
}

func TestParseSuperblockRejectsIncompatFeature(t *testing.T) {
	raw := buildSuperblock(t)
	binary.LittleEndian.PutUint32(raw[1024+0x60:], 0x10000) // ENCRYPT
	_, err := ext4.ParseSuperblock(raw)
	assert.ErrorContains(t, err, "not supported")
}

func TestParseSuperblockDerivedFields(t *testing.T) {
	raw := buildSuperblock(t)
	sb, err := ext4.ParseSuperblock(raw)
	assert.NilError(t, err)
	assert.Equal(t, sb.BlockSize, uint32(1024))
	assert.Equal(t, sb.InodeSize, uint16(128))
	assert.Equal(t, sb.DescSize, uint16(32))
	assert.Equal(t, sb.GroupCount, uint32(1))
}

func TestLocateInode(t *testing.T) {
	raw := buildSuperblock(t)
	sb, err := ext4.ParseSuperblock(raw)
	assert.NilError(t, err)
	groups, err := ext4.ParseGroupDescriptors(raw, sb)
	assert.NilError(t, err)
	assert.Equal(t, groups[0].InodeTableBlock, uint64(3))

	block, offset := ext4.LocateInode(sb, groups[0], 2)
	assert.Equal(t, block, uint64(3))
	assert.Equal(t, offset, uint32(128)) // (2-1)%16 * 128
}

func extentLeaf(entries []struct{ block, length, phys uint32 }) []byte {
	buf := make([]byte, 12+12*len(entries))
	binary.LittleEndian.PutUint16(buf[0x00:], 0xF30A)
	binary.LittleEndian.PutUint16(buf[0x02:], uint16(len(entries)))
	binary.LittleEndian.PutUint16(buf[0x06:], 0) // depth 0
	for i, e := range entries {
		off := 12 + i*12
		binary.LittleEndian.PutUint32(buf[off:], e.block)
		binary.LittleEndian.PutUint16(buf[off+4:], uint16(e.length))
		binary.LittleEndian.PutUint16(buf[off+6:], uint16(e.phys>>32))
		binary.LittleEndian.PutUint32(buf[off+8:], e.phys)
	}
	return buf
}

func TestExtentMapScenario(t *testing.T) {
	leaf := extentLeaf([]struct{ block, length, phys uint32 }{{0, 4, 100}})

	phys, err := ext4.MapLogicalBlock(leaf, 0, nil)
	assert.NilError(t, err)
	assert.Equal(t, phys, uint64(100))

	phys, err = ext4.MapLogicalBlock(leaf, 3, nil)
	assert.NilError(t, err)
	assert.Equal(t, phys, uint64(103))

	_, err = ext4.MapLogicalBlock(leaf, 4, nil)
	assert.ErrorIs(t, err, ext4.ErrNotFound)
}

func TestExtentMapViaIndex(t *testing.T) {
	leaf0 := extentLeaf([]struct{ block, length, phys uint32 }{{0, 10, 500}})
	leaf1 := extentLeaf([]struct{ block, length, phys uint32 }{{10, 10, 600}})

	root := make([]byte, 12+2*12)
	binary.LittleEndian.PutUint16(root[0x00:], 0xF30A)
	binary.LittleEndian.PutUint16(root[0x02:], 2)
	binary.LittleEndian.PutUint16(root[0x06:], 1) // depth 1
	binary.LittleEndian.PutUint32(root[12:], 0)    // ei_block
	binary.LittleEndian.PutUint32(root[16:], 1)    // ei_leaf_lo -> "block 1" = leaf0
	binary.LittleEndian.PutUint32(root[24:], 10)   // ei_block
	binary.LittleEndian.PutUint32(root[28:], 2)    // ei_leaf_lo -> "block 2" = leaf1

	blocks := map[uint64][]byte{1: leaf0, 2: leaf1}
	reader := func(physical uint64) ([]byte, error) { return blocks[physical], nil }

	phys, err := ext4.MapLogicalBlock(root, 5, reader)
	assert.NilError(t, err)
	assert.Equal(t, phys, uint64(505))

	phys, err = ext4.MapLogicalBlock(root, 12, reader)
	assert.NilError(t, err)
	assert.Equal(t, phys, uint64(602))
}

func buildDirBlock() []byte {
	buf := make([]byte, 64)
	// entry 1: ino=2, name="."
	binary.LittleEndian.PutUint32(buf[0:], 2)
	binary.LittleEndian.PutUint16(buf[4:], 12)
	buf[6] = 1
	buf[7] = 2 // directory
	copy(buf[8:], ".")
	// entry 2: ino=11, name="foo.txt", rec_len fills rest
	off := 12
	binary.LittleEndian.PutUint32(buf[off:], 11)
	binary.LittleEndian.PutUint16(buf[off+4:], uint16(len(buf)-off))
	buf[off+6] = 7
	buf[off+7] = 1 // regular
	copy(buf[off+8:], "foo.txt")
	return buf
}

func TestIterateDir(t *testing.T) {
	block := buildDirBlock()
	var names []string
	ext4.IterateDir(block, func(e ext4.DirEntry) bool {
		names = append(names, e.Name)
		return true
	})
	assert.DeepEqual(t, names, []string{".", "foo.txt"})
}

type fakeDevice struct {
	blocks map[uint64][]byte
}

func (f *fakeDevice) ReadPage(ctx context.Context, device string, buffer []byte, pageIndex uint64) error {
	copy(buffer, f.blocks[pageIndex])
	return nil
}

func TestMountAndReadInode(t *testing.T) {
	raw := buildSuperblock(t)
	sb, err := ext4.ParseSuperblock(raw)
	assert.NilError(t, err)

	inodeBlock := make([]byte, sb.BlockSize)
	inodeOff := 128 // inode #2's offset within the inode table block
	binary.LittleEndian.PutUint16(inodeBlock[inodeOff:], 0x4000) // directory mode
	binary.LittleEndian.PutUint32(inodeBlock[inodeOff+0x20:], 0x00080000) // EXTENTS_FL
	binary.LittleEndian.PutUint32(inodeBlock[inodeOff+0x04:], uint32(len(buildDirBlock())))

	extentHdr := inodeBlock[inodeOff+0x28:]
	binary.LittleEndian.PutUint16(extentHdr[0x00:], 0xF30A)
	binary.LittleEndian.PutUint16(extentHdr[0x02:], 1)
	binary.LittleEndian.PutUint32(extentHdr[12:], 0) // ee_block
	binary.LittleEndian.PutUint16(extentHdr[16:], 1) // ee_len
	binary.LittleEndian.PutUint32(extentHdr[20:], 5) // ee_start_lo -> block 5

	device := &fakeDevice{blocks: map[uint64][]byte{
		3: inodeBlock,
		5: buildDirBlock(),
	}}

	fs, err := ext4.Mount(raw, device, "testdev")
	assert.NilError(t, err)

	ctx := context.Background()
	root, err := fs.Root(ctx)
	assert.NilError(t, err)
	assert.Equal(t, root.FileType(), vfs.Directory)

	var names []string
	err = fs.Readdir(ctx, root, func(e ext4.DirEntry) bool {
		names = append(names, e.Name)
		return true
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{".", "foo.txt"})
}
