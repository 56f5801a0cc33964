/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package ext4

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hk-project/hkgo/pkg/vfs"
)

// FileSystem is a mounted read-only ext4 volume: the superblock and
// group-descriptor table loaded once at mount, plus a read-mostly inode
// cache, all guarded by a reader/writer lock.
type FileSystem struct {
	mu sync.RWMutex

	sb     *Superblock
	groups []GroupDescriptor

	device     vfs.BlockDevice
	deviceName string
	cache      vfs.PageCache

	inodeCache map[uint64]*Inode

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
}

// Mount parses the superblock and group-descriptor table out of raw
// (the volume's leading bytes, at least through the group descriptor
// table) and binds reads for everything beyond that to device.
func Mount(raw []byte, device vfs.BlockDevice, deviceName string) (*FileSystem, error) {
	sb, err := ParseSuperblock(raw)
	if err != nil {
		return nil, err
	}
	groups, err := ParseGroupDescriptors(raw, sb)
	if err != nil {
		return nil, err
	}
	return &FileSystem{
		sb:         sb,
		groups:     groups,
		device:     device,
		deviceName: deviceName,
		cache:      NewMemPageCache(int(sb.BlockSize)),
		inodeCache: make(map[uint64]*Inode),
	}, nil
}

// Superblock returns the mounted volume's parsed superblock.
func (fs *FileSystem) Superblock() *Superblock { return fs.sb }

// PageCacheStats returns the cumulative block/page-cache hit and miss
// counts, for export alongside the inode cache's own stats.
func (fs *FileSystem) PageCacheStats() (hits, misses uint64) {
	mc, ok := fs.cache.(*MemPageCache)
	if !ok {
		return 0, 0
	}
	return mc.Stats()
}

// readBlock reads physical through the block-device page cache: a cache
// hit returns the already-populated page directly, and a miss allocates
// a zeroed page, fills it from the block device, and leaves it cached
// for the next reader.
func (fs *FileSystem) readBlock(ctx context.Context, physical uint64) ([]byte, error) {
	frame, needsFill, err := fs.cache.FindOrCreatePage(blockDeviceFileID, physical)
	if err != nil {
		return nil, err
	}
	if needsFill {
		if err := fs.device.ReadPage(ctx, fs.deviceName, frame, physical); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// ReadInode loads ino, consulting and populating the inode cache.
func (fs *FileSystem) ReadInode(ctx context.Context, ino uint64) (*Inode, error) {
	fs.mu.RLock()
	if cached, ok := fs.inodeCache[ino]; ok {
		fs.mu.RUnlock()
		fs.cacheHits.Add(1)
		return cached, nil
	}
	fs.mu.RUnlock()
	fs.cacheMisses.Add(1)

	group := GroupOf(fs.sb, ino)
	if group >= uint64(len(fs.groups)) {
		return nil, fmt.Errorf("ext4: inode %d group %d out of range", ino, group)
	}
	gd := fs.groups[group]
	block, offset := LocateInode(fs.sb, gd, ino)

	raw, err := fs.readBlock(ctx, block)
	if err != nil {
		return nil, err
	}
	in, err := ParseInode(raw, offset, ino)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	fs.inodeCache[ino] = in
	fs.mu.Unlock()
	return in, nil
}

// CacheStats returns the cumulative inode-cache hit and miss counts.
func (fs *FileSystem) CacheStats() (hits, misses uint64) {
	return fs.cacheHits.Load(), fs.cacheMisses.Load()
}

// Root loads the root inode (number 2).
func (fs *FileSystem) Root(ctx context.Context) (*Inode, error) {
	return fs.ReadInode(ctx, 2)
}

// MapLogicalBlock resolves a logical block of in through the extent
// tree, descending into index blocks via fs.device as needed.
func (fs *FileSystem) MapLogicalBlock(ctx context.Context, in *Inode, logical uint32) (uint64, error) {
	return MapLogicalBlock(in.IBlock[:], logical, func(physical uint64) ([]byte, error) {
		return fs.readBlock(ctx, physical)
	})
}

// ReadPage reads pageIndex of in (pageSize bytes per page) through the
// extent map and the block device.
func (fs *FileSystem) ReadPage(ctx context.Context, in *Inode, pageIndex uint64, pageSize int) ([]byte, error) {
	return ReadPage(ctx, in, pageIndex, pageSize, fs.sb, func(physical uint64) ([]byte, error) {
		return fs.readBlock(ctx, physical)
	})
}

// Readdir iterates every entry across in's data blocks, invoking fn for
// each until it returns false. A sparse hole skips that block rather
// than aborting iteration.
func (fs *FileSystem) Readdir(ctx context.Context, in *Inode, fn func(DirEntry) bool) error {
	pageSize := int(fs.sb.BlockSize)
	numBlocks := (in.Size + uint64(pageSize) - 1) / uint64(pageSize)

	for i := uint64(0); i < numBlocks; i++ {
		block, err := fs.ReadPage(ctx, in, i, pageSize)
		if err != nil {
			if errors.Is(err, vfs.EIO) {
				continue
			}
			return err
		}
		stop := false
		IterateDir(block, func(e DirEntry) bool {
			if !fn(e) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			break
		}
	}
	return nil
}
