/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package ext4

import (
	"sync"
	"sync/atomic"
)

// blockDeviceFileID is the fileID MemPageCache uses for block-device-level
// pages, as opposed to a per-inode page cache keyed by a real inode
// number; this filesystem's driver caches raw blocks, not pages of a
// particular open file.
const blockDeviceFileID = 0

// MemPageCache is an in-memory vfs.PageCache keyed by (fileID, pageIndex),
// sized to the mounted volume's block size. It backs the "page-cache-
// backed block I/O path" the ext4 driver reads every block through,
// instead of hitting the block device directly on every access.
type MemPageCache struct {
	pageSize int

	mu    sync.RWMutex
	pages map[uint64][]byte

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemPageCache constructs an empty page cache sized to pageSize bytes
// per page (the mounted filesystem's block size).
func NewMemPageCache(pageSize int) *MemPageCache {
	return &MemPageCache{
		pageSize: pageSize,
		pages:    make(map[uint64][]byte),
	}
}

// FindOrCreatePage satisfies vfs.PageCache. fileID is always
// blockDeviceFileID for this driver's own reads; a caller-supplied
// fileID is accepted so the same cache could back per-file pages too,
// but ext4's current callers only ever pass blockDeviceFileID.
func (c *MemPageCache) FindOrCreatePage(fileID, pageIndex uint64) (frame []byte, needsFill bool, err error) {
	key := fileID<<32 | pageIndex

	c.mu.RLock()
	if page, ok := c.pages[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return page, false, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if page, ok := c.pages[key]; ok {
		c.hits.Add(1)
		return page, false, nil
	}
	c.misses.Add(1)
	page := make([]byte, c.pageSize)
	c.pages[key] = page
	return page, true, nil
}

// Stats returns the cumulative hit and miss counts, for export as a
// kernel block-cache counter alongside the inode cache's own stats.
func (c *MemPageCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
