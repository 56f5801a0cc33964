/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package userns implements hierarchical user namespaces: extent-based
// UID/GID mapping set at most once per namespace, with translation
// chained up/down the ancestor tree the way Linux's struct user_namespace
// does for from_kuid/to_kuid.
package userns

import (
	"sync"

	"github.com/hk-project/hkgo/pkg/vfs"
)

// MaxLevel bounds nesting depth.
const MaxLevel = 32

// Extent is one contiguous run of a UID/GID map: IDs [FirstInThisNS,
// FirstInThisNS+Count) translate to [FirstInParent, FirstInParent+Count)
// in the parent namespace.
type Extent struct {
	FirstInThisNS uint32
	FirstInParent uint32
	Count         uint32
}

func (e Extent) contains(id uint32) bool {
	return id >= e.FirstInThisNS && id-e.FirstInThisNS < e.Count
}

func (e Extent) containsParent(id uint32) bool {
	return id >= e.FirstInParent && id-e.FirstInParent < e.Count
}

// idMap is a sequence of disjoint extents, settable exactly once.
type idMap struct {
	extents []Extent
	isSet   bool
}

// 0xFFFFFFFF (not 1<<32, which doesn't fit in uint32) since UID
// 0xFFFFFFFF is Linux's reserved "invalid uid" sentinel and is never a
// real mapped ID.
func newIdentityMap() idMap {
	return idMap{extents: []Extent{{FirstInThisNS: 0, FirstInParent: 0, Count: 0xFFFFFFFF}}, isSet: true}
}

// set installs extents, validating pairwise disjointness. Per the
// idempotent-iff-identical invariant: calling set again with the exact
// same extent slice succeeds as a no-op; any other second call is EPERM.
func (m *idMap) set(extents []Extent) error {
	if m.isSet {
		if sameExtents(m.extents, extents) {
			return nil
		}
		return vfs.EPERM
	}
	if !disjoint(extents) {
		return vfs.EINVAL
	}
	m.extents = append([]Extent(nil), extents...)
	m.isSet = true
	return nil
}

func sameExtents(a, b []Extent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func disjoint(extents []Extent) bool {
	for i := range extents {
		for j := i + 1; j < len(extents); j++ {
			a, b := extents[i], extents[j]
			if a.FirstInThisNS < b.FirstInThisNS+b.Count && b.FirstInThisNS < a.FirstInThisNS+a.Count {
				return false
			}
		}
	}
	return true
}

// mapDown translates an ID in this namespace to the parent's namespace.
func (m *idMap) mapDown(id uint32) (uint32, bool) {
	for _, e := range m.extents {
		if e.contains(id) {
			return e.FirstInParent + (id - e.FirstInThisNS), true
		}
	}
	return 0, false
}

// mapUp translates an ID in the parent's namespace into this namespace.
func (m *idMap) mapUp(id uint32) (uint32, bool) {
	for _, e := range m.extents {
		if e.containsParent(id) {
			return e.FirstInThisNS + (id - e.FirstInParent), true
		}
	}
	return 0, false
}

// Namespace is one user namespace.
type Namespace struct {
	mu sync.RWMutex

	uidMap idMap
	gidMap idMap

	level  int
	parent *Namespace

	ownerUID uint32
	ownerGID uint32
}

// Root is the init user namespace, with identity maps covering the
// entire UID/GID space.
var Root = &Namespace{
	uidMap: newIdentityMap(),
	gidMap: newIdentityMap(),
	level:  0,
}

// CloneNS creates a child namespace owned by ownerUID/ownerGID in the
// parent's ID space.
func CloneNS(parent *Namespace, ownerUID, ownerGID uint32) (*Namespace, error) {
	parent.mu.RLock()
	level := parent.level
	parent.mu.RUnlock()
	if level+1 > MaxLevel {
		return nil, vfs.EINVAL
	}
	return &Namespace{
		level:    level + 1,
		parent:   parent,
		ownerUID: ownerUID,
		ownerGID: ownerGID,
	}, nil
}

// Level returns the namespace's nesting depth.
func (n *Namespace) Level() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.level
}

// MappingCounts returns the number of UID and GID extents installed in
// n, for export as kernel namespace counters.
func (n *Namespace) MappingCounts() (uidExtents, gidExtents int) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.uidMap.extents), len(n.gidMap.extents)
}

// IsAncestorOf walks other's parent chain using identity comparison.
func (n *Namespace) IsAncestorOf(other *Namespace) bool {
	for cur := other.parent; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// CanSetUIDGIDMap reports whether a task with the given effective UID
// (as seen in n) may call SetUIDMap/SetGIDMap.
func (n *Namespace) CanSetUIDGIDMap(euid uint32) bool {
	return euid == 0
}

// SetUIDMap installs the UID extents, failing EPERM on a second,
// differing call.
func (n *Namespace) SetUIDMap(extents []Extent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.uidMap.set(extents)
}

// SetGIDMap installs the GID extents, failing EPERM on a second,
// differing call.
func (n *Namespace) SetGIDMap(extents []Extent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gidMap.set(extents)
}

// MapIDDown translates a UID in n to its representation in n's parent.
func (n *Namespace) MapIDDown(uid uint32) (uint32, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.uidMap.mapDown(uid)
}

// MapIDUp translates a UID in n's parent into n.
func (n *Namespace) MapIDUp(uid uint32) (uint32, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.uidMap.mapUp(uid)
}

// ToKuid chains MapIDDown from ns up to the root, yielding the root
// (kernel) UID for a UID expressed in ns.
func ToKuid(ns *Namespace, uid uint32) (uint32, bool) {
	cur := uid
	for n := ns; n != nil; n = n.parent {
		next, ok := n.MapIDDown(cur)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

// FromKuid chains MapIDUp down through the ancestor chain from root to
// ns, yielding ns's representation of a kernel UID.
func FromKuid(ns *Namespace, kuid uint32) (uint32, bool) {
	chain := ancestorChain(ns)
	cur := kuid
	for i := len(chain) - 1; i >= 0; i-- {
		next, ok := chain[i].MapIDUp(cur)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

func ancestorChain(ns *Namespace) []*Namespace {
	var chain []*Namespace
	for n := ns; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	return chain
}

// ToKgid and FromKgid mirror ToKuid/FromKuid for GIDs.
func ToKgid(ns *Namespace, gid uint32) (uint32, bool) {
	cur := gid
	for n := ns; n != nil; n = n.parent {
		next, ok := n.mapGIDDown(cur)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

func FromKgid(ns *Namespace, kgid uint32) (uint32, bool) {
	chain := ancestorChain(ns)
	cur := kgid
	for i := len(chain) - 1; i >= 0; i-- {
		next, ok := chain[i].mapGIDUp(cur)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

func (n *Namespace) mapGIDDown(gid uint32) (uint32, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.gidMap.mapDown(gid)
}

func (n *Namespace) mapGIDUp(gid uint32) (uint32, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.gidMap.mapUp(gid)
}
