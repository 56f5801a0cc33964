/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package pidns implements hierarchical PID namespaces: monotonic PID
// allocation per namespace, the pid<->tid maps, child-reaper adoption,
// and ancestor-chain lookups mirroring Linux's struct pid_namespace.
package pidns

import (
	"fmt"
	"sync"

	"github.com/hk-project/hkgo/pkg/vfs"
)

// PidMax bounds PID allocation within a single namespace.
const PidMax = 32768

// MaxLevel bounds nesting depth; the root namespace is level 0.
const MaxLevel = 32

// Namespace is one PID namespace. pid_map and tid_map are the two
// directions of the bijection register()/unregister() maintain.
type Namespace struct {
	mu sync.RWMutex

	nextPID     uint32
	level       int
	parent      *Namespace
	childReaper vfs.TaskID
	hasReaper   bool

	pidToTid map[uint32]vfs.TaskID
	tidToPid map[vfs.TaskID]uint32
}

// Root is the init PID namespace, created once at process start.
var Root = newRoot()

func newRoot() *Namespace {
	return &Namespace{
		nextPID:  1,
		level:    0,
		pidToTid: make(map[uint32]vfs.TaskID),
		tidToPid: make(map[vfs.TaskID]uint32),
	}
}

// CloneNS creates a child namespace one level below parent. Fails when
// the parent is already at MaxLevel.
func CloneNS(parent *Namespace) (*Namespace, error) {
	parent.mu.RLock()
	level := parent.level
	parent.mu.RUnlock()
	if level+1 > MaxLevel {
		return nil, fmt.Errorf("pidns: max namespace depth %d exceeded", MaxLevel)
	}
	return &Namespace{
		nextPID:  1,
		level:    level + 1,
		parent:   parent,
		pidToTid: make(map[uint32]vfs.TaskID),
		tidToPid: make(map[vfs.TaskID]uint32),
	}, nil
}

// Level returns the namespace's nesting depth; the root is 0.
func (n *Namespace) Level() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.level
}

// AllocPID allocates the next PID in this namespace, monotonically, up
// to PidMax. There is no reuse within a namespace's lifetime.
func (n *Namespace) AllocPID() (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nextPID > PidMax {
		return 0, vfs.ENOMEM
	}
	pid := n.nextPID
	n.nextPID++
	return pid, nil
}

// Register inserts both map directions for pid/tid. If pid == 1 and no
// reaper has been set yet, tid becomes this namespace's child reaper.
func (n *Namespace) Register(pid uint32, tid vfs.TaskID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pidToTid[pid] = tid
	n.tidToPid[tid] = pid
	if pid == 1 && !n.hasReaper {
		n.childReaper = tid
		n.hasReaper = true
	}
}

// Unregister removes both map directions for tid.
func (n *Namespace) Unregister(tid vfs.TaskID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pid, ok := n.tidToPid[tid]
	if !ok {
		return
	}
	delete(n.tidToPid, tid)
	delete(n.pidToTid, pid)
}

// GetTid returns the task owning pid in this namespace.
func (n *Namespace) GetTid(pid uint32) (vfs.TaskID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	tid, ok := n.pidToTid[pid]
	return tid, ok
}

// GetPid returns tid's PID in this namespace.
func (n *Namespace) GetPid(tid vfs.TaskID) (uint32, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	pid, ok := n.tidToPid[tid]
	return pid, ok
}

// ChildReaper returns the task occupying PID 1, if any has been set.
func (n *Namespace) ChildReaper() (vfs.TaskID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.childReaper, n.hasReaper
}

// Allocated returns the number of PIDs currently registered in this
// namespace and the highest PID handed out so far.
func (n *Namespace) Allocated() (registered int, highWater uint32) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.pidToTid), n.nextPID - 1
}

// IsAncestorOf walks other's parent chain using identity comparison,
// reporting whether n appears in it.
func (n *Namespace) IsAncestorOf(other *Namespace) bool {
	for cur := other.parent; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// TaskPidNrNs returns tid's PID as visible in ns, or 0 if tid isn't
// registered there.
func TaskPidNrNs(tid vfs.TaskID, ns *Namespace) uint32 {
	pid, ok := ns.GetPid(tid)
	if !ok {
		return 0
	}
	return pid
}

// TaskPidNr returns tid's PID in the root namespace.
func TaskPidNr(tid vfs.TaskID) uint32 {
	return TaskPidNrNs(tid, Root)
}

// FindTaskByPidNs looks up the task owning pid within ns.
func FindTaskByPidNs(pid uint32, ns *Namespace) (vfs.TaskID, bool) {
	return ns.GetTid(pid)
}

// RegisterTaskPids registers tid in ns and, walking ns's ancestors, in
// every ancestor too, each with its own freshly allocated PID.
func RegisterTaskPids(tid vfs.TaskID, ns *Namespace) error {
	for cur := ns; cur != nil; cur = cur.parent {
		pid, err := cur.AllocPID()
		if err != nil {
			return err
		}
		cur.Register(pid, tid)
	}
	return nil
}

// UnregisterTaskPids removes tid from ns and every ancestor.
func UnregisterTaskPids(tid vfs.TaskID, ns *Namespace) {
	for cur := ns; cur != nil; cur = cur.parent {
		cur.Unregister(tid)
	}
}
