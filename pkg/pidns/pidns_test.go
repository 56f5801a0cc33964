package pidns_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/pidns"
	"github.com/hk-project/hkgo/pkg/vfs"
)

func TestChildReaperOnFirstRegister(t *testing.T) {
	root, err := pidns.CloneNS(pidns.Root)
	assert.NilError(t, err)

	taskT := vfs.TaskID(42)
	assert.NilError(t, pidns.RegisterTaskPids(taskT, root))

	pid, ok := root.GetPid(taskT)
	assert.Assert(t, ok)
	assert.Equal(t, pid, uint32(1))

	reaper, ok := root.ChildReaper()
	assert.Assert(t, ok)
	assert.Equal(t, reaper, taskT)
}

func TestSecondRegisterGetsPid2(t *testing.T) {
	ns, err := pidns.CloneNS(pidns.Root)
	assert.NilError(t, err)

	pid1, _ := ns.AllocPID()
	ns.Register(pid1, vfs.TaskID(1))
	pid2, _ := ns.AllocPID()
	ns.Register(pid2, vfs.TaskID(2))

	assert.Equal(t, pid1, uint32(1))
	assert.Equal(t, pid2, uint32(2))
}

func TestTaskPidNrNsAndFindTaskByPidNs(t *testing.T) {
	child, err := pidns.CloneNS(pidns.Root)
	assert.NilError(t, err)

	taskT := vfs.TaskID(7)
	assert.NilError(t, pidns.RegisterTaskPids(taskT, child))

	rootPid := pidns.TaskPidNrNs(taskT, pidns.Root)
	assert.Assert(t, rootPid > 0)

	found, ok := pidns.FindTaskByPidNs(1, child)
	assert.Assert(t, ok)
	assert.Equal(t, found, taskT)

	pidns.UnregisterTaskPids(taskT, child)
	_, ok = child.GetPid(taskT)
	assert.Assert(t, !ok)
}

func TestIsAncestorOf(t *testing.T) {
	mid, err := pidns.CloneNS(pidns.Root)
	assert.NilError(t, err)
	leaf, err := pidns.CloneNS(mid)
	assert.NilError(t, err)

	assert.Assert(t, pidns.Root.IsAncestorOf(leaf))
	assert.Assert(t, mid.IsAncestorOf(leaf))
	assert.Assert(t, !leaf.IsAncestorOf(mid))
}

func TestMaxDepthEnforced(t *testing.T) {
	ns := pidns.Root
	var err error
	for i := 0; i < pidns.MaxLevel; i++ {
		ns, err = pidns.CloneNS(ns)
		assert.NilError(t, err)
	}
	_, err = pidns.CloneNS(ns)
	assert.ErrorContains(t, err, "max namespace depth")
}
