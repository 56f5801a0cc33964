package userns_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/userns"
	"github.com/hk-project/hkgo/pkg/vfs"
)

func TestSetMappingOnceThenEPERM(t *testing.T) {
	ns, err := userns.CloneNS(userns.Root, 1000, 1000)
	assert.NilError(t, err)

	extents := []userns.Extent{{FirstInThisNS: 0, FirstInParent: 1000, Count: 1}}
	assert.NilError(t, ns.SetUIDMap(extents))

	err = ns.SetUIDMap([]userns.Extent{{FirstInThisNS: 0, FirstInParent: 2000, Count: 1}})
	assert.ErrorIs(t, err, vfs.EPERM)
}

func TestSetMappingIdempotentIfIdentical(t *testing.T) {
	ns, err := userns.CloneNS(userns.Root, 1000, 1000)
	assert.NilError(t, err)

	extents := []userns.Extent{{FirstInThisNS: 0, FirstInParent: 1000, Count: 10}}
	assert.NilError(t, ns.SetUIDMap(extents))
	assert.NilError(t, ns.SetUIDMap(extents))
}

func TestOverlappingExtentsRejected(t *testing.T) {
	ns, err := userns.CloneNS(userns.Root, 1000, 1000)
	assert.NilError(t, err)

	overlapping := []userns.Extent{
		{FirstInThisNS: 0, FirstInParent: 1000, Count: 10},
		{FirstInThisNS: 5, FirstInParent: 2000, Count: 10},
	}
	err = ns.SetUIDMap(overlapping)
	assert.ErrorIs(t, err, vfs.EINVAL)
}

func TestMapIDRoundTrip(t *testing.T) {
	ns, err := userns.CloneNS(userns.Root, 1000, 1000)
	assert.NilError(t, err)
	assert.NilError(t, ns.SetUIDMap([]userns.Extent{{FirstInThisNS: 0, FirstInParent: 1000, Count: 10}}))

	parentUID, ok := ns.MapIDDown(3)
	assert.Assert(t, ok)
	assert.Equal(t, parentUID, uint32(1003))

	nsUID, ok := ns.MapIDUp(1003)
	assert.Assert(t, ok)
	assert.Equal(t, nsUID, uint32(3))
}

func TestToKuidFromKuidChain(t *testing.T) {
	mid, err := userns.CloneNS(userns.Root, 1000, 1000)
	assert.NilError(t, err)
	assert.NilError(t, mid.SetUIDMap([]userns.Extent{{FirstInThisNS: 0, FirstInParent: 1000, Count: 10}}))

	leaf, err := userns.CloneNS(mid, 0, 0)
	assert.NilError(t, err)
	assert.NilError(t, leaf.SetUIDMap([]userns.Extent{{FirstInThisNS: 0, FirstInParent: 0, Count: 10}}))

	kuid, ok := userns.ToKuid(leaf, 3)
	assert.Assert(t, ok)
	assert.Equal(t, kuid, uint32(1003))

	back, ok := userns.FromKuid(leaf, 1003)
	assert.Assert(t, ok)
	assert.Equal(t, back, uint32(3))
}

func TestCanSetUIDGIDMap(t *testing.T) {
	ns, err := userns.CloneNS(userns.Root, 1000, 1000)
	assert.NilError(t, err)
	assert.Assert(t, ns.CanSetUIDGIDMap(0))
	assert.Assert(t, !ns.CanSetUIDGIDMap(1000))
}

func TestMaxDepth(t *testing.T) {
	ns := userns.Root
	var err error
	for i := 0; i < userns.MaxLevel; i++ {
		ns, err = userns.CloneNS(ns, 0, 0)
		assert.NilError(t, err)
	}
	_, err = userns.CloneNS(ns, 0, 0)
	assert.ErrorIs(t, err, vfs.EINVAL)
}
