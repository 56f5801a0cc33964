package ipv4_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/ipv4"
)

func addr(a, b, c, d byte) ipv4.Addr {
	return ipv4.FromBytes([4]byte{a, b, c, d})
}

func TestAddrRoundTrip(t *testing.T) {
	octets := [4]byte{10, 1, 2, 3}
	a := ipv4.FromBytes(octets)
	assert.Equal(t, a.Bytes(), octets)
}

func TestRouteLongestPrefix(t *testing.T) {
	table := ipv4.NewTable()
	table.AddInterfaceRoute(addr(10, 0, 0, 0), addr(255, 0, 0, 0), "devA", 0)
	table.AddInterfaceRoute(addr(10, 1, 0, 0), addr(255, 255, 0, 0), "devB", 0)
	table.AddDefaultRoute(addr(10, 0, 0, 1), "devC", 0)

	dev, hop, err := table.Lookup(addr(10, 1, 2, 3))
	assert.NilError(t, err)
	assert.Equal(t, dev, "devB")
	assert.Equal(t, hop, addr(10, 1, 2, 3))

	dev, hop, err = table.Lookup(addr(10, 2, 2, 3))
	assert.NilError(t, err)
	assert.Equal(t, dev, "devA")
	assert.Equal(t, hop, addr(10, 2, 2, 3))

	dev, hop, err = table.Lookup(addr(8, 8, 8, 8))
	assert.NilError(t, err)
	assert.Equal(t, dev, "devC")
	assert.Equal(t, hop, addr(10, 0, 0, 1))
}

func TestLookupNoRoute(t *testing.T) {
	table := ipv4.NewTable()
	_, _, err := table.Lookup(addr(1, 2, 3, 4))
	assert.ErrorContains(t, err, "no route")
}

func TestClear(t *testing.T) {
	table := ipv4.NewTable()
	table.AddHostRoute(addr(1, 1, 1, 1), ipv4.Zero, "dev0", 0)
	assert.Equal(t, len(table.Routes()), 1)
	table.Clear()
	assert.Equal(t, len(table.Routes()), 0)
}

func TestInsertionOrderTieBreak(t *testing.T) {
	table := ipv4.NewTable()
	table.AddInterfaceRoute(addr(10, 0, 0, 0), addr(255, 0, 0, 0), "first", 0)
	table.AddInterfaceRoute(addr(10, 0, 0, 0), addr(255, 0, 0, 0), "second", 0)
	dev, _, err := table.Lookup(addr(10, 5, 5, 5))
	assert.NilError(t, err)
	assert.Equal(t, dev, "first")
}
