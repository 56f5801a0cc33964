package eth_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/eth"
	"github.com/hk-project/hkgo/pkg/pbuf"
)

func TestEtherTypeRoundTrip(t *testing.T) {
	for v := 0; v <= 0xFFFF; v += 997 {
		want := uint16(v)
		got := eth.FromBE(want).ToBE()
		assert.Equal(t, got, want)
	}
}

func TestEtherTypeKnownValues(t *testing.T) {
	assert.Equal(t, eth.FromBE(0x0800), eth.IPv4)
	assert.Equal(t, eth.FromBE(0x0806), eth.ARP)
	assert.Equal(t, eth.FromBE(0x86DD), eth.IPv6)
	assert.Equal(t, eth.FromBE(0x8100), eth.VLAN)
}

func TestHeaderRoundTrip(t *testing.T) {
	p, err := pbuf.Allocate(eth.HdrLen, 0)
	assert.NilError(t, err)

	dst := eth.Addr{1, 2, 3, 4, 5, 6}
	src := eth.Addr{6, 5, 4, 3, 2, 1}
	assert.NilError(t, eth.Header(p, dst, src, eth.IPv4))

	h, err := eth.ParseHeader(p)
	assert.NilError(t, err)
	assert.Equal(t, h.Dst, dst)
	assert.Equal(t, h.Src, src)
	assert.Equal(t, h.Proto, eth.IPv4)
}

func TestTypeTransShortFrame(t *testing.T) {
	p, err := pbuf.Allocate(0, 10)
	assert.NilError(t, err)
	assert.Equal(t, eth.TypeTrans(p), eth.Unknown(0))
}

func TestBroadcastAndMulticast(t *testing.T) {
	assert.Assert(t, eth.Broadcast.IsBroadcast())
	assert.Assert(t, eth.Broadcast.IsMulticast())
	unicast := eth.Addr{0x02, 0, 0, 0, 0, 1}
	assert.Assert(t, !unicast.IsMulticast())
}

func TestFormatMAC(t *testing.T) {
	a := eth.Addr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	assert.Equal(t, a.String(), "aa:bb:cc:dd:ee:ff")
}
