package netstack_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/eth"
	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/netstack"
	"github.com/hk-project/hkgo/pkg/pbuf"
	"github.com/hk-project/hkgo/pkg/tcp"
)

func staticResolve(mac eth.Addr) netstack.ResolveFn {
	return func(ipv4.Addr) (eth.Addr, error) { return mac, nil }
}

// captureDevice records every frame handed to Transmit instead of
// sending it anywhere, so a test can inspect the built wire bytes.
type captureDevice struct {
	name   string
	frames [][]byte
}

func (d *captureDevice) Name() string { return d.name }
func (d *captureDevice) Transmit(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.frames = append(d.frames, cp)
	return nil
}

func newTestStack(dev *captureDevice, devMAC eth.Addr) (*netstack.Stack, *ipv4.Table, *tcp.Table) {
	routes := ipv4.NewTable()
	conns := tcp.NewTable()
	local := ipv4.FromBytes([4]byte{10, 0, 0, 1})
	routes.AddInterfaceRoute(local.Network(ipv4.Addr(0xFFFFFF00)), ipv4.Addr(0xFFFFFF00), dev.name, 0)
	return netstack.New(dev, devMAC, routes, conns, staticResolve(devMAC), nil), routes, conns
}

// TestSendBuildsWireFrame exercises Stack.Send, installed as a TCB's Emit
// hook: it should route the segment, resolve the next hop, and hand the
// NIC a fully-formed Ethernet/IPv4/TCP frame that decodes back to the
// same segment.
func TestSendBuildsWireFrame(t *testing.T) {
	local := ipv4.FromBytes([4]byte{10, 0, 0, 1})
	remote := ipv4.FromBytes([4]byte{10, 0, 0, 2})
	dev := &captureDevice{name: "lo0"}
	devMAC := eth.Addr{0x02, 0, 0, 0, 0, 1}
	stack, _, conns := newTestStack(dev, devMAC)

	tuple := tcp.FourTuple{LocalAddr: local, LocalPort: 1000, RemoteAddr: remote, RemotePort: 2000}
	tcb := tcp.NewTCB(tuple)
	tcb.Emit = stack.Send
	conns.Insert(tcb)

	tcb.Connect(5000)
	assert.Equal(t, len(dev.frames), 1)

	p, err := pbuf.Allocate(0, len(dev.frames[0]))
	assert.NilError(t, err)
	assert.NilError(t, p.PutSlice(dev.frames[0]))

	ethHdr, err := eth.ParseHeader(p)
	assert.NilError(t, err)
	assert.Equal(t, ethHdr.Dst, devMAC)
	assert.Equal(t, ethHdr.Proto, eth.IPv4)
	_, err = p.Pull(eth.HdrLen)
	assert.NilError(t, err)

	ipHdr, err := ipv4.ParseHeader(p)
	assert.NilError(t, err)
	assert.Equal(t, ipHdr.Src, local)
	assert.Equal(t, ipHdr.Dst, remote)
	assert.Equal(t, ipHdr.Protocol, ipv4.ProtoTCP)

	// ParseSegment reads a frame from its destination's point of view, so
	// the wire's source/destination ports come back swapped relative to
	// the sender's own Local/Remote labels.
	seg, err := tcp.ParseSegment(ipHdr.Src, ipHdr.Dst, p.Data())
	assert.NilError(t, err)
	assert.Equal(t, seg.Seq, uint32(5000))
	assert.Assert(t, seg.Flags.Has(tcp.FlagSYN))
	assert.Equal(t, seg.Tuple.LocalPort, uint16(2000))
	assert.Equal(t, seg.Tuple.RemotePort, uint16(1000))
}

// TestDeliverFrameDispatchesToMatchingConnection exercises the receive
// path: a raw frame built independently of the Stack decodes down to a
// TCP segment and is handed to whichever TCB Table.Lookup finds for its
// four-tuple.
func TestDeliverFrameDispatchesToMatchingConnection(t *testing.T) {
	local := ipv4.FromBytes([4]byte{10, 0, 0, 1})
	remote := ipv4.FromBytes([4]byte{10, 0, 0, 2})
	dev := &captureDevice{name: "lo0"}
	devMAC := eth.Addr{0x02, 0, 0, 0, 0, 1}
	stack, _, conns := newTestStack(dev, devMAC)

	tuple := tcp.FourTuple{LocalAddr: local, LocalPort: 1000, RemoteAddr: remote, RemotePort: 2000}
	tcb := tcp.NewTCB(tuple)
	tcb.Connect(1000)
	conns.Insert(tcb)

	// BuildSegment writes Tuple.LocalPort/RemotePort as the wire's
	// source/destination ports; to build a frame arriving FROM remote
	// port 2000 TO our port 1000, the "wire sender" tuple below has to
	// carry the ports in the wire's src/dst order, not the receiving
	// TCB's own Local/Remote labels.
	wireTuple := tcp.FourTuple{LocalAddr: remote, LocalPort: 2000, RemoteAddr: local, RemotePort: 1000}
	seg := tcp.Segment{Tuple: wireTuple, Seq: 5000, Ack: 1001, Flags: tcp.FlagSYN | tcp.FlagACK, Window: 65535}
	wire := tcp.BuildSegment(remote, local, seg)

	p, err := pbuf.AllocTX(len(wire))
	assert.NilError(t, err)
	assert.NilError(t, p.PutSlice(wire))
	assert.NilError(t, ipv4.BuildHeader(p, remote, local, ipv4.ProtoTCP, 0, 64))
	assert.NilError(t, eth.Header(p, devMAC, eth.Addr{0x02, 0, 0, 0, 0, 2}, eth.IPv4))

	assert.NilError(t, stack.DeliverFrame(p.Data()))
	assert.Equal(t, tcb.State(), tcp.Established)
}

// TestDeliverFrameDropsUnknownConnection is the protocol-violation path:
// a segment with no matching four-tuple is silently dropped, never
// returned as an error.
func TestDeliverFrameDropsUnknownConnection(t *testing.T) {
	local := ipv4.FromBytes([4]byte{10, 0, 0, 1})
	remote := ipv4.FromBytes([4]byte{10, 0, 0, 2})
	dev := &captureDevice{name: "lo0"}
	devMAC := eth.Addr{0x02, 0, 0, 0, 0, 1}
	stack, _, _ := newTestStack(dev, devMAC)

	seg := tcp.Segment{
		Tuple: tcp.FourTuple{LocalAddr: local, LocalPort: 9999, RemoteAddr: remote, RemotePort: 2000},
		Seq:   1, Ack: 1, Flags: tcp.FlagACK, Window: 65535,
	}
	wire := tcp.BuildSegment(remote, local, seg)

	p, err := pbuf.AllocTX(len(wire))
	assert.NilError(t, err)
	assert.NilError(t, p.PutSlice(wire))
	assert.NilError(t, ipv4.BuildHeader(p, remote, local, ipv4.ProtoTCP, 0, 64))
	assert.NilError(t, eth.Header(p, devMAC, eth.Addr{0x02, 0, 0, 0, 0, 2}, eth.IPv4))

	assert.NilError(t, stack.DeliverFrame(p.Data()))
}
