/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package netstack wires pkg/pbuf, pkg/eth, pkg/ipv4 and pkg/tcp into one
// send/receive pipeline over a single vfs.NetDevice: the same "NIC -> PB
// -> Ethernet demux -> IPv4 delivery -> TCP input -> socket" path on
// receive, and "TCP output -> IPv4 build -> Ethernet build -> NIC" on
// send, that the rest of this module's packages only implement in
// isolation.
package netstack

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hk-project/hkgo/pkg/eth"
	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/pbuf"
	"github.com/hk-project/hkgo/pkg/tcp"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// ResolveFn resolves an IPv4 next hop to a link-layer address. ARP is out
// of scope; real stacks call into it, this one is handed a static or
// stub resolver by the caller.
type ResolveFn func(nextHop ipv4.Addr) (eth.Addr, error)

// Stack binds a NetDevice to this module's routing, connection and
// protocol state so TCB.Emit and inbound frames have somewhere to go.
type Stack struct {
	Dev     vfs.NetDevice
	DevAddr eth.Addr
	Routes  *ipv4.Table
	Conns   *tcp.Table
	Resolve ResolveFn

	log *logrus.Logger
}

// New constructs a Stack. logger may be nil, in which case
// logrus.StandardLogger() is used.
func New(dev vfs.NetDevice, devAddr eth.Addr, routes *ipv4.Table, conns *tcp.Table, resolve ResolveFn, logger *logrus.Logger) *Stack {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Stack{
		Dev:     dev,
		DevAddr: devAddr,
		Routes:  routes,
		Conns:   conns,
		Resolve: resolve,
		log:     logger,
	}
}

// DeliverFrame is the NIC's inbound callback: it demultiplexes an
// Ethernet frame down to a TCP segment and dispatches it to whichever
// TCB owns the segment's four-tuple, matching the spec's
// NIC->PB->Ethernet->IPv4->TCP input chain. A frame carrying an
// unsupported EtherType, a malformed IPv4/TCP header, or a segment with
// no matching connection is a protocol violation: it is logged at debug
// level and silently dropped, never returned as an error.
func (s *Stack) DeliverFrame(frame []byte) error {
	p, err := pbuf.Allocate(0, len(frame))
	if err != nil {
		return fmt.Errorf("netstack: allocate rx buffer: %w", err)
	}
	if err := p.PutSlice(frame); err != nil {
		return fmt.Errorf("netstack: copy rx frame: %w", err)
	}

	ethHdr, err := eth.ParseHeader(p)
	if err != nil {
		s.log.WithError(err).Debug("netstack: dropping short frame")
		return nil
	}
	if ethHdr.Proto != eth.IPv4 {
		s.log.WithField("etherType", ethHdr.Proto).Debug("netstack: dropping non-IPv4 frame")
		return nil
	}
	if _, err := p.Pull(eth.HdrLen); err != nil {
		s.log.WithError(err).Debug("netstack: dropping frame: pulling Ethernet header")
		return nil
	}

	ipHdr, err := ipv4.ParseHeader(p)
	if err != nil {
		s.log.WithError(err).Debug("netstack: dropping malformed IPv4 packet")
		return nil
	}
	if ipHdr.Protocol != ipv4.ProtoTCP {
		s.log.WithField("protocol", ipHdr.Protocol).Debug("netstack: dropping non-TCP packet")
		return nil
	}

	seg, err := tcp.ParseSegment(ipHdr.Src, ipHdr.Dst, p.Data())
	if err != nil {
		s.log.WithError(err).Debug("netstack: dropping malformed TCP segment")
		return nil
	}

	tcb, ok := s.Conns.Lookup(seg.Tuple)
	if !ok {
		s.log.WithField("tuple", seg.Tuple).Debug("netstack: dropping segment for unknown connection")
		return nil
	}
	tcb.Input(seg)
	return nil
}

// Send is installed as a TCB's Emit hook: it routes the segment, resolves
// the next hop's link-layer address, builds the Ethernet/IPv4/TCP frame
// and hands it to the NIC, matching the spec's TCP output -> IPv4 build
// -> routing lookup -> Ethernet build -> NIC chain.
func (s *Stack) Send(seg tcp.Segment) {
	device, nextHop, err := s.Routes.Lookup(seg.Tuple.RemoteAddr)
	if err != nil {
		s.log.WithError(err).WithField("tuple", seg.Tuple).Warn("netstack: no route for outbound segment")
		return
	}
	if device != s.Dev.Name() {
		s.log.WithField("device", device).Warn("netstack: route resolves to an unattached device")
		return
	}

	dstMAC, err := s.Resolve(nextHop)
	if err != nil {
		s.log.WithError(err).WithField("nextHop", nextHop).Warn("netstack: link-layer resolution failed")
		return
	}

	wire := tcp.BuildSegment(seg.Tuple.LocalAddr, seg.Tuple.RemoteAddr, seg)

	p, err := pbuf.AllocTX(len(wire))
	if err != nil {
		s.log.WithError(err).Warn("netstack: allocate tx buffer")
		return
	}
	if err := p.PutSlice(wire); err != nil {
		s.log.WithError(err).Warn("netstack: copy tx segment")
		return
	}
	if err := ipv4.BuildHeader(p, seg.Tuple.LocalAddr, seg.Tuple.RemoteAddr, ipv4.ProtoTCP, 0, 64); err != nil {
		s.log.WithError(err).Warn("netstack: build ipv4 header")
		return
	}
	if err := eth.Header(p, dstMAC, s.DevAddr, eth.IPv4); err != nil {
		s.log.WithError(err).Warn("netstack: build ethernet header")
		return
	}

	if err := s.Dev.Transmit(p.Data()); err != nil {
		s.log.WithError(err).Warn("netstack: transmit failed")
	}
}
