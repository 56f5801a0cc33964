/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package eth implements DIX-II Ethernet frame parsing and construction:
// header layout, EtherType demultiplexing, and MAC address formatting.
package eth

import (
	"encoding/binary"
	"fmt"

	"github.com/hk-project/hkgo/pkg/pbuf"
)

const (
	AddrLen  = 6
	HdrLen   = 14
	ZLen     = 60
	DataLen  = 1500
	FrameLen = 1514
)

// Addr is a 6-byte MAC address.
type Addr [AddrLen]byte

// Broadcast is the all-ones link-layer broadcast address.
var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IsMulticast reports whether bit 0 of the first octet is set.
func (a Addr) IsMulticast() bool { return a[0]&0x01 != 0 }

// IsBroadcast reports whether a equals the all-ones address.
func (a Addr) IsBroadcast() bool { return a == Broadcast }

// String renders the address as colon-separated hex, e.g. "aa:bb:cc:dd:ee:ff".
func (a Addr) String() string {
	return formatMAC(a)
}

func formatMAC(a Addr) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// EtherType is the 802.3/DIX protocol discriminator carried in the
// Ethernet header. It round-trips through its big-endian wire encoding.
type EtherType struct {
	kind    etherKind
	unknown uint16
}

type etherKind int

const (
	kindIPv4 etherKind = iota
	kindARP
	kindIPv6
	kindVLAN
	kindUnknown
)

var (
	IPv4 = EtherType{kind: kindIPv4}
	ARP  = EtherType{kind: kindARP}
	IPv6 = EtherType{kind: kindIPv6}
	VLAN = EtherType{kind: kindVLAN}
)

// Unknown constructs an EtherType carrying an unrecognized wire value.
func Unknown(v uint16) EtherType { return EtherType{kind: kindUnknown, unknown: v} }

const (
	wireIPv4 uint16 = 0x0800
	wireARP  uint16 = 0x0806
	wireIPv6 uint16 = 0x86DD
	wireVLAN uint16 = 0x8100
)

// FromBE decodes a big-endian on-wire EtherType value.
func FromBE(v uint16) EtherType {
	switch v {
	case wireIPv4:
		return IPv4
	case wireARP:
		return ARP
	case wireIPv6:
		return IPv6
	case wireVLAN:
		return VLAN
	default:
		return Unknown(v)
	}
}

// ToBE encodes the EtherType back to its big-endian on-wire value.
func (e EtherType) ToBE() uint16 {
	switch e.kind {
	case kindIPv4:
		return wireIPv4
	case kindARP:
		return wireARP
	case kindIPv6:
		return wireIPv6
	case kindVLAN:
		return wireVLAN
	default:
		return e.unknown
	}
}

func (e EtherType) String() string {
	switch e.kind {
	case kindIPv4:
		return "IPv4"
	case kindARP:
		return "ARP"
	case kindIPv6:
		return "IPv6"
	case kindVLAN:
		return "VLAN"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", e.unknown)
	}
}

// Hdr is the parsed 14-byte Ethernet header.
type Hdr struct {
	Dst   Addr
	Src   Addr
	Proto EtherType
}

// TypeTrans inspects p's payload and returns the frame's EtherType without
// advancing data; it returns Unknown(0) when fewer than HdrLen bytes are
// present. Callers strip the header themselves via p.Pull(HdrLen).
func TypeTrans(p *pbuf.PB) EtherType {
	if p.Len() < HdrLen {
		return Unknown(0)
	}
	raw := p.Data()
	return FromBE(binary.BigEndian.Uint16(raw[12:14]))
}

// ParseHeader reads the 14-byte header from the front of p's payload
// without consuming it.
func ParseHeader(p *pbuf.PB) (Hdr, error) {
	if p.Len() < HdrLen {
		return Hdr{}, fmt.Errorf("eth: short frame: %d bytes", p.Len())
	}
	raw := p.Data()
	var h Hdr
	copy(h.Dst[:], raw[0:6])
	copy(h.Src[:], raw[6:12])
	h.Proto = FromBE(binary.BigEndian.Uint16(raw[12:14]))
	return h, nil
}

// Header prepends a 14-byte Ethernet header via p.Push(HdrLen). The caller
// is responsible for having reserved sufficient headroom at allocation.
func Header(p *pbuf.PB, dst, src Addr, proto EtherType) error {
	buf, err := p.Push(HdrLen)
	if err != nil {
		return fmt.Errorf("eth: header: %w", err)
	}
	copy(buf[0:6], dst[:])
	copy(buf[6:12], src[:])
	binary.BigEndian.PutUint16(buf[12:14], proto.ToBE())
	return nil
}
