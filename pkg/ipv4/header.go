/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package ipv4

import (
	"encoding/binary"
	"fmt"

	"github.com/hk-project/hkgo/pkg/pbuf"
)

// HdrLen is the fixed IPv4 header length this stack emits and expects;
// options are never generated and are rejected on parse.
const HdrLen = 20

// ProtoTCP is the IPv4 protocol number carried for a TCP payload.
const ProtoTCP uint8 = 6

// Header is the parsed fixed-length IPv4 header.
type Header struct {
	TOS            uint8
	TotalLength    uint16
	Identification uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            Addr
	Dst            Addr
}

// Checksum computes the standard internet one's-complement checksum over
// data, padding an odd trailing byte with zero.
func Checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// ParseHeader reads the fixed 20-byte IPv4 header from the front of p's
// payload and strips it via Pull, returning the header; p's payload is
// then the transport-layer segment. Fragmentation and options are
// not supported: any non-zero flags/fragment-offset or IHL != 5 is a
// parse error, matching this stack's Non-goals.
func ParseHeader(p *pbuf.PB) (Header, error) {
	if p.Len() < HdrLen {
		return Header{}, fmt.Errorf("ipv4: short packet: %d bytes", p.Len())
	}
	raw := p.Data()
	verIHL := raw[0]
	if verIHL>>4 != 4 {
		return Header{}, fmt.Errorf("ipv4: not version 4: 0x%02x", verIHL)
	}
	if verIHL&0x0F != 5 {
		return Header{}, fmt.Errorf("ipv4: options not supported: ihl=%d", verIHL&0x0F)
	}
	flagsFrag := binary.BigEndian.Uint16(raw[6:8])
	if flagsFrag != 0 {
		return Header{}, fmt.Errorf("ipv4: fragmentation not supported: flags/frag=0x%04x", flagsFrag)
	}

	var h Header
	h.TOS = raw[1]
	h.TotalLength = binary.BigEndian.Uint16(raw[2:4])
	h.Identification = binary.BigEndian.Uint16(raw[4:6])
	h.TTL = raw[8]
	h.Protocol = raw[9]
	h.Checksum = binary.BigEndian.Uint16(raw[10:12])
	h.Src = FromBytes([4]byte(raw[12:16]))
	h.Dst = FromBytes([4]byte(raw[16:20]))

	if _, err := p.Pull(HdrLen); err != nil {
		return Header{}, err
	}
	return h, nil
}

// BuildHeader prepends a 20-byte IPv4 header ahead of p's current payload
// via p.Push, filling in the standard checksum over the header bytes.
// The caller must have reserved sufficient headroom at allocation.
func BuildHeader(p *pbuf.PB, src, dst Addr, protocol uint8, id uint16, ttl uint8) error {
	payloadLen := p.Len()
	buf, err := p.Push(HdrLen)
	if err != nil {
		return fmt.Errorf("ipv4: header: %w", err)
	}

	buf[0] = 0x45
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], uint16(HdrLen+payloadLen))
	binary.BigEndian.PutUint16(buf[4:6], id)
	binary.BigEndian.PutUint16(buf[6:8], 0)
	buf[8] = ttl
	buf[9] = protocol
	binary.BigEndian.PutUint16(buf[10:12], 0)
	srcBytes := src.Bytes()
	dstBytes := dst.Bytes()
	copy(buf[12:16], srcBytes[:])
	copy(buf[16:20], dstBytes[:])

	binary.BigEndian.PutUint16(buf[10:12], Checksum(buf[:HdrLen]))
	return nil
}
