/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package tcp

import (
	"encoding/binary"
	"fmt"

	"github.com/hk-project/hkgo/pkg/ipv4"
)

// HdrLen is the fixed TCP header length this stack emits and expects;
// options are never generated and are rejected on parse.
const HdrLen = 20

// BuildSegment renders seg as wire bytes: a 20-byte TCP header (with a
// pseudo-header checksum over src/dst) followed by the payload. src and
// dst are the enclosing IPv4 addresses, needed only for the checksum.
func BuildSegment(src, dst ipv4.Addr, seg Segment) []byte {
	raw := make([]byte, HdrLen+len(seg.Payload))

	binary.BigEndian.PutUint16(raw[0:2], seg.Tuple.LocalPort)
	binary.BigEndian.PutUint16(raw[2:4], seg.Tuple.RemotePort)
	binary.BigEndian.PutUint32(raw[4:8], seg.Seq)
	binary.BigEndian.PutUint32(raw[8:12], seg.Ack)
	raw[12] = 5 << 4
	raw[13] = byte(seg.Flags) & 0x3F
	binary.BigEndian.PutUint16(raw[14:16], seg.Window)
	binary.BigEndian.PutUint16(raw[16:18], 0) // checksum, filled below
	binary.BigEndian.PutUint16(raw[18:20], 0) // urgent pointer, unused

	copy(raw[HdrLen:], seg.Payload)

	binary.BigEndian.PutUint16(raw[16:18], Checksum(src, dst, raw))
	return raw
}

// ParseSegment decodes raw wire bytes into a Segment, filling in the
// four-tuple from src/dst plus the decoded ports. It verifies the
// pseudo-header checksum and rejects any header carrying options.
func ParseSegment(src, dst ipv4.Addr, raw []byte) (Segment, error) {
	if len(raw) < HdrLen {
		return Segment{}, fmt.Errorf("tcp: short segment: %d bytes", len(raw))
	}
	dataOffset := int(raw[12]>>4) * 4
	if dataOffset != HdrLen {
		return Segment{}, fmt.Errorf("tcp: options not supported: data offset %d", dataOffset)
	}
	if len(raw) < dataOffset {
		return Segment{}, fmt.Errorf("tcp: truncated segment: %d bytes, header claims %d", len(raw), dataOffset)
	}
	if Checksum(src, dst, raw) != 0 {
		return Segment{}, fmt.Errorf("tcp: checksum mismatch")
	}

	var seg Segment
	seg.Tuple = FourTuple{
		LocalAddr:  dst,
		LocalPort:  binary.BigEndian.Uint16(raw[2:4]),
		RemoteAddr: src,
		RemotePort: binary.BigEndian.Uint16(raw[0:2]),
	}
	seg.Seq = binary.BigEndian.Uint32(raw[4:8])
	seg.Ack = binary.BigEndian.Uint32(raw[8:12])
	seg.Flags = Flags(raw[13] & 0x3F)
	seg.Window = binary.BigEndian.Uint16(raw[14:16])
	if len(raw) > dataOffset {
		seg.Payload = append([]byte(nil), raw[dataOffset:]...)
	}
	return seg, nil
}
