/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package tcp

import (
	"encoding/binary"

	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// DefaultMSS is used when no path-MTU-derived value is available.
const DefaultMSS = 1460

// ErrWouldBlock is returned by SendMsg when the effective peer window is
// zero; the caller decides whether to suspend on the TX wait queue or
// surface EWOULDBLOCK/EAGAIN to a nonblocking writer.
var ErrWouldBlock = vfs.EWOULDBLOCK

// SendMsg slices data into segments bounded by mss and the peer's
// advertised window, advances SND.NXT, appends each segment to the
// retransmit queue, and emits it via the TCB's Emit hook.
func (t *TCB) SendMsg(data []byte, mss int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mss <= 0 {
		mss = DefaultMSS
	}

	window := int(t.SndWND) - int(t.SndNXT-t.SndUNA)
	if window <= 0 {
		return 0, ErrWouldBlock
	}

	sent := 0
	for sent < len(data) && window > 0 {
		n := mss
		if n > window {
			n = window
		}
		if n > len(data)-sent {
			n = len(data) - sent
		}
		chunk := make([]byte, n)
		copy(chunk, data[sent:sent+n])

		seq := t.SndNXT
		t.Retransmit = append(t.Retransmit, RetransEntry{Seq: seq, Data: chunk})
		t.SndNXT += uint32(n)
		sent += n
		window -= n

		if t.Emit != nil {
			t.Emit(Segment{
				Tuple:   t.Tuple,
				Seq:     seq,
				Ack:     t.RcvNXT,
				Flags:   FlagACK,
				Window:  t.RcvWND,
				Payload: chunk,
			})
		}
	}
	return sent, nil
}

// Checksum computes the standard 16-bit one's-complement sum over the
// TCP pseudo-header (src, dst, zero, protocol=6, segment length) and the
// segment itself. A zero result indicates a valid checksum on receive.
func Checksum(src, dst ipv4.Addr, segment []byte) uint16 {
	var sum uint32

	srcB := src.Bytes()
	dstB := dst.Bytes()
	sum += uint32(binary.BigEndian.Uint16(srcB[0:2]))
	sum += uint32(binary.BigEndian.Uint16(srcB[2:4]))
	sum += uint32(binary.BigEndian.Uint16(dstB[0:2]))
	sum += uint32(binary.BigEndian.Uint16(dstB[2:4]))
	sum += uint32(6) // protocol, zero-padded to 16 bits
	sum += uint32(len(segment))

	i := 0
	for ; i+1 < len(segment); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(segment[i : i+2]))
	}
	if i < len(segment) {
		sum += uint32(segment[i]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
