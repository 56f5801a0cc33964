/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package socket

import (
	"encoding/binary"
	"fmt"

	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// SockAddrInLen is sizeof(struct sockaddr_in): family(2) + port(2) +
// addr(4) + 8 bytes of padding.
const SockAddrInLen = 16

// SockAddrIn is the AF_INET member of the sockaddr union.
type SockAddrIn struct {
	Addr ipv4.Addr
	Port uint16
}

// EncodeSockAddrIn serializes addr using the on-wire layout: family is
// little-endian (host byte order), port and address are big-endian.
func EncodeSockAddrIn(addr SockAddrIn) []byte {
	buf := make([]byte, SockAddrInLen)
	binary.LittleEndian.PutUint16(buf[0:2], AFInet)
	binary.BigEndian.PutUint16(buf[2:4], addr.Port)
	octets := addr.Addr.Bytes()
	copy(buf[4:8], octets[:])
	return buf
}

// DecodeSockAddrIn parses a raw sockaddr_in, validating its length and
// address family.
func DecodeSockAddrIn(raw []byte) (SockAddrIn, error) {
	if len(raw) < SockAddrInLen {
		return SockAddrIn{}, vfs.EINVAL
	}
	family := binary.LittleEndian.Uint16(raw[0:2])
	if family != AFInet {
		return SockAddrIn{}, vfs.EAFNOSUPPORT
	}
	port := binary.BigEndian.Uint16(raw[2:4])
	var octets [4]byte
	copy(octets[:], raw[4:8])
	return SockAddrIn{Addr: ipv4.FromBytes(octets), Port: port}, nil
}

func (s SockAddrIn) String() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.Port)
}
