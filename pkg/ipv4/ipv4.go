/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package ipv4 implements the 32-bit IPv4 address type and the kernel's
// routing table: longest-prefix-match lookup with insertion-order
// tie-breaking, modelled one-for-one on the in-kernel ROUTING_TABLE.
package ipv4

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

// Addr is a 32-bit IPv4 address stored in host byte order.
type Addr uint32

// Zero is the unspecified address 0.0.0.0.
const Zero Addr = 0

// FromBytes parses 4 big-endian octets into an Addr.
func FromBytes(b [4]byte) Addr {
	return Addr(binary.BigEndian.Uint32(b[:]))
}

// Bytes serializes the address as 4 big-endian octets.
func (a Addr) Bytes() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(a))
	return b
}

// IsUnspecified reports whether the address is 0.0.0.0.
func (a Addr) IsUnspecified() bool { return a == Zero }

// Network returns a & mask.
func (a Addr) Network(mask Addr) Addr { return a & mask }

func (a Addr) String() string {
	b := a.Bytes()
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// PrefixLen returns the number of leading one-bits in a netmask.
func PrefixLen(mask Addr) int { return bits.OnesCount32(uint32(mask)) }

// Route flag bits, mirroring the kernel's RTF_* bitmask.
const (
	RTFUp      uint32 = 0x0001
	RTFGateway uint32 = 0x0002
	RTFHost    uint32 = 0x0004
	RTFDynamic uint32 = 0x0010
	RTFDefault uint32 = 0x10000
)

// Route is a single routing-table entry.
type Route struct {
	Destination Addr
	Netmask     Addr
	Gateway     Addr
	Device      string
	Flags       uint32
	Metric      int
}

// Matches reports whether dest falls within this route's network.
func (r Route) Matches(dest Addr) bool {
	return dest.Network(r.Netmask) == r.Destination.Network(r.Netmask)
}

// PrefixLen returns the route's netmask prefix length.
func (r Route) PrefixLen() int { return PrefixLen(r.Netmask) }

// Table is the kernel's global routing table: an ordered sequence of
// routes, guarded by a reader/writer lock so RX lookups never block
// behind each other.
type Table struct {
	mu     sync.RWMutex
	routes []Route

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewTable constructs an empty routing table.
func NewTable() *Table {
	return &Table{}
}

// AddInterfaceRoute adds a directly-connected route for a local interface.
func (t *Table) AddInterfaceRoute(dest, mask Addr, device string, metric int) {
	t.add(Route{
		Destination: dest,
		Netmask:     mask,
		Gateway:     Zero,
		Device:      device,
		Flags:       RTFUp,
		Metric:      metric,
	})
}

// AddDefaultRoute installs the 0.0.0.0/0 default route via gateway.
func (t *Table) AddDefaultRoute(gateway Addr, device string, metric int) {
	t.add(Route{
		Destination: Zero,
		Netmask:     Zero,
		Gateway:     gateway,
		Device:      device,
		Flags:       RTFUp | RTFGateway | RTFDefault,
		Metric:      metric,
	})
}

// AddHostRoute adds a /32 route to a single host.
func (t *Table) AddHostRoute(dest, gateway Addr, device string, metric int) {
	flags := RTFUp | RTFHost
	if !gateway.IsUnspecified() {
		flags |= RTFGateway
	}
	t.add(Route{
		Destination: dest,
		Netmask:     Addr(0xFFFFFFFF),
		Gateway:     gateway,
		Device:      device,
		Flags:       flags,
		Metric:      metric,
	})
}

func (t *Table) add(r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, r)
}

// Clear removes every route. There is no other removal mechanism.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = nil
}

// Routes returns a snapshot copy of the routing table in insertion order.
func (t *Table) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Lookup selects the route with the greatest prefix length among those
// matching dest, breaking ties by insertion order. It returns the
// resolved output device and next-hop address.
func (t *Table) Lookup(dest Addr) (device string, nextHop Addr, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	best := -1
	bestPrefix := -1
	for i, r := range t.routes {
		if !r.Matches(dest) {
			continue
		}
		p := r.PrefixLen()
		if p > bestPrefix {
			bestPrefix = p
			best = i
		}
	}
	if best < 0 {
		t.misses.Add(1)
		return "", 0, fmt.Errorf("ipv4: no route to %s", dest)
	}
	t.hits.Add(1)
	r := t.routes[best]
	if !r.Gateway.IsUnspecified() {
		return r.Device, r.Gateway, nil
	}
	return r.Device, dest, nil
}

// Stats returns the cumulative Lookup hit and miss counts, for export as
// kernel routing counters.
func (t *Table) Stats() (hits, misses uint64) {
	return t.hits.Load(), t.misses.Load()
}
