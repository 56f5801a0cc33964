/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package tcp

import "sync"

// Table is the process-wide four-tuple connection table, used for RX
// demultiplex. It is guarded by a reader/writer lock so concurrent RX
// lookups never block behind each other.
type Table struct {
	mu    sync.RWMutex
	conns map[FourTuple]*TCB
}

// NewTable constructs an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[FourTuple]*TCB)}
}

// Insert adds or replaces the TCB for its four-tuple.
func (t *Table) Insert(tcb *TCB) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[tcb.Tuple] = tcb
}

// Lookup finds the TCB owning a four-tuple, if any.
func (t *Table) Lookup(tuple FourTuple) (*TCB, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tcb, ok := t.conns[tuple]
	return tcb, ok
}

// Remove deletes the entry for a four-tuple.
func (t *Table) Remove(tuple FourTuple) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, tuple)
}

// Len reports the number of tracked connections, for metrics export.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// CountByState reports how many tracked connections are in each state,
// for the kernel-internal counters exported by pkg/exporter.
func (t *Table) CountByState() map[State]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[State]int)
	for _, tcb := range t.conns {
		counts[tcb.State()]++
	}
	return counts
}
