/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package tcp implements the kernel's TCP control block, four-tuple
// connection table, and the state machine driving segment input and
// output, following RFC 793 sequence-number arithmetic throughout.
package tcp

import (
	"sync"

	"github.com/rs/xid"

	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// State is one of the eleven TCP connection states.
type State int

const (
	Closed State = iota
	Listen
	SynSent
	SynReceived
	Established
	FinWait1
	FinWait2
	CloseWait
	Closing
	LastAck
	TimeWait
)

func (s State) String() string {
	switch s {
	case Listen:
		return "LISTEN"
	case SynSent:
		return "SYN_SENT"
	case SynReceived:
		return "SYN_RECEIVED"
	case Established:
		return "ESTABLISHED"
	case FinWait1:
		return "FIN_WAIT_1"
	case FinWait2:
		return "FIN_WAIT_2"
	case CloseWait:
		return "CLOSE_WAIT"
	case Closing:
		return "CLOSING"
	case LastAck:
		return "LAST_ACK"
	case TimeWait:
		return "TIME_WAIT"
	default:
		return "CLOSED"
	}
}

// Flags is the TCP header control-bit mask.
type Flags uint8

const (
	FlagFIN Flags = 0x01
	FlagSYN Flags = 0x02
	FlagRST Flags = 0x04
	FlagPSH Flags = 0x08
	FlagACK Flags = 0x10
	FlagURG Flags = 0x20
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// FourTuple is the connection-table key.
type FourTuple struct {
	LocalAddr  ipv4.Addr
	LocalPort  uint16
	RemoteAddr ipv4.Addr
	RemotePort uint16
}

// Segment is a parsed/to-be-built TCP segment carried between the TCB
// and the IPv4 layer. Building the wire bytes is Output's job; this is
// the in-memory shape the state machine operates on.
type Segment struct {
	Tuple   FourTuple
	Seq     uint32
	Ack     uint32
	Flags   Flags
	Window  uint16
	Payload []byte
}

// RetransEntry is one outstanding, unacknowledged segment.
type RetransEntry struct {
	Seq  uint32
	Data []byte
}

// SeqLess reports modular signed-arithmetic a < b, per RFC 793 §3.3's
// comparison rule: (a - b) as a signed 32-bit value is negative.
func SeqLess(a, b uint32) bool { return int32(a-b) < 0 }

// SeqLessEq reports a <= b under modular arithmetic.
func SeqLessEq(a, b uint32) bool { return a == b || SeqLess(a, b) }

// EmitFn sends a fully-formed outgoing segment down to the IPv4 layer.
type EmitFn func(seg Segment)

// DeliverFn hands in-order payload bytes up to the socket's receive queue.
type DeliverFn func(payload []byte)

// WakeFn wakes whichever wait queue a state transition unblocks.
type WakeFn func()

// TCB is one TCP connection's control block. All sequence-affecting
// fields are serialized by mu, matching the per-TCB lock the spec
// requires for state transitions and sequence arithmetic.
type TCB struct {
	ID    xid.ID
	Tuple FourTuple

	mu    sync.Mutex
	state State

	ISS uint32
	IRS uint32

	SndUNA uint32
	SndNXT uint32
	SndWND uint16

	RcvNXT uint32
	RcvWND uint16

	Retransmit []RetransEntry
	OOO        map[uint32][]byte

	pendingErr vfs.Errno
	eof        bool

	// Emit, Deliver, WakeRX, WakeTX, WakeConnect are collaborator hooks
	// wired by the socket layer; all are safe to leave nil in tests that
	// only inspect state.
	Emit        EmitFn
	Deliver     DeliverFn
	WakeRX      WakeFn
	WakeTX      WakeFn
	WakeConnect WakeFn
}

// NewTCB constructs a TCB in the Closed state for the given four-tuple.
func NewTCB(tuple FourTuple) *TCB {
	return &TCB{
		ID:     xid.New(),
		Tuple:  tuple,
		state:  Closed,
		RcvWND: 65535,
		OOO:    make(map[uint32][]byte),
	}
}

// State returns the current connection state.
func (t *TCB) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *TCB) setState(s State) { t.state = s }

// PendingError returns and clears the sticky per-socket error, per the
// "sticky until read" contract.
func (t *TCB) PendingError() vfs.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.pendingErr
	t.pendingErr = 0
	return e
}

func (t *TCB) setError(e vfs.Errno) { t.pendingErr = e }

// PeekError reports the sticky error without consuming it, for
// poll()'s ERR bit which must not clear state a subsequent read relies on.
func (t *TCB) PeekError() vfs.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingErr
}

// EOF reports whether the connection has seen a FIN or shutdown(RD).
func (t *TCB) EOF() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eof
}

func (t *TCB) setEOF() { t.eof = true }

func (t *TCB) wake(fn WakeFn) {
	if fn != nil {
		fn()
	}
}

func (t *TCB) emit(flags Flags, payload []byte) {
	if t.Emit == nil {
		return
	}
	t.Emit(Segment{
		Tuple:   t.Tuple,
		Seq:     t.SndNXT,
		Ack:     t.RcvNXT,
		Flags:   flags | FlagACK,
		Window:  t.RcvWND,
		Payload: payload,
	})
}

// Connect drives an active open: allocates ISS, sends SYN, and
// transitions to SynSent.
func (t *TCB) Connect(iss uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ISS = iss
	t.SndUNA = iss
	t.SndNXT = iss + 1
	t.setState(SynSent)
	if t.Emit != nil {
		t.Emit(Segment{Tuple: t.Tuple, Seq: iss, Flags: FlagSYN, Window: t.RcvWND})
	}
}

// Close performs an active close: Established sends FIN and moves to
// FinWait1; CloseWait (peer already closed its side) sends FIN and
// moves to LastAck. Any other state is a no-op.
func (t *TCB) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Established:
		t.setState(FinWait1)
		t.emit(FlagFIN, nil)
		t.SndNXT++
	case CloseWait:
		t.setState(LastAck)
		t.emit(FlagFIN, nil)
		t.SndNXT++
	}
}

// PruneRetransmit removes every outstanding entry whose right edge
// (seq+len) is covered by ack, per the spec's retransmit-queue invariant.
func (t *TCB) PruneRetransmit(ack uint32) {
	kept := t.Retransmit[:0]
	for _, e := range t.Retransmit {
		rightEdge := e.Seq + uint32(len(e.Data))
		if SeqLessEq(rightEdge, ack) {
			continue
		}
		kept = append(kept, e)
	}
	t.Retransmit = kept
}
