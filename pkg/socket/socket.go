/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package socket implements the POSIX-style socket syscall surface
// (socket/bind/connect/listen/accept-stub/shutdown/getsockname/
// getpeername/setsockopt/getsockopt/sendto/recvfrom/poll) over the
// simulated pkg/tcp state machine, with a sticky per-socket error the
// way a real kernel's struct sock does.
package socket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/tcp"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// Address family / socket type constants, mirroring the real Linux ABI
// values since the syscall surface is POSIX-shaped.
const (
	AFInet = 2

	SockStream   = 1
	SockNonblock = 0x800
	SockCloexec  = 0x80000
)

// setsockopt/getsockopt level and option constants.
const (
	SolSocket = 1
	SoError   = 4
)

// shutdown() how values.
const (
	ShutdownRead  = 0
	ShutdownWrite = 1
	ShutdownBoth  = 2
)

// Table is the process-wide four-tuple connection table backing every
// socket created through this package.
var Table = tcp.NewTable()

var nextEphemeralPort uint32 = 32768

// emitHook is the hook installed on every new TCB's Emit field; nil until
// UseStack is called, matching the rest of this package's "hooks are
// safe to leave nil" contract for tests that never drive a real network.
var emitHook tcp.EmitFn

// UseStack wires fn as the Emit hook for every TCB this package creates
// from this point on (both Connect's active-open path and Listen's
// passive-open path), so SYNs, ACKs, data and FINs actually reach
// whatever sends frames — typically a pkg/netstack.Stack's Send method.
func UseStack(fn tcp.EmitFn) {
	emitHook = fn
}

// Socket is one open socket's kernel-side state.
type Socket struct {
	mu sync.Mutex

	family, typ, protocol int
	nonblocking           bool
	closeOnExec           bool

	tcb *tcp.TCB

	localAddr, remoteAddr ipv4.Addr
	localPort, remotePort uint16
	bound                 bool

	rxMu sync.Mutex
	rx   []byte

	rxWait      *condWaitQueue
	txWait      *condWaitQueue
	connectWait *condWaitQueue

	pendingErr vfs.Errno
	eof        bool
}

var (
	tableMu sync.RWMutex
	fdTable = map[int32]*Socket{}
	nextFD  int32 = 3
)

// New creates and registers a socket, validating domain/type/protocol
// per the syscall table: AF_INET only, SOCK_STREAM only, protocol 0 or
// 6. typ may carry SOCK_NONBLOCK/SOCK_CLOEXEC bits.
func New(domain, typ, protocol int) (int32, error) {
	if domain != AFInet {
		return -1, vfs.EAFNOSUPPORT
	}
	base := typ &^ (SockNonblock | SockCloexec)
	if base != SockStream {
		return -1, vfs.ESOCKTNOSUPPORT
	}
	if protocol != 0 && protocol != 6 {
		return -1, vfs.EPROTONOSUPPORT
	}

	s := &Socket{
		family:      domain,
		typ:         base,
		protocol:    protocol,
		nonblocking: typ&SockNonblock != 0,
		closeOnExec: typ&SockCloexec != 0,
		rxWait:      newCondWaitQueue(),
		txWait:      newCondWaitQueue(),
		connectWait: newCondWaitQueue(),
	}

	tableMu.Lock()
	fd := nextFD
	nextFD++
	fdTable[fd] = s
	tableMu.Unlock()
	return fd, nil
}

func lookup(fd int32) (*Socket, error) {
	tableMu.RLock()
	defer tableMu.RUnlock()
	s, ok := fdTable[fd]
	if !ok {
		return nil, vfs.EBADF
	}
	return s, nil
}

// Close drops a socket's file-descriptor reference, initiating TCP close.
func Close(fd int32) error {
	s, err := lookup(fd)
	if err != nil {
		return err
	}
	tableMu.Lock()
	delete(fdTable, fd)
	tableMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcb != nil {
		s.tcb.Close()
		Table.Remove(s.tcb.Tuple)
	}
	return nil
}

// Bind records the socket's local address and port.
func Bind(fd int32, raw []byte) error {
	s, err := lookup(fd)
	if err != nil {
		return err
	}
	if len(raw) < SockAddrInLen {
		return vfs.EINVAL
	}
	addr, err := DecodeSockAddrIn(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localAddr = addr.Addr
	s.localPort = addr.Port
	s.bound = true
	return nil
}

func allocEphemeralPort() uint16 {
	return uint16(atomic.AddUint32(&nextEphemeralPort, 1))
}

// newTCB constructs a TCB for tuple and wires every collaborator hook a
// real connection needs: the wait queues, the receive-buffer Deliver
// sink, and Emit, so both the active-open (Connect) and passive-open
// (Listen) paths actually transmit rather than talking only to
// unit-test fakes.
func (s *Socket) newTCB(tuple tcp.FourTuple) *tcp.TCB {
	tcb := tcp.NewTCB(tuple)
	tcb.WakeConnect = s.connectWait.WakeAll
	tcb.WakeRX = s.rxWait.WakeAll
	tcb.WakeTX = s.txWait.WakeAll
	tcb.Deliver = func(p []byte) {
		s.rxMu.Lock()
		s.rx = append(s.rx, p...)
		s.rxMu.Unlock()
	}
	tcb.Emit = emitHook
	return tcb
}

// Connect initiates (or checks on) a TCP handshake. ctx bounds how long
// a blocking caller suspends on the connect wait queue.
func Connect(ctx context.Context, fd int32, raw []byte) error {
	s, err := lookup(fd)
	if err != nil {
		return err
	}
	addr, err := DecodeSockAddrIn(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.tcb != nil {
		switch s.tcb.State() {
		case tcp.Established:
			s.mu.Unlock()
			return vfs.EISCONN
		case tcp.SynSent, tcp.SynReceived:
			nonblocking := s.nonblocking
			s.mu.Unlock()
			if nonblocking {
				return vfs.EALREADY
			}
			return waitForConnect(ctx, s)
		}
	}

	if !s.bound {
		s.localPort = allocEphemeralPort()
	}
	s.remoteAddr = addr.Addr
	s.remotePort = addr.Port

	tuple := tcp.FourTuple{
		LocalAddr:  s.localAddr,
		LocalPort:  s.localPort,
		RemoteAddr: s.remoteAddr,
		RemotePort: s.remotePort,
	}
	tcb := s.newTCB(tuple)
	s.tcb = tcb
	nonblocking := s.nonblocking
	s.mu.Unlock()

	Table.Insert(tcb)
	tcb.Connect(1000)

	if nonblocking {
		return vfs.EINPROGRESS
	}
	return waitForConnect(ctx, s)
}

func waitForConnect(ctx context.Context, s *Socket) error {
	for {
		s.mu.Lock()
		tcb := s.tcb
		s.mu.Unlock()
		if tcb == nil {
			return vfs.ENOTCONN
		}
		state := tcb.State()
		if state == tcp.Established {
			return nil
		}
		if state == tcp.Closed {
			if e := tcb.PendingError(); e != 0 {
				return e
			}
			return vfs.ENOTCONN
		}
		if err := s.connectWait.Wait(ctx); err != nil {
			return err
		}
	}
}

// Listen gives a socket with no TCB yet (never connected) a TCB keyed by
// its local address and port and registers it in Table. The TCB stays in
// the Closed state; Listen does not move it to tcp.Listen, leaves an
// existing TCB unchanged, and Accept always fails with EOPNOTSUPP.
func Listen(fd int32, backlog int) error {
	s, err := lookup(fd)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcb == nil {
		tuple := tcp.FourTuple{LocalAddr: s.localAddr, LocalPort: s.localPort}
		s.tcb = s.newTCB(tuple)
		Table.Insert(s.tcb)
	}
	return nil
}

// Accept is not implemented; accept queue management is out of scope.
func Accept(fd int32) (int32, error) {
	if _, err := lookup(fd); err != nil {
		return -1, err
	}
	return -1, vfs.EOPNOTSUPP
}

// Shutdown implements how=0 (read), how=1 (write/close), how=2 (both).
func Shutdown(fd int32, how int) error {
	s, err := lookup(fd)
	if err != nil {
		return err
	}
	switch how {
	case ShutdownRead:
		s.mu.Lock()
		s.eof = true
		s.mu.Unlock()
		s.rxWait.WakeAll()
	case ShutdownWrite:
		s.mu.Lock()
		tcb := s.tcb
		s.mu.Unlock()
		if tcb != nil {
			tcb.Close()
		}
	case ShutdownBoth:
		if err := Shutdown(fd, ShutdownRead); err != nil {
			return err
		}
		return Shutdown(fd, ShutdownWrite)
	default:
		return vfs.EINVAL
	}
	return nil
}

// GetSockName returns the bound local address.
func GetSockName(fd int32) (SockAddrIn, error) {
	s, err := lookup(fd)
	if err != nil {
		return SockAddrIn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return SockAddrIn{Addr: s.localAddr, Port: s.localPort}, nil
}

// GetPeerName returns the connected remote address, or ENOTCONN.
func GetPeerName(fd int32) (SockAddrIn, error) {
	s, err := lookup(fd)
	if err != nil {
		return SockAddrIn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcb == nil {
		return SockAddrIn{}, vfs.ENOTCONN
	}
	return SockAddrIn{Addr: s.remoteAddr, Port: s.remotePort}, nil
}

// SetSockOpt is accepted and ignored for every option.
func SetSockOpt(fd int32, level, opt int, value []byte) error {
	_, err := lookup(fd)
	return err
}

// GetSockOpt implements SOL_SOCKET/SO_ERROR: return and clear the
// pending error. Other options return EOPNOTSUPP.
func GetSockOpt(fd int32, level, opt int) (int, error) {
	s, err := lookup(fd)
	if err != nil {
		return 0, err
	}
	if level != SolSocket || opt != SoError {
		return 0, vfs.EOPNOTSUPP
	}
	s.mu.Lock()
	tcb := s.tcb
	s.mu.Unlock()
	if tcb == nil {
		return 0, nil
	}
	return int(tcb.PendingError()), nil
}

// SendTo delegates to tcp_sendmsg; a would-block on a blocking socket
// suspends on the TX wait queue and retries once.
func SendTo(ctx context.Context, fd int32, buf []byte) (int, error) {
	s, err := lookup(fd)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	tcb := s.tcb
	nonblocking := s.nonblocking
	s.mu.Unlock()
	if tcb == nil {
		return 0, vfs.ENOTCONN
	}

	n, sendErr := tcb.SendMsg(buf, tcp.DefaultMSS)
	if sendErr != tcp.ErrWouldBlock {
		return n, sendErr
	}
	if nonblocking {
		return 0, vfs.EWOULDBLOCK
	}
	if err := s.txWait.Wait(ctx); err != nil {
		return 0, err
	}
	return tcb.SendMsg(buf, tcp.DefaultMSS)
}

// RecvFrom drains the receive byte queue up to len(buf). An empty queue
// with EOF returns 0; with a nonblocking socket returns EWOULDBLOCK;
// otherwise the caller suspends on the RX wait queue. A sticky error
// supersedes data and is consumed here.
func RecvFrom(ctx context.Context, fd int32, buf []byte) (int, error) {
	s, err := lookup(fd)
	if err != nil {
		return 0, err
	}

	for {
		s.mu.Lock()
		tcb := s.tcb
		s.mu.Unlock()

		if tcb != nil {
			if e := tcb.PendingError(); e != 0 {
				return 0, e
			}
		}

		s.rxMu.Lock()
		n := copy(buf, s.rx)
		s.rx = s.rx[n:]
		s.rxMu.Unlock()
		if n > 0 {
			return n, nil
		}

		s.mu.Lock()
		eof := s.eof || (tcb != nil && tcb.EOF())
		nonblocking := s.nonblocking
		s.mu.Unlock()
		if eof {
			return 0, nil
		}
		if nonblocking {
			return 0, vfs.EWOULDBLOCK
		}
		if err := s.rxWait.Wait(ctx); err != nil {
			return 0, err
		}
	}
}

// Poll reports readiness per the independent-bits contract: IN/RDNORM
// when RX is non-empty, OUT/WRNORM whenever the socket has a TCB (the
// peer window is not consulted), ERR on pending
// error, HUP on EOF or a terminal-ish state.
func Poll(fd int32) (vfs.PollMask, error) {
	s, err := lookup(fd)
	if err != nil {
		return 0, err
	}

	var mask vfs.PollMask
	s.rxMu.Lock()
	rxReady := len(s.rx) > 0
	s.rxMu.Unlock()
	if rxReady {
		mask |= vfs.PollIn | vfs.PollRdNorm
	}

	s.mu.Lock()
	tcb := s.tcb
	eof := s.eof
	s.mu.Unlock()

	if tcb != nil {
		mask |= vfs.PollOut | vfs.PollWrNorm
		if tcb.PeekError() != 0 {
			mask |= vfs.PollErr
		}
		switch tcb.State() {
		case tcp.Closed, tcp.TimeWait:
			mask |= vfs.PollHup
		}
		if tcb.EOF() {
			mask |= vfs.PollHup
		}
	}
	if eof {
		mask |= vfs.PollHup
	}
	return mask, nil
}
