package socket_test

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/socket"
	"github.com/hk-project/hkgo/pkg/tcp"
	"github.com/hk-project/hkgo/pkg/vfs"
)

func TestNewRejectsBadDomainTypeProtocol(t *testing.T) {
	_, err := socket.New(99, socket.SockStream, 0)
	assert.ErrorIs(t, err, vfs.EAFNOSUPPORT)

	_, err = socket.New(socket.AFInet, 2, 0)
	assert.ErrorIs(t, err, vfs.ESOCKTNOSUPPORT)

	_, err = socket.New(socket.AFInet, socket.SockStream, 17)
	assert.ErrorIs(t, err, vfs.EPROTONOSUPPORT)
}

func TestBindRejectsShortAddr(t *testing.T) {
	fd, err := socket.New(socket.AFInet, socket.SockStream, 0)
	assert.NilError(t, err)
	err = socket.Bind(fd, []byte{1, 2, 3})
	assert.ErrorIs(t, err, vfs.EINVAL)
}

func TestGetPeerNameBeforeConnect(t *testing.T) {
	fd, err := socket.New(socket.AFInet, socket.SockStream, 0)
	assert.NilError(t, err)
	_, err = socket.GetPeerName(fd)
	assert.ErrorIs(t, err, vfs.ENOTCONN)
}

func TestNonblockingConnectInProgress(t *testing.T) {
	clientFD, err := socket.New(socket.AFInet, socket.SockStream|socket.SockNonblock, 0)
	assert.NilError(t, err)

	raddr := socket.EncodeSockAddrIn(socket.SockAddrIn{Port: 80})
	err = socket.Connect(context.Background(), clientFD, raddr)
	assert.ErrorIs(t, err, vfs.EINPROGRESS)

	peer, err := socket.GetPeerName(clientFD)
	assert.NilError(t, err)
	assert.Equal(t, peer.Port, uint16(80))

	_, err = socket.GetSockOpt(clientFD, socket.SolSocket, socket.SoError)
	assert.NilError(t, err)

	mask, err := socket.Poll(clientFD)
	assert.NilError(t, err)
	assert.Assert(t, mask&vfs.PollOut != 0)
}

func TestShutdownReadSetsEOF(t *testing.T) {
	fd, err := socket.New(socket.AFInet, socket.SockStream, 0)
	assert.NilError(t, err)
	assert.NilError(t, socket.Shutdown(fd, socket.ShutdownRead))

	n, err := socket.RecvFrom(context.Background(), fd, make([]byte, 10))
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
}

func TestRecvFromNonblockingEmptyQueue(t *testing.T) {
	fd, err := socket.New(socket.AFInet, socket.SockStream|socket.SockNonblock, 0)
	assert.NilError(t, err)
	raddr := socket.EncodeSockAddrIn(socket.SockAddrIn{Port: 9})
	err = socket.Connect(context.Background(), fd, raddr)
	assert.ErrorIs(t, err, vfs.EINPROGRESS)

	_, err = socket.RecvFrom(context.Background(), fd, make([]byte, 4))
	assert.ErrorIs(t, err, vfs.EWOULDBLOCK)
}

func TestTCBCloseTransitions(t *testing.T) {
	tcb := tcp.NewTCB(tcp.FourTuple{})
	tcb.Connect(1)
	tcb.Input(tcp.Segment{Seq: 100, Ack: 2, Flags: tcp.FlagSYN | tcp.FlagACK, Window: 1})
	assert.Equal(t, tcb.State(), tcp.Established)

	tcb.Close()
	assert.Equal(t, tcb.State(), tcp.FinWait1)
}
